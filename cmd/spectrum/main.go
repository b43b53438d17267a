// Command spectrum compares the pairwise distance distributions of a
// baseline and an experimental point cloud.
//
// Without -png it serves the live monitor until interrupted; with -png it
// waits for both sweeps to finish and writes the plot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/distance.spectrum/internal/config"
	"github.com/banshee-data/distance.spectrum/internal/monitoring"
	"github.com/banshee-data/distance.spectrum/internal/spectrum"
	"github.com/banshee-data/distance.spectrum/internal/spectrum/monitor"
	"github.com/banshee-data/distance.spectrum/internal/spectrum/store"
	"github.com/banshee-data/distance.spectrum/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to a spectrum JSON config (defaults are used when empty)")
	listen := flag.String("listen", "", "HTTP listen address for the monitor (overrides config)")
	dbPath := flag.String("db", "", "SQLite workspace database (overrides config)")
	workspace := flag.String("workspace", "", "Load clusters from a stored workspace, by id or name")
	save := flag.String("save", "", "Save the generated clusters as a workspace with this name")
	pngPath := flag.String("png", "", "Write a PNG plot once both sweeps complete, then exit")
	metricName := flag.String("metric", "", "Distance metric: euclidean or mahalanobis (overrides config)")
	maxSamples := flag.Uint64("max-samples", 0, "Distances per sweep, 0 for every pair (overrides config)")
	slots := flag.Int("slots", 0, "Histogram slots (overrides config)")
	seed := flag.Int64("seed", 0, "Cluster generation seed (overrides config)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg := config.DefaultSpectrumConfig()
	if *configPath != "" {
		loaded, err := config.LoadSpectrumConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = listen
		case "db":
			cfg.DBPath = dbPath
		case "metric":
			cfg.Metric = metricName
		case "max-samples":
			cfg.MaxDistSamples = maxSamples
		case "slots":
			cfg.HistogramSlots = slots
		case "seed":
			cfg.Seed = seed
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st *store.Store
	if *workspace != "" || *save != "" {
		var err error
		st, err = store.Open(cfg.GetDBPath())
		if err != nil {
			log.Fatalf("Failed to open workspace store: %v", err)
		}
		defer st.Close()
	}

	var m models
	var err error
	if *workspace != "" {
		m, err = loadModels(ctx, st, *workspace, cfg, cfg.GetSeed())
	} else {
		m, err = generateModels(cfg, cfg.GetSeed())
	}
	if err != nil {
		log.Fatalf("Failed to build point clouds: %v", err)
	}
	log.Printf("Baseline: %d clusters, %d points; experimental: %d clusters, %d points",
		len(m.baseline.Clusters()), m.baseline.Cloud().Size(),
		len(m.experimental.Clusters()), m.experimental.Cloud().Size())

	if *save != "" {
		id, err := st.SaveWorkspace(ctx, *save, m.sides())
		if err != nil {
			log.Fatalf("Failed to save workspace: %v", err)
		}
		log.Printf("Saved workspace %q as %s", *save, id)
	}

	metric, err := spectrum.MetricByName(cfg.GetMetric())
	if err != nil {
		log.Fatalf("Failed to select metric: %v", err)
	}
	dc, err := spectrum.NewDiffCollector(m.baseline.Cloud(), m.experimental.Cloud(), spectrum.DiffCollectorConfig{
		Slots:          cfg.GetHistogramSlots(),
		MaxDistSamples: cfg.GetMaxDistSamples(),
		ProgressTick:   cfg.GetProgressTick(),
		Metric:         metric,
		Seed:           cfg.GetSeed(),
	})
	if err != nil {
		log.Fatalf("Failed to create collector: %v", err)
	}
	defer dc.Close()
	m.baseline.Bind(dc, spectrum.Baseline)
	m.experimental.Bind(dc, spectrum.Experimental)
	dc.TriggerBaselineUpdate()
	dc.TriggerExperimentalUpdate()

	if *pngPath != "" {
		waitDone := make(chan struct{})
		go func() {
			dc.Wait()
			close(waitDone)
		}()
		select {
		case <-waitDone:
		case <-ctx.Done():
			log.Printf("Interrupted before the sweeps completed")
			return
		}
		if err := monitor.WritePNG(dc, *pngPath, 10*vg.Inch, 6*vg.Inch); err != nil {
			log.Fatalf("Failed to write plot: %v", err)
		}
		log.Printf("Wrote %s", *pngPath)
		return
	}

	srv := monitor.NewServer(monitor.ServerConfig{
		Address:   cfg.GetListen(),
		Collector: dc,
		Store:     st,
	})
	monitoring.Logf("[spectrum] %s, monitor at http://%s/spectrum", version.String(), cfg.GetListen())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Monitor server failed: %v", err)
	}
}

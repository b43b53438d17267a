package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/distance.spectrum/internal/spectrum"
)

type seriesJSON struct {
	Points   [][2]float64 `json:"points"`
	MinY     float64      `json:"min_y"`
	MaxY     float64      `json:"max_y"`
	Progress float64      `json:"progress"`
}

type spectrumJSON struct {
	Slots          int        `json:"slots"`
	MaxDistSamples uint64     `json:"max_dist_samples"` // 0 = every pair
	Completed      bool       `json:"completed"`
	Baseline       seriesJSON `json:"baseline"`
	Experimental   seriesJSON `json:"experimental"`
	Diff           seriesJSON `json:"diff"`
}

func toSeriesJSON(s spectrum.SeriesSnapshot) seriesJSON {
	out := seriesJSON{
		Points:   make([][2]float64, len(s.Points)),
		MinY:     s.MinY,
		MaxY:     s.MaxY,
		Progress: s.Progress,
	}
	for i, p := range s.Points {
		out.Points[i] = [2]float64{p.X, p.Y}
	}
	return out
}

func budgetJSON(n uint64) uint64 {
	if n == spectrum.MaxDistances {
		return 0
	}
	return n
}

// handleSeries returns the three series and their progress as JSON.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	c := s.collector
	s.writeJSON(w, spectrumJSON{
		Slots:          c.Slots(),
		MaxDistSamples: budgetJSON(c.MaxDistSamples()),
		Completed:      c.Completed(),
		Baseline:       toSeriesJSON(c.BaselineSeries()),
		Experimental:   toSeriesJSON(c.ExperimentalSeries()),
		Diff:           toSeriesJSON(c.DiffSeries()),
	})
}

// handleSamples changes the per-sweep distance budget.
// Query params:
//   - max (required): distances per sweep, 0 or "all" for every pair
func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	raw := r.URL.Query().Get("max")
	if raw == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing 'max' parameter")
		return
	}
	var n uint64
	if raw != "all" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid 'max' parameter: %v", err))
			return
		}
		n = v
	}
	s.collector.SetMaxDistSamples(n)
	s.writeJSON(w, map[string]uint64{"max_dist_samples": budgetJSON(s.collector.MaxDistSamples())})
}

// handleTrigger restarts the sweeps of one or both sides.
// Query params:
//   - side (optional): baseline, experimental or both (default)
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	sides := []spectrum.Side{spectrum.Baseline, spectrum.Experimental}
	if name := r.URL.Query().Get("side"); name != "" && name != "both" {
		side, err := spectrum.ParseSide(name)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		sides = []spectrum.Side{side}
	}
	names := make([]string, 0, len(sides))
	for _, side := range sides {
		s.collector.TriggerUpdate(side)
		names = append(names, side.String())
	}
	s.writeJSON(w, map[string][]string{"triggered": names})
}

// handleSpectrum renders the baseline, experimental and diff series as an
// echarts page.
func (s *Server) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	c := s.collector
	base, exp, diff := c.BaselineSeries(), c.ExperimentalSeries(), c.DiffSeries()

	budget := "all pairs"
	if n := c.MaxDistSamples(); n != spectrum.MaxDistances {
		budget = fmt.Sprintf("%d samples", n)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Distance Spectrum", Theme: "dark", Width: "1200px", Height: "700px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title: "Distance Spectrum",
			Subtitle: fmt.Sprintf("baseline %.0f%% experimental %.0f%% slots=%d budget=%s",
				100*base.Progress, 100*exp.Progress, c.Slots(), budget),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "distance", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "fraction", NameLocation: "middle", NameGap: 40}),
	)

	step := charts.WithLineChartOpts(opts.LineChart{Step: "start", ShowSymbol: opts.Bool(false)})
	line.AddSeries("baseline", lineData(base), step)
	line.AddSeries("experimental", lineData(exp), step)
	line.AddSeries("diff", lineData(diff), step)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func lineData(s spectrum.SeriesSnapshot) []opts.LineData {
	data := make([]opts.LineData, len(s.Points))
	for i, p := range s.Points {
		data[i] = opts.LineData{Value: []interface{}{p.X, p.Y}}
	}
	return data
}

// handlePlotPNG renders the three series with gonum/plot.
// Query params:
//   - w, h (optional): size in inches, default 10x6
func (s *Server) handlePlotPNG(w http.ResponseWriter, r *http.Request) {
	width, height := 10*vg.Inch, 6*vg.Inch
	if v, err := strconv.ParseFloat(r.URL.Query().Get("w"), 64); err == nil && v > 0 && v <= 40 {
		width = vg.Length(v) * vg.Inch
	}
	if v, err := strconv.ParseFloat(r.URL.Query().Get("h"), 64); err == nil && v > 0 && v <= 40 {
		height = vg.Length(v) * vg.Inch
	}

	p, err := NewPlot(s.collector)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build plot: %v", err))
		return
	}
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to encode plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

type workspaceJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Clusters  int       `json:"clusters"`
}

// handleWorkspaces lists the stored workspaces, newest first.
func (s *Server) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSONError(w, http.StatusNotFound, "no workspace store configured")
		return
	}
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	list, err := s.store.ListWorkspaces(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]workspaceJSON, 0, len(list))
	for _, ws := range list {
		out = append(out, workspaceJSON{ID: ws.ID, Name: ws.Name, CreatedAt: ws.CreatedAt, Clusters: ws.Clusters})
	}
	s.writeJSON(w, out)
}

package main

import (
	"context"
	"fmt"

	"github.com/banshee-data/distance.spectrum/internal/config"
	"github.com/banshee-data/distance.spectrum/internal/spectrum"
	"github.com/banshee-data/distance.spectrum/internal/spectrum/cluster"
	"github.com/banshee-data/distance.spectrum/internal/spectrum/store"
)

// models holds the two cluster models compared by the collector.
type models struct {
	baseline     *cluster.Model
	experimental *cluster.Model
}

func (m models) side(s spectrum.Side) *cluster.Model {
	if s == spectrum.Baseline {
		return m.baseline
	}
	return m.experimental
}

// sides returns the clusters of both models keyed by side, as the store
// expects them.
func (m models) sides() map[spectrum.Side][]*cluster.Cluster {
	return map[spectrum.Side][]*cluster.Cluster{
		spectrum.Baseline:     m.baseline.Clusters(),
		spectrum.Experimental: m.experimental.Clusters(),
	}
}

// newModels creates empty models over the configured region. The
// experimental side draws from seed+1 so both sides never share a stream.
func newModels(cfg *config.SpectrumConfig, seed int64) (models, error) {
	lo, hi := cfg.GetBounds()
	base, err := cluster.NewModelWithRegion(lo, hi, seed)
	if err != nil {
		return models{}, fmt.Errorf("baseline model: %w", err)
	}
	exp, err := cluster.NewModelWithRegion(lo, hi, seed+1)
	if err != nil {
		return models{}, fmt.Errorf("experimental model: %w", err)
	}
	return models{baseline: base, experimental: exp}, nil
}

// generateModels fills fresh models with the clusters described by cfg.
func generateModels(cfg *config.SpectrumConfig, seed int64) (models, error) {
	m, err := newModels(cfg, seed)
	if err != nil {
		return models{}, err
	}
	plan := map[spectrum.Side][]config.ClusterConfig{
		spectrum.Baseline:     cfg.GetBaselineClusters(),
		spectrum.Experimental: cfg.GetExperimentalClusters(),
	}
	for _, s := range []spectrum.Side{spectrum.Baseline, spectrum.Experimental} {
		for i, cc := range plan[s] {
			if err := createCluster(m.side(s), cc); err != nil {
				return models{}, fmt.Errorf("%s cluster %d: %w", s, i, err)
			}
		}
	}
	return m, nil
}

func createCluster(m *cluster.Model, cc config.ClusterConfig) error {
	var normal *cluster.NormalParams
	if cc.Normal {
		normal = &cluster.NormalParams{Deviation: cc.GetDeviation(), ClipRadius: cc.GetClipRadius()}
	}
	c, err := m.CreateCluster(cc.Population, normal)
	if err != nil {
		return err
	}
	if len(cc.Hull) > 0 {
		var q cluster.Quad
		copy(q[:], cc.Hull)
		if err := c.SetHull(q); err != nil {
			return err
		}
	}
	if cc.Color != "" {
		c.SetColor(cc.Color)
	}
	return nil
}

// loadModels rebuilds the models from a stored workspace, referenced by id
// or by name.
func loadModels(ctx context.Context, st *store.Store, ref string, cfg *config.SpectrumConfig, seed int64) (models, error) {
	id, err := st.ResolveWorkspace(ctx, ref)
	if err != nil {
		return models{}, fmt.Errorf("resolve workspace %q: %w", ref, err)
	}
	ws, err := st.LoadWorkspace(ctx, id)
	if err != nil {
		return models{}, fmt.Errorf("load workspace %s: %w", id, err)
	}
	m, err := newModels(cfg, seed)
	if err != nil {
		return models{}, err
	}
	for s, clusters := range ws.Clusters {
		for _, c := range clusters {
			if err := m.side(s).AddCluster(c); err != nil {
				return models{}, fmt.Errorf("%s cluster %s: %w", s, c.ID(), err)
			}
		}
	}
	return m, nil
}

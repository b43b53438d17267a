package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/distance.spectrum/internal/spectrum"
)

// DefaultConfigPath is the path to the canonical spectrum defaults file.
const DefaultConfigPath = "config/spectrum.defaults.json"

// Defaults applied by the Get* accessors when a field is omitted.
const (
	DefaultHistogramSlots = 100
	DefaultProgressTick   = 0.05
	DefaultMetric         = "euclidean"
	DefaultSeed           = 4
	DefaultListen         = "localhost:8090"
	DefaultDBPath         = "spectrum.db"
	DefaultDeviation      = 0.3
	DefaultClipRadius     = 2.0
)

// clusterDims is the dimension of every generated cluster point.
const clusterDims = 2

// ClusterConfig describes one generated point cluster.
type ClusterConfig struct {
	Population int  `json:"population"`
	Normal     bool `json:"normal,omitempty"`
	// Only used by normal clusters.
	Deviation  *float64 `json:"deviation,omitempty"`
	ClipRadius *float64 `json:"clip_radius,omitempty"`
	// Hull is the quadrilateral the unit square is mapped onto, in the
	// order p00, p10, p11, p01. Omitted means the cluster default.
	Hull  [][2]float64 `json:"hull,omitempty"`
	Color string       `json:"color,omitempty"`
}

// GetDeviation returns the normal standard deviation or the default.
func (c ClusterConfig) GetDeviation() float64 {
	if c.Deviation == nil {
		return DefaultDeviation
	}
	return *c.Deviation
}

// GetClipRadius returns the normal clip radius or the default.
func (c ClusterConfig) GetClipRadius() float64 {
	if c.ClipRadius == nil {
		return DefaultClipRadius
	}
	return *c.ClipRadius
}

// SpectrumConfig is the root configuration of the spectrum tool. Omitted
// fields fall back to the defaults returned by the Get* methods, so partial
// files are safe.
type SpectrumConfig struct {
	// Histogram and sweep params
	HistogramSlots *int     `json:"histogram_slots,omitempty"`
	MaxDistSamples *uint64  `json:"max_dist_samples,omitempty"` // 0 = every pair
	ProgressTick   *float64 `json:"progress_tick,omitempty"`
	Metric         *string  `json:"metric,omitempty"`

	// Region shared by both clouds
	BoundsMin []float64 `json:"bounds_min,omitempty"`
	BoundsMax []float64 `json:"bounds_max,omitempty"`

	// Cluster generation
	Seed                 *int64          `json:"seed,omitempty"`
	BaselineClusters     []ClusterConfig `json:"baseline_clusters,omitempty"`
	ExperimentalClusters []ClusterConfig `json:"experimental_clusters,omitempty"`

	// Serving and persistence
	Listen *string `json:"listen,omitempty"`
	DBPath *string `json:"db_path,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptySpectrumConfig returns a SpectrumConfig with every field unset.
func EmptySpectrumConfig() *SpectrumConfig {
	return &SpectrumConfig{}
}

// DefaultSpectrumConfig returns a fully populated configuration: a uniform
// baseline of 4000 points over the unit square against a normal cluster of
// 1000 points in the default hull.
func DefaultSpectrumConfig() *SpectrumConfig {
	return &SpectrumConfig{
		HistogramSlots: ptrInt(DefaultHistogramSlots),
		MaxDistSamples: ptrUint64(0),
		ProgressTick:   ptrFloat64(DefaultProgressTick),
		Metric:         ptrString(DefaultMetric),
		BoundsMin:      []float64{0, 0},
		BoundsMax:      []float64{1, 1},
		Seed:           ptrInt64(DefaultSeed),
		Listen:         ptrString(DefaultListen),
		DBPath:         ptrString(DefaultDBPath),
		BaselineClusters: []ClusterConfig{{
			Population: 4000,
			Hull:       [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		}},
		ExperimentalClusters: []ClusterConfig{{
			Population: 1000,
			Normal:     true,
			Deviation:  ptrFloat64(DefaultDeviation),
			ClipRadius: ptrFloat64(DefaultClipRadius),
		}},
	}
}

// LoadSpectrumConfig loads a SpectrumConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadSpectrumConfig(path string) (*SpectrumConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySpectrumConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *SpectrumConfig) Validate() error {
	if c.HistogramSlots != nil && *c.HistogramSlots < 1 {
		return fmt.Errorf("histogram_slots must be at least 1, got %d", *c.HistogramSlots)
	}
	if c.ProgressTick != nil && *c.ProgressTick > 1 {
		return fmt.Errorf("progress_tick must not exceed 1, got %f", *c.ProgressTick)
	}
	if c.Metric != nil {
		if _, err := spectrum.MetricByName(*c.Metric); err != nil {
			return err
		}
	}
	if (c.BoundsMin == nil) != (c.BoundsMax == nil) {
		return fmt.Errorf("bounds_min and bounds_max must be set together")
	}
	if c.BoundsMin != nil {
		if len(c.BoundsMin) != len(c.BoundsMax) {
			return fmt.Errorf("bounds_min has %d dims, bounds_max has %d", len(c.BoundsMin), len(c.BoundsMax))
		}
		if len(c.BoundsMin) == 0 {
			return fmt.Errorf("bounds must have at least one dimension")
		}
		// clusters generate planar points only
		if len(c.BoundsMin) != clusterDims {
			return fmt.Errorf("bounds must have %d dims to contain cluster points, got %d", clusterDims, len(c.BoundsMin))
		}
	}
	for side, clusters := range map[string][]ClusterConfig{
		"baseline_clusters":     c.BaselineClusters,
		"experimental_clusters": c.ExperimentalClusters,
	} {
		for i, cl := range clusters {
			if err := cl.validate(); err != nil {
				return fmt.Errorf("%s[%d]: %w", side, i, err)
			}
		}
	}
	return nil
}

func (c ClusterConfig) validate() error {
	if c.Population < 0 {
		return fmt.Errorf("population must be non-negative, got %d", c.Population)
	}
	if c.Deviation != nil && *c.Deviation <= 0 {
		return fmt.Errorf("deviation must be positive, got %f", *c.Deviation)
	}
	if c.ClipRadius != nil && *c.ClipRadius <= 0 {
		return fmt.Errorf("clip_radius must be positive, got %f", *c.ClipRadius)
	}
	if c.Hull != nil && len(c.Hull) != 4 {
		return fmt.Errorf("hull needs 4 corners, got %d", len(c.Hull))
	}
	return nil
}

// GetHistogramSlots returns the histogram_slots value or the default.
func (c *SpectrumConfig) GetHistogramSlots() int {
	if c.HistogramSlots == nil {
		return DefaultHistogramSlots
	}
	return *c.HistogramSlots
}

// GetMaxDistSamples returns the per-sweep distance budget; 0 means no cap.
func (c *SpectrumConfig) GetMaxDistSamples() uint64 {
	if c.MaxDistSamples == nil {
		return 0
	}
	return *c.MaxDistSamples
}

// GetProgressTick returns the progress_tick value or the default.
func (c *SpectrumConfig) GetProgressTick() float64 {
	if c.ProgressTick == nil {
		return DefaultProgressTick
	}
	return *c.ProgressTick
}

// GetMetric returns the metric name or the default.
func (c *SpectrumConfig) GetMetric() string {
	if c.Metric == nil || *c.Metric == "" {
		return DefaultMetric
	}
	return *c.Metric
}

// GetBounds returns the region corners, the unit square by default.
func (c *SpectrumConfig) GetBounds() (min, max []float64) {
	if c.BoundsMin == nil || c.BoundsMax == nil {
		return []float64{0, 0}, []float64{1, 1}
	}
	return append([]float64(nil), c.BoundsMin...), append([]float64(nil), c.BoundsMax...)
}

// GetSeed returns the cluster generator seed or the default.
func (c *SpectrumConfig) GetSeed() int64 {
	if c.Seed == nil {
		return DefaultSeed
	}
	return *c.Seed
}

// GetListen returns the monitor listen address or the default.
func (c *SpectrumConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// GetDBPath returns the workspace database path or the default.
func (c *SpectrumConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetBaselineClusters returns the baseline clusters, or the default
// uniform baseline when none are configured.
func (c *SpectrumConfig) GetBaselineClusters() []ClusterConfig {
	if len(c.BaselineClusters) == 0 {
		return DefaultSpectrumConfig().BaselineClusters
	}
	return c.BaselineClusters
}

// GetExperimentalClusters returns the experimental clusters, or the default
// normal cluster when none are configured.
func (c *SpectrumConfig) GetExperimentalClusters() []ClusterConfig {
	if len(c.ExperimentalClusters) == 0 {
		return DefaultSpectrumConfig().ExperimentalClusters
	}
	return c.ExperimentalClusters
}

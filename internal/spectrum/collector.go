package spectrum

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"gonum.org/v1/plot/plotter"
)

// regionTolerance is the relative tolerance used to decide that the
// baseline and experimental clouds cover the same region.
const regionTolerance = 1e-5

// ErrRegionMismatch is returned when the two clouds of a DiffCollector are
// bounded by different boxes.
var ErrRegionMismatch = errors.New("baseline and experimental regions differ")

// Side selects one of the two clouds of a DiffCollector.
type Side int

const (
	Baseline Side = iota
	Experimental
)

func (s Side) String() string {
	switch s {
	case Baseline:
		return "baseline"
	case Experimental:
		return "experimental"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// ParseSide is the inverse of Side.String.
func ParseSide(s string) (Side, error) {
	switch s {
	case "baseline":
		return Baseline, nil
	case "experimental":
		return Experimental, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

// DiffCollectorConfig configures a DiffCollector. Zero values select the
// defaults noted on each field.
type DiffCollectorConfig struct {
	// Slots is the histogram slot count (default DefaultHistogramSlots).
	Slots int
	// MaxDistSamples caps the distances per sweep (0 = no cap).
	MaxDistSamples uint64
	// ProgressTick is the notification fraction (0 = DefaultProgressTick,
	// negative disables partial progress).
	ProgressTick float64
	// Metric builds the metric for each sweep (default Euclidean).
	Metric MetricFactory
	// Seed makes sampled sweeps reproducible when non-zero.
	Seed int64
	// OnUpdate, if set, is registered as the first listener.
	OnUpdate func(*DiffCollector)
}

// SeriesSnapshot is a copy of one derived series with the range of its
// y-values.
type SeriesSnapshot struct {
	Points   plotter.XYs
	MinY     float64
	MaxY     float64
	Progress float64
}

// Len returns the number of points in the series.
func (s SeriesSnapshot) Len() int { return len(s.Points) }

type collectorSide struct {
	cloud    *BoundedCloud
	filler   atomic.Pointer[Filler]
	progress atomic.Uint64 // math.Float64bits of the completed fraction
	series   plotter.XYs   // guarded by DiffCollector.mu
}

// DiffCollector runs one Filler per cloud and keeps three derived series in
// sync: the normalised baseline and experimental distance distributions and
// their difference.
//
// Filler callbacks arrive on the filler goroutines; they update the series
// under the collector lock and then notify listeners with the lock released.
// Starting a sweep is serialised by a separate start lock which is never
// held together with the series lock. Listeners must not trigger or stop
// updates synchronously, since that would join the goroutine calling them.
type DiffCollector struct {
	startMu sync.Mutex

	mu        sync.Mutex
	listeners []func(*DiffCollector)
	diff      plotter.XYs

	sides   [2]*collectorSide
	slots   int
	tick    float64
	metric  MetricFactory
	seed    int64
	maxDist atomic.Uint64
}

// NewDiffCollector validates that both clouds share one region and prepares
// all-zero series of cfg.Slots+1 points.
func NewDiffCollector(baseline, experimental *BoundedCloud, cfg DiffCollectorConfig) (*DiffCollector, error) {
	if baseline == nil || experimental == nil {
		return nil, errors.New("diff collector needs both clouds")
	}
	if !baseline.SameRegion(experimental, regionTolerance) {
		return nil, fmt.Errorf("baseline %v-%v, experimental %v-%v: %w",
			baseline.Min(), baseline.Max(), experimental.Min(), experimental.Max(), ErrRegionMismatch)
	}
	if cfg.Slots == 0 {
		cfg.Slots = DefaultHistogramSlots
	}
	if cfg.ProgressTick == 0 {
		cfg.ProgressTick = DefaultProgressTick
	}
	if cfg.Metric == nil {
		cfg.Metric = func() Metric { return Euclidean{} }
	}
	if cfg.MaxDistSamples == 0 {
		cfg.MaxDistSamples = MaxDistances
	}

	empty, err := NewHistogram(cfg.Slots, 0, baseline.DiagonalLength())
	if err != nil {
		return nil, err
	}

	c := &DiffCollector{
		slots:  cfg.Slots,
		tick:   cfg.ProgressTick,
		metric: cfg.Metric,
		seed:   cfg.Seed,
		sides: [2]*collectorSide{
			{cloud: baseline, series: seriesFrom(empty)},
			{cloud: experimental, series: seriesFrom(empty)},
		},
		diff: seriesFrom(empty),
	}
	c.maxDist.Store(cfg.MaxDistSamples)
	if cfg.OnUpdate != nil {
		c.listeners = append(c.listeners, cfg.OnUpdate)
	}
	return c, nil
}

// AddListener registers fn to be called after every series update.
func (c *DiffCollector) AddListener(fn func(*DiffCollector)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Slots returns the histogram slot count.
func (c *DiffCollector) Slots() int { return c.slots }

// Cloud returns the cloud of the given side.
func (c *DiffCollector) Cloud(s Side) *BoundedCloud { return c.sides[s].cloud }

// TriggerUpdate restarts the sweep of one side from scratch.
func (c *DiffCollector) TriggerUpdate(s Side) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	sd := c.sides[s]
	if old := sd.filler.Load(); old != nil {
		old.Stop()
	}
	h, err := NewHistogram(c.slots, 0, sd.cloud.DiagonalLength())
	if err != nil {
		// slots were validated at construction
		panic(err)
	}
	f := NewFiller(h)
	if c.seed != 0 {
		f.SetRand(rand.New(rand.NewSource(c.seed + int64(s))))
	}
	sd.progress.Store(math.Float64bits(0))
	sd.filler.Store(f)
	f.Start(sd.cloud, c.metric(), c, c.tick, c.maxDist.Load())
}

// StopUpdate cancels the sweep of one side and waits for it to exit. Call it
// before mutating the side's sources.
func (c *DiffCollector) StopUpdate(s Side) {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if f := c.sides[s].filler.Load(); f != nil {
		f.Stop()
	}
}

// TriggerBaselineUpdate restarts the baseline sweep.
func (c *DiffCollector) TriggerBaselineUpdate() { c.TriggerUpdate(Baseline) }

// TriggerExperimentalUpdate restarts the experimental sweep.
func (c *DiffCollector) TriggerExperimentalUpdate() { c.TriggerUpdate(Experimental) }

// StopBaselineUpdate cancels the baseline sweep.
func (c *DiffCollector) StopBaselineUpdate() { c.StopUpdate(Baseline) }

// StopExperimentalUpdate cancels the experimental sweep.
func (c *DiffCollector) StopExperimentalUpdate() { c.StopUpdate(Experimental) }

// PointsAboutToChange is the hook for owners of a side's sources: it stops
// the side's sweep so it never reads a half-mutated source.
func (c *DiffCollector) PointsAboutToChange(s Side) { c.StopUpdate(s) }

// PointsChanged is the hook fired after a side's sources changed.
func (c *DiffCollector) PointsChanged(s Side) { c.TriggerUpdate(s) }

// SetMaxDistSamples changes the per-sweep budget and restarts both sides
// when it differs from the current one. Zero means no cap.
func (c *DiffCollector) SetMaxDistSamples(n uint64) {
	if n == 0 {
		n = MaxDistances
	}
	if c.maxDist.Swap(n) == n {
		return
	}
	c.TriggerUpdate(Baseline)
	c.TriggerUpdate(Experimental)
}

// MaxDistSamples returns the per-sweep budget.
func (c *DiffCollector) MaxDistSamples() uint64 { return c.maxDist.Load() }

// Wait blocks until the current sweeps of both sides have exited.
func (c *DiffCollector) Wait() {
	for _, sd := range c.sides {
		if f := sd.filler.Load(); f != nil {
			f.task.Join()
		}
	}
}

// Completed reports whether both sides finished their current sweep
// without being cancelled.
func (c *DiffCollector) Completed() bool {
	for _, sd := range c.sides {
		f := sd.filler.Load()
		if f == nil || f.State() != TaskCompleted {
			return false
		}
	}
	return true
}

// Close stops both sweeps.
func (c *DiffCollector) Close() {
	c.StopUpdate(Baseline)
	c.StopUpdate(Experimental)
}

// Progress returns the completed fraction of a side's current sweep.
func (c *DiffCollector) Progress(s Side) float64 {
	return math.Float64frombits(c.sides[s].progress.Load())
}

// BaselineSeries returns a copy of the normalised baseline distribution.
func (c *DiffCollector) BaselineSeries() SeriesSnapshot { return c.sideSeries(Baseline) }

// ExperimentalSeries returns a copy of the normalised experimental distribution.
func (c *DiffCollector) ExperimentalSeries() SeriesSnapshot { return c.sideSeries(Experimental) }

// DiffSeries returns experimental minus baseline, slot by slot. Its Progress
// is the smaller of the two sides' progress.
func (c *DiffCollector) DiffSeries() SeriesSnapshot {
	c.mu.Lock()
	snap := snapshotOf(c.diff)
	c.mu.Unlock()
	snap.Progress = math.Min(c.Progress(Baseline), c.Progress(Experimental))
	return snap
}

func (c *DiffCollector) sideSeries(s Side) SeriesSnapshot {
	c.mu.Lock()
	snap := snapshotOf(c.sides[s].series)
	c.mu.Unlock()
	snap.Progress = c.Progress(s)
	return snap
}

// OnPartialProgress implements Observer.
func (c *DiffCollector) OnPartialProgress(h *Histogram, progress, total uint64) {
	frac := 0.0
	if total > 0 {
		frac = float64(progress) / float64(total)
	}
	c.update(h, frac)
}

// OnDone implements Observer.
func (c *DiffCollector) OnDone(h *Histogram) {
	c.update(h, 1)
}

func (c *DiffCollector) update(h *Histogram, progress float64) {
	c.mu.Lock()
	matched := false
	for _, sd := range c.sides {
		f := sd.filler.Load()
		if f == nil || f.Histogram() != h {
			continue
		}
		matched = true
		sd.progress.Store(math.Float64bits(progress))
		sd.series = seriesFrom(h)
	}
	if matched {
		c.diff = diffOf(c.sides[Baseline].series, c.sides[Experimental].series)
	}
	listeners := make([]func(*DiffCollector), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	if !matched {
		return
	}
	for _, fn := range listeners {
		fn(c)
	}
}

// seriesFrom normalises h: one point per slot at the slot start with height
// count/total, plus a trailing zero-height point at the domain maximum.
func seriesFrom(h *Histogram) plotter.XYs {
	n := h.NumSlots()
	out := make(plotter.XYs, n+1)
	total := h.TotalCount()
	for i := 0; i < n; i++ {
		out[i].X = h.SlotMin(i)
		if total > 0 {
			out[i].Y = float64(h.SlotCount(i)) / float64(total)
		}
	}
	out[n] = plotter.XY{X: h.SlotMax(n - 1), Y: 0}
	return out
}

func diffOf(baseline, experimental plotter.XYs) plotter.XYs {
	n := len(baseline)
	if len(experimental) < n {
		n = len(experimental)
	}
	out := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		out[i] = plotter.XY{X: baseline[i].X, Y: experimental[i].Y - baseline[i].Y}
	}
	return out
}

func snapshotOf(src plotter.XYs) SeriesSnapshot {
	snap := SeriesSnapshot{Points: make(plotter.XYs, len(src))}
	copy(snap.Points, src)
	if len(src) == 0 {
		return snap
	}
	snap.MinY, snap.MaxY = math.Inf(1), math.Inf(-1)
	for _, p := range src {
		snap.MinY = math.Min(snap.MinY, p.Y)
		snap.MaxY = math.Max(snap.MaxY, p.Y)
	}
	return snap
}

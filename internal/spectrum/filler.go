package spectrum

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/distance.spectrum/internal/monitoring"
)

// DefaultProgressTick is the fraction of a sweep between two partial
// progress notifications.
const DefaultProgressTick = 0.05

// Observer receives notifications from a Filler. Both methods are called on
// the filler's goroutine; implementations must be safe for that or hand the
// work off to their own goroutine.
type Observer interface {
	OnPartialProgress(h *Histogram, progress, total uint64)
	OnDone(h *Histogram)
}

// Liveness is implemented by observers that can go away while a sweep is
// running. A dead observer is treated exactly like a cancellation.
type Liveness interface {
	Alive() bool
}

// Filler drives one pair sweep at a time into a histogram on a background
// goroutine.
//
// Lifecycle: Idle -> Running -> Completed | Cancelled. Start fully stops a
// previous run before clearing the histogram and launching the next one;
// Stop requests cancellation and waits for the goroutine to exit.
type Filler struct {
	hist *Histogram
	task Task

	startMu sync.Mutex
	mu      sync.Mutex // guards rng and runID
	rng     *rand.Rand
	runID   string
}

// NewFiller returns a filler bound to h. The histogram is shared with the
// caller and cleared on every Start.
func NewFiller(h *Histogram) *Filler {
	if h == nil {
		panic("spectrum: NewFiller called with a nil histogram")
	}
	return &Filler{hist: h}
}

// SetRand makes sampled sweeps use r. The filler only touches r from one
// goroutine at a time.
func (f *Filler) SetRand(r *rand.Rand) {
	f.mu.Lock()
	f.rng = r
	f.mu.Unlock()
}

// Start launches a sweep over a snapshot of src's points.
//
// maxDist is clamped to the number of pairs in the snapshot. When tickPct is
// positive, obs gets a partial progress notification every
// ceil(maxDist*tickPct) distances; the last distance produces OnDone instead.
// An empty sweep still reports OnDone from the background goroutine.
func (f *Filler) Start(src PointCopier, metric Metric, obs Observer, tickPct float64, maxDist uint64) {
	f.startMu.Lock()
	defer f.startMu.Unlock()

	f.task.Stop()
	f.hist.Clear()

	points := PointSlice(src.CopyPoints(nil))
	if pairs := PairCount(len(points)); maxDist > pairs {
		maxDist = pairs
	}
	var tick uint64
	if tickPct > 0 {
		tick = uint64(math.Ceil(float64(maxDist) * tickPct))
		if tick == 0 {
			tick = 1
		}
	}
	if obs == nil {
		obs = nopObserver{}
	}
	if metric == nil {
		metric = Euclidean{}
	}

	runID := uuid.NewString()
	f.mu.Lock()
	f.runID = runID
	rng := f.rng
	f.mu.Unlock()

	monitoring.Logf("[filler] run %s: %d points, %d distances, tick %d", runID, len(points), maxDist, tick)
	f.task.Start(func(t *Task) {
		f.run(t, runID, points, metric, obs, tick, maxDist, rng)
	})
}

// Stop requests cancellation and blocks until the background goroutine has
// exited. It is idempotent.
func (f *Filler) Stop() {
	f.task.Stop()
}

// Stopped reports whether the current run was cancelled.
func (f *Filler) Stopped() bool { return f.task.Cancelled() }

// Done reports whether the background goroutine has exited.
func (f *Filler) Done() bool { return f.task.Finished() }

// State returns the lifecycle state of the current run.
func (f *Filler) State() TaskState { return f.task.State() }

// Histogram returns the histogram this filler writes to.
func (f *Filler) Histogram() *Histogram { return f.hist }

// RunID returns the identifier of the most recent run.
func (f *Filler) RunID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runID
}

func (f *Filler) run(t *Task, runID string, points PointSlice, metric Metric, obs Observer, tick, maxDist uint64, rng *rand.Rand) {
	started := time.Now()
	monitoring.SweepStarted()

	var progress uint64
	defer func() {
		if r := recover(); r != nil {
			t.Abort()
			monitoring.Logf("[filler] run %s failed after %d/%d distances: %v", runID, progress, maxDist, r)
			monitoring.SweepFinished(monitoring.OutcomeFailed, progress, time.Since(started))
			return
		}
		outcome := monitoring.OutcomeCompleted
		if t.State() != TaskCompleted {
			t.Abort()
			outcome = monitoring.OutcomeCancelled
		}
		monitoring.SweepFinished(outcome, progress, time.Since(started))
	}()

	if maxDist == 0 {
		if t.Settle(alive(obs)) {
			obs.OnDone(f.hist)
		}
		return
	}

	untilNotify := tick
	sink := func(d float64) bool {
		if progress >= maxDist {
			return false
		}
		progress++
		if progress == maxDist {
			// claim the terminal event before the last sample lands, so a
			// cancellation arriving after it cannot suppress OnDone
			if t.Settle(alive(obs)) {
				f.hist.AddSample(d)
				obs.OnDone(f.hist)
			}
			return false
		}
		f.hist.AddSample(d)
		if tick > 0 {
			untilNotify--
			if untilNotify == 0 {
				untilNotify = tick
				if t.Proceed(alive(obs)) {
					obs.OnPartialProgress(f.hist, progress, maxDist)
				}
			}
		}
		return !t.Cancelled()
	}
	ComputeDistances(points, metric, sink, maxDist, rng)
}

func alive(obs Observer) bool {
	if l, ok := obs.(Liveness); ok {
		return l.Alive()
	}
	return true
}

type nopObserver struct{}

func (nopObserver) OnPartialProgress(*Histogram, uint64, uint64) {}
func (nopObserver) OnDone(*Histogram)                            {}

package spectrum

import (
	"math"
	"math/rand"
	"time"
)

// MaxDistances is the "no cap" sample budget: every pair is enumerated.
const MaxDistances = math.MaxUint64

// PairCount returns L*(L-1)/2, the number of unordered pairs of n points.
func PairCount(n int) uint64 {
	if n < 2 {
		return 0
	}
	l := uint64(n)
	if l%2 == 0 {
		return (l / 2) * (l - 1)
	}
	return l * ((l - 1) / 2)
}

// DistanceSink receives one distance per pair. Returning false ends the
// sweep immediately.
type DistanceSink func(d float64) bool

// ComputeDistances feeds distances between points of src to sink.
//
// When all L*(L-1)/2 pairs fit in maxDistCount, every pair (i, j) with i < j
// is visited in increasing i then increasing j order. Otherwise maxDistCount
// pairs are drawn independently and uniformly, redrawing j only while i == j.
// Draws are with replacement at the pair level, so the same pair may be
// counted more than once: the sampled histogram approximates the true
// distribution rather than reproducing a subset of it.
//
// A StatsMetric is updated from src once, before the first distance. A nil
// rng selects a time-seeded source, which makes sampled sweeps
// non-reproducible.
func ComputeDistances(src PointSource, metric Metric, sink DistanceSink, maxDistCount uint64, rng *rand.Rand) {
	n := src.Size()
	if n < 2 {
		return
	}
	if sm, ok := metric.(StatsMetric); ok {
		sm.Update(src)
	}

	if PairCount(n) <= maxDistCount {
		for i := 0; i < n; i++ {
			first := src.PointAt(i)
			for j := i + 1; j < n; j++ {
				if !sink(metric.Distance(first, src.PointAt(j))) {
					return
				}
			}
		}
		return
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	for count := uint64(0); count < maxDistCount; count++ {
		i, j := rng.Intn(n), rng.Intn(n)
		for i == j {
			j = rng.Intn(n)
		}
		if !sink(metric.Distance(src.PointAt(i), src.PointAt(j))) {
			return
		}
	}
}

package spectrum

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultHistogramSlots is the slot count used when none is configured.
const DefaultHistogramSlots = 100

// ErrInvalidSlotCount is returned when a histogram is built with fewer than
// one slot.
var ErrInvalidSlotCount = errors.New("histogram needs at least one slot")

// Histogram counts samples in fixed-width slots covering [Min, Max].
//
// Slot i covers [min+i*w, min+(i+1)*w) with w = (max-min)/N; the last slot is
// closed on both ends so that Max itself is counted. A Histogram is not
// synchronised: a Filler writes it from its own goroutine and readers go
// through the DiffCollector lock.
type Histogram struct {
	min, max   float64
	counts     []uint64
	thresholds []float64 // start value of each slot, increasing
	total      uint64
}

// NewHistogram builds a histogram with the given slot count. When min > max
// the bounds are swapped.
func NewHistogram(slots int, min, max float64) (*Histogram, error) {
	if slots < 1 {
		return nil, fmt.Errorf("new histogram with %d slots: %w", slots, ErrInvalidSlotCount)
	}
	if min > max {
		min, max = max, min
	}
	h := &Histogram{
		min:        min,
		max:        max,
		counts:     make([]uint64, slots),
		thresholds: make([]float64, slots),
	}
	for i := range h.thresholds {
		h.thresholds[i] = h.SlotMin(i)
	}
	return h, nil
}

// AddSample counts v against its slot. Values outside [Min, Max] are
// rejected and reported with a false return.
func (h *Histogram) AddSample(v float64) bool {
	if !(v >= h.min && v <= h.max) {
		return false
	}
	// first threshold strictly above v, minus one, is the slot whose start
	// is the greatest one <= v
	n := len(h.thresholds)
	slot := sort.Search(n, func(i int) bool { return h.thresholds[i] > v }) - 1
	if slot < 0 {
		slot = 0
	}
	// everything from the last threshold up to and including max
	if slot >= n-1 {
		slot = n - 1
	}
	h.counts[slot]++
	h.total++
	return true
}

// Clear zeroes every slot and the running total. Range and slot count are kept.
func (h *Histogram) Clear() {
	for i := range h.counts {
		h.counts[i] = 0
	}
	h.total = 0
}

// NumSlots returns the number of slots.
func (h *Histogram) NumSlots() int { return len(h.counts) }

// Min returns the lower bound of the histogram domain.
func (h *Histogram) Min() float64 { return h.min }

// Max returns the upper bound of the histogram domain.
func (h *Histogram) Max() float64 { return h.max }

// SlotWidth returns (Max-Min)/NumSlots.
func (h *Histogram) SlotWidth() float64 {
	return (h.max - h.min) / float64(len(h.counts))
}

// SlotMin returns the inclusive lower bound of slot i.
func (h *Histogram) SlotMin(i int) float64 {
	return h.min + float64(i)*h.SlotWidth()
}

// SlotCenter returns the midpoint of slot i.
func (h *Histogram) SlotCenter(i int) float64 {
	return h.min + (float64(i)+0.5)*h.SlotWidth()
}

// SlotMax returns the upper bound of slot i. The last slot ends exactly at Max.
func (h *Histogram) SlotMax(i int) float64 {
	if i == len(h.counts)-1 {
		return h.max
	}
	return h.min + float64(i+1)*h.SlotWidth()
}

// SlotCount returns the number of samples counted in slot i.
func (h *Histogram) SlotCount(i int) uint64 { return h.counts[i] }

// TotalCount returns the number of accepted samples.
func (h *Histogram) TotalCount() uint64 { return h.total }

// Counts returns a copy of the slot counters.
func (h *Histogram) Counts() []uint64 {
	out := make([]uint64, len(h.counts))
	copy(out, h.counts)
	return out
}

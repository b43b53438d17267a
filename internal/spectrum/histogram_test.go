package spectrum

import (
	"errors"
	"math/rand"
	"testing"
)

func TestNewHistogram(t *testing.T) {
	t.Parallel()

	if _, err := NewHistogram(0, 0, 1); !errors.Is(err, ErrInvalidSlotCount) {
		t.Fatalf("expected ErrInvalidSlotCount, got %v", err)
	}

	h, err := NewHistogram(4, 8, 0)
	if err != nil {
		t.Fatalf("NewHistogram: %v", err)
	}
	if h.Min() != 0 || h.Max() != 8 {
		t.Errorf("expected swapped bounds [0, 8], got [%v, %v]", h.Min(), h.Max())
	}
	if h.SlotWidth() != 2 {
		t.Errorf("SlotWidth() = %v, want 2", h.SlotWidth())
	}
	if h.SlotMin(1) != 2 || h.SlotCenter(1) != 3 || h.SlotMax(1) != 4 || h.SlotMax(3) != 8 {
		t.Errorf("unexpected slot 1 bounds: %v %v %v", h.SlotMin(1), h.SlotCenter(1), h.SlotMax(1))
	}
}

func TestHistogramScenario(t *testing.T) {
	t.Parallel()
	h, err := NewHistogram(5, 0, 10)
	if err != nil {
		t.Fatalf("NewHistogram: %v", err)
	}

	tests := []struct {
		v      float64
		ok     bool
		bucket int
	}{
		{0, true, 0},
		{1.99, true, 0},
		{2, true, 1},
		{5, true, 2},
		{9.99, true, 4},
		{10, true, 4},
		{10.01, false, -1},
		{-0.01, false, -1},
	}
	for _, tt := range tests {
		before := h.Counts()
		if got := h.AddSample(tt.v); got != tt.ok {
			t.Errorf("AddSample(%v) = %v, want %v", tt.v, got, tt.ok)
			continue
		}
		after := h.Counts()
		for i := range after {
			want := before[i]
			if i == tt.bucket {
				want++
			}
			if after[i] != want {
				t.Errorf("AddSample(%v): slot %d = %d, want %d", tt.v, i, after[i], want)
			}
		}
	}
	if h.TotalCount() != 6 {
		t.Errorf("TotalCount() = %d, want 6", h.TotalCount())
	}

	h.Clear()
	if h.TotalCount() != 0 || h.NumSlots() != 5 || h.Max() != 10 {
		t.Errorf("Clear should zero counts and keep the range")
	}
	for i, c := range h.Counts() {
		if c != 0 {
			t.Errorf("slot %d = %d after Clear", i, c)
		}
	}
}

func TestHistogramSingleSlot(t *testing.T) {
	t.Parallel()
	h, _ := NewHistogram(1, 0, 1)
	for _, v := range []float64{0, 0.5, 1} {
		if !h.AddSample(v) {
			t.Errorf("AddSample(%v) rejected", v)
		}
	}
	if h.SlotCount(0) != 3 {
		t.Errorf("SlotCount(0) = %d, want 3", h.SlotCount(0))
	}
}

func TestHistogramTotalIsSumOfSlots(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(11))
	h, _ := NewHistogram(37, -3, 7.5)

	for i := 0; i < 5000; i++ {
		v := rng.Float64()*14 - 5 // some samples fall outside
		accepted := h.AddSample(v)
		if accepted != (v >= -3 && v <= 7.5) {
			t.Fatalf("AddSample(%v) = %v", v, accepted)
		}
		if !accepted {
			continue
		}
		var sum uint64
		for _, c := range h.Counts() {
			sum += c
		}
		if sum != h.TotalCount() {
			t.Fatalf("sum of slots %d != total %d", sum, h.TotalCount())
		}
	}
}

func TestHistogramBucketBounds(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(3))
	h, _ := NewHistogram(13, 0, 1.4142135623730951)

	for i := 0; i < 2000; i++ {
		v := rng.Float64() * h.Max()
		before := h.Counts()
		h.AddSample(v)
		after := h.Counts()
		for k := range after {
			if after[k] == before[k] {
				continue
			}
			if v < h.SlotMin(k) || (k < h.NumSlots()-1 && v >= h.SlotMax(k)) {
				t.Fatalf("value %v counted in slot %d [%v, %v)", v, k, h.SlotMin(k), h.SlotMax(k))
			}
		}
	}
}

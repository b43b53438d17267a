package spectrum

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewBoundedCloud(t *testing.T) {
	t.Parallel()

	if _, err := NewBoundedCloud(Point{0}, Point{1, 1}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := NewBoundedCloud(Point{}, Point{}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for empty box, got %v", err)
	}

	c, err := NewBoundedCloud(Point{1, 0}, Point{0, 2})
	if err != nil {
		t.Fatalf("NewBoundedCloud: %v", err)
	}
	if diff := cmp.Diff(Point{0, 0}, c.Min()); diff != "" {
		t.Errorf("Min() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Point{1, 2}, c.Max()); diff != "" {
		t.Errorf("Max() mismatch (-want +got):\n%s", diff)
	}
	if got := c.DiagonalLength(); math.Abs(got-math.Sqrt(5)) > 1e-12 {
		t.Errorf("DiagonalLength() = %v, want sqrt(5)", got)
	}
}

func TestBoundedCloudFiltersAndAggregates(t *testing.T) {
	t.Parallel()
	c, _ := NewBoundedCloud(Point{0, 0}, Point{1, 1})

	a := PointSlice{{0, 0}, {0.5, 0.5}, {2, 0.5}}
	b := PointSlice{{1, 1}, {-0.1, 0.3}}
	if err := c.AddSource(a); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := c.AddSource(b); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	// idempotent
	if err := c.AddSource(a); err != nil {
		t.Fatalf("AddSource again: %v", err)
	}

	if got := len(c.Sources()); got != 2 {
		t.Errorf("Sources() has %d entries, want 2", got)
	}
	if got := c.Size(); got != 3 {
		t.Errorf("Size() = %d, want 3", got)
	}
	want := []Point{{0, 0}, {0.5, 0.5}, {1, 1}}
	if diff := cmp.Diff(want, c.CopyPoints(nil)); diff != "" {
		t.Errorf("CopyPoints mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Point{{1, 1}}, c.CopyPointsFor(b, nil)); diff != "" {
		t.Errorf("CopyPointsFor mismatch (-want +got):\n%s", diff)
	}

	stranger := PointSlice{{0.2, 0.2}}
	if got := c.CopyPointsFor(stranger, []Point{{9, 9}}); len(got) != 1 {
		t.Errorf("unregistered source should leave dst unchanged, got %v", got)
	}

	c.RemoveSource(a)
	c.RemoveSource(a)
	if got := c.Size(); got != 1 {
		t.Errorf("Size() after RemoveSource = %d, want 1", got)
	}
}

func TestBoundedCloudCopiesAreIndependent(t *testing.T) {
	t.Parallel()
	c, _ := NewBoundedCloud(Point{0, 0}, Point{1, 1})
	src := PointSlice{{0.25, 0.25}}
	_ = c.AddSource(src)

	pts := c.CopyPoints(nil)
	pts[0][0] = 0.9
	if src[0][0] != 0.25 {
		t.Errorf("mutating a copy changed the source")
	}
}

func TestBoundedCloudWithinBounds(t *testing.T) {
	t.Parallel()
	c, _ := NewBoundedCloud(Point{0, 0}, Point{1, 1})

	tests := []struct {
		p    Point
		want bool
	}{
		{Point{0, 0}, true},
		{Point{1, 1}, true},
		{Point{0.5, 1.0000001}, false},
		{Point{math.NaN(), 0.5}, false},
		{Point{0.5}, false},
	}
	for _, tt := range tests {
		if got := c.WithinBounds(tt.p); got != tt.want {
			t.Errorf("WithinBounds(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestBoundedCloudSameRegion(t *testing.T) {
	t.Parallel()
	a, _ := NewBoundedCloud(Point{0, 0}, Point{1, 1})
	b, _ := NewBoundedCloud(Point{0, 0}, Point{1 + 1e-7, 1})
	c, _ := NewBoundedCloud(Point{0, 0}, Point{1.01, 1})
	d, _ := NewBoundedCloud(Point{0, 0, 0}, Point{1, 1, 1})

	if !a.SameRegion(b, 1e-5) {
		t.Errorf("regions within tolerance should match")
	}
	if a.SameRegion(c, 1e-5) {
		t.Errorf("regions 1%% apart should not match")
	}
	if a.SameRegion(d, 1e-5) || a.SameRegion(nil, 1e-5) {
		t.Errorf("different dimensions should not match")
	}
}

type countingSource struct {
	n     int
	calls int
}

func (s *countingSource) Size() int { return s.n }
func (s *countingSource) PointAt(i int) Point {
	s.calls++
	return Point{float64(i) / float64(s.n), 0}
}

func TestBoundedCloudPointAtFallback(t *testing.T) {
	t.Parallel()
	c, _ := NewBoundedCloud(Point{0, 0}, Point{1, 1})
	src := &countingSource{n: 4}
	_ = c.AddSource(src)
	_ = c.AddSource(src)

	if got := len(c.CopyPoints(nil)); got != 4 {
		t.Errorf("CopyPoints() returned %d points, want 4", got)
	}
	if src.calls != 4 {
		t.Errorf("expected 4 PointAt calls, got %d", src.calls)
	}
}

type wrappedSource struct{ PointSource }

func TestBoundedCloudWrappedSliceSource(t *testing.T) {
	t.Parallel()
	c, _ := NewBoundedCloud(Point{0, 0}, Point{1, 1})
	src := wrappedSource{PointSlice{{0.1, 0.1}, {0.2, 0.2}}}

	if err := c.AddSource(src); err != nil {
		t.Fatalf("AddSource() error = %v", err)
	}
	if err := c.AddSource(src); err != nil {
		t.Fatalf("second AddSource() error = %v", err)
	}
	if got := len(c.CopyPointsFor(src, nil)); got != 0 {
		t.Errorf("CopyPointsFor() on an unmatched wrapper returned %d points, want 0", got)
	}
	c.RemoveSource(src)

	if got := len(c.Sources()); got != 2 {
		t.Errorf("Sources() has %d entries, want 2 (wrappers without identity are kept)", got)
	}
	if got := len(c.CopyPoints(nil)); got != 4 {
		t.Errorf("CopyPoints() returned %d points, want 4", got)
	}

	ptr := &wrappedSource{PointSlice{{0.3, 0.3}}}
	_ = c.AddSource(ptr)
	_ = c.AddSource(ptr)
	if got := len(c.CopyPointsFor(ptr, nil)); got != 1 {
		t.Errorf("CopyPointsFor() on a pointer wrapper returned %d points, want 1", got)
	}
	c.RemoveSource(ptr)
	if got := len(c.Sources()); got != 2 {
		t.Errorf("Sources() after RemoveSource has %d entries, want 2", got)
	}
}

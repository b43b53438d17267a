package spectrum

import (
	"fmt"
	"math"
	"reflect"
	"sync"
)

// maxSourcePoints bounds the size of a single source; points are indexed
// with 32-bit indices.
const maxSourcePoints = math.MaxUint32

// BoundedCloud aggregates points from several sources, keeping only those
// inside an axis-aligned box.
//
// The source list may be mutated by the owning goroutine while a filler
// snapshots it from another, so every method takes the same mutex.
type BoundedCloud struct {
	mu      sync.Mutex
	sources []PointSource
	min     Point
	max     Point
}

// NewBoundedCloud returns a cloud bounded by the box [min, max]. Coordinates
// given in the wrong order are swapped per dimension.
func NewBoundedCloud(min, max Point) (*BoundedCloud, error) {
	if len(min) != len(max) {
		return nil, fmt.Errorf("bounding box min has %d dims, max has %d: %w", len(min), len(max), ErrDimensionMismatch)
	}
	if len(min) == 0 {
		return nil, fmt.Errorf("bounding box without dimensions: %w", ErrDimensionMismatch)
	}
	lo, hi := min.Clone(), max.Clone()
	for d := range lo {
		if lo[d] > hi[d] {
			lo[d], hi[d] = hi[d], lo[d]
		}
	}
	return &BoundedCloud{min: lo, max: hi}, nil
}

// AddSource registers src. Adding a source that is already present is a no-op.
func (c *BoundedCloud) AddSource(src PointSource) error {
	if src == nil {
		return nil
	}
	if n := src.Size(); uint64(n) > maxSourcePoints {
		return fmt.Errorf("source with %d points: %w", n, ErrTooManyPoints)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOf(src) < 0 {
		c.sources = append(c.sources, src)
	}
	return nil
}

// RemoveSource unregisters src. Removing an absent source is a no-op.
func (c *BoundedCloud) RemoveSource(src PointSource) {
	if src == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ix := c.indexOf(src); ix >= 0 {
		c.sources = append(c.sources[:ix], c.sources[ix+1:]...)
	}
}

// Sources returns a copy of the registered source list.
func (c *BoundedCloud) Sources() []PointSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PointSource, len(c.sources))
	copy(out, c.sources)
	return out
}

// WithinBounds reports whether every coordinate of p lies in the closed
// interval of its dimension.
func (c *BoundedCloud) WithinBounds(p Point) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.withinBounds(p)
}

// Size counts in-bounds points over all sources with a full scan. It is
// meant for sizing, not for the distance loop.
func (c *BoundedCloud) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, src := range c.sources {
		for i := 0; i < src.Size(); i++ {
			if c.withinBounds(src.PointAt(i)) {
				n++
			}
		}
	}
	return n
}

// CopyPoints appends the in-bounds points of every source to dst, in source
// order then point order.
func (c *BoundedCloud) CopyPoints(dst []Point) []Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, src := range c.sources {
		dst = c.copySourcePoints(src, dst)
	}
	return dst
}

// CopyPointsFor appends the in-bounds points of src to dst. Sources that are
// not registered leave dst unchanged.
func (c *BoundedCloud) CopyPointsFor(src PointSource, dst []Point) []Point {
	if src == nil {
		return dst
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOf(src) < 0 {
		return dst
	}
	return c.copySourcePoints(src, dst)
}

// Dim returns the dimension of the bounding box.
func (c *BoundedCloud) Dim() int { return len(c.min) }

// Min returns a copy of the lower corner.
func (c *BoundedCloud) Min() Point { return c.min.Clone() }

// Max returns a copy of the upper corner.
func (c *BoundedCloud) Max() Point { return c.max.Clone() }

// DiagonalLength returns ||max - min||, the natural histogram range for
// distances between in-bounds points.
func (c *BoundedCloud) DiagonalLength() float64 {
	var sum float64
	for d := range c.min {
		delta := c.max[d] - c.min[d]
		sum += delta * delta
	}
	return math.Sqrt(sum)
}

// SameRegion reports whether both clouds have the same box within tol,
// relative to the magnitude of the coordinates.
func (c *BoundedCloud) SameRegion(other *BoundedCloud, tol float64) bool {
	if other == nil || len(c.min) != len(other.min) {
		return false
	}
	return approxEqual(c.min, other.min, tol) && approxEqual(c.max, other.max, tol)
}

func approxEqual(a, b Point, tol float64) bool {
	var diff, na, nb float64
	for i := range a {
		d := a[i] - b[i]
		diff += d * d
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	return math.Sqrt(diff) <= tol*math.Max(1, math.Sqrt(math.Min(na, nb)))
}

func (c *BoundedCloud) withinBounds(p Point) bool {
	if len(p) < len(c.min) {
		return false
	}
	for d := range c.min {
		if !(c.min[d] <= p[d] && p[d] <= c.max[d]) {
			return false
		}
	}
	return true
}

func (c *BoundedCloud) copySourcePoints(src PointSource, dst []Point) []Point {
	if copier, ok := src.(PointCopier); ok {
		var all []Point
		all = copier.CopyPoints(all)
		for _, p := range all {
			if c.withinBounds(p) {
				dst = append(dst, p)
			}
		}
		return dst
	}
	for i := 0; i < src.Size(); i++ {
		if p := src.PointAt(i); c.withinBounds(p) {
			dst = append(dst, p.Clone())
		}
	}
	return dst
}

func (c *BoundedCloud) indexOf(src PointSource) int {
	for i, s := range c.sources {
		if sameSource(s, src) {
			return i
		}
	}
	return -1
}

// sameSource compares sources by identity. Slice-backed sources are not
// comparable with ==, so they match on backing array and length instead.
// A comparable type can still hold an uncomparable value (a struct
// embedding a PointSlice), so the check runs on the dynamic values; such
// values never match.
func sameSource(a, b PointSource) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Comparable() && vb.Comparable() {
		return a == b
	}
	if va.Kind() == reflect.Slice {
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	return false
}

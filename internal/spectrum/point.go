package spectrum

import "errors"

var (
	// ErrDimensionMismatch is returned when points or regions of different
	// dimension are combined.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrTooManyPoints is returned when a point source holds more points than
	// a cloud can index.
	ErrTooManyPoints = errors.New("too many points, can't index them")
)

// Point is a fixed-dimension coordinate tuple, treated as an immutable value
// once handed out by a source.
type Point []float64

// Clone returns an independent copy of p.
func (p Point) Clone() Point {
	if p == nil {
		return nil
	}
	out := make(Point, len(p))
	copy(out, p)
	return out
}

// Dim returns the number of coordinates.
func (p Point) Dim() int { return len(p) }

// PointSource is the contract the core consumes. Implementations are owned
// elsewhere. PointAt is valid for 0 <= i < Size() and callers must not
// modify the returned point.
type PointSource interface {
	Size() int
	PointAt(i int) Point
}

// PointCopier is implemented by sources that can bulk-append their points.
type PointCopier interface {
	CopyPoints(dst []Point) []Point
}

// PointSlice adapts an in-memory slice to PointSource. Fillers sweep over a
// PointSlice snapshot rather than over live sources.
//
// PointAt returns the stored point without copying, so the hot distance loop
// does not allocate; callers must not modify it.
type PointSlice []Point

// Size implements PointSource.
func (s PointSlice) Size() int { return len(s) }

// PointAt implements PointSource.
func (s PointSlice) PointAt(i int) Point { return s[i] }

// CopyPoints implements PointCopier.
func (s PointSlice) CopyPoints(dst []Point) []Point {
	for _, p := range s {
		dst = append(dst, p.Clone())
	}
	return dst
}

package cluster

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateHull is returned when a hull cannot be the image of the unit
// square under a projective map (collinear or coincident corners).
var ErrDegenerateHull = errors.New("degenerate hull")

// Quad is a quadrilateral given as its corners p00, p10, p11, p01: the
// images of (0,0), (1,0), (1,1) and (0,1).
type Quad [4][2]float64

// UnitSquare is the identity hull.
var UnitSquare = Quad{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

// DefaultHull is the hull new clusters start with: the upper-right quarter
// strip of the unit square.
var DefaultHull = Quad{{0.75, 0}, {1, 0}, {1, 0.25}, {0.75, 0.25}}

// Distortion is the projective map taking the unit square onto a Quad:
//
//	x' = (a*x + b*y + c) / (g*x + h*y + 1)
//	y' = (d*x + e*y + f) / (g*x + h*y + 1)
type Distortion struct {
	a, b, c, d, e, f, g, h float64
}

// Identity leaves points unchanged.
var Identity = Distortion{a: 1, e: 1}

// NewDistortion solves for the map sending UnitSquare onto q.
func NewDistortion(q Quad) (Distortion, error) {
	A := mat.NewDense(8, 8, nil)
	rhs := mat.NewVecDense(8, nil)
	for k := 0; k < 4; k++ {
		u, v := UnitSquare[k][0], UnitSquare[k][1]
		X, Y := q[k][0], q[k][1]
		A.SetRow(2*k, []float64{u, v, 1, 0, 0, 0, -u * X, -v * X})
		A.SetRow(2*k+1, []float64{0, 0, 0, u, v, 1, -u * Y, -v * Y})
		rhs.SetVec(2*k, X)
		rhs.SetVec(2*k+1, Y)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(A, rhs); err != nil {
		return Distortion{}, fmt.Errorf("hull %v: %v: %w", q, err, ErrDegenerateHull)
	}
	dist := Distortion{
		a: sol.AtVec(0), b: sol.AtVec(1), c: sol.AtVec(2),
		d: sol.AtVec(3), e: sol.AtVec(4), f: sol.AtVec(5),
		g: sol.AtVec(6), h: sol.AtVec(7),
	}
	// the map must stay finite over the whole square
	for _, p := range UnitSquare {
		if w := dist.g*p[0] + dist.h*p[1] + 1; w <= 0 || math.IsNaN(w) {
			return Distortion{}, fmt.Errorf("hull %v folds over: %w", q, ErrDegenerateHull)
		}
	}
	return dist, nil
}

// Apply maps (x, y) from the unit square into the hull.
func (t Distortion) Apply(x, y float64) (float64, float64) {
	w := t.g*x + t.h*y + 1
	return (t.a*x + t.b*y + t.c) / w, (t.d*x + t.e*y + t.f) / w
}

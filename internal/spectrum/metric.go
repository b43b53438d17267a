package spectrum

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/distance.spectrum/internal/monitoring"
)

// Metric names accepted by MetricByName.
const (
	MetricEuclidean   = "euclidean"
	MetricMahalanobis = "mahalanobis"
)

// ErrUnknownMetric is returned by MetricByName for unsupported names.
var ErrUnknownMetric = errors.New("unknown distance metric")

// Metric computes a scalar distance between two points of equal dimension.
type Metric interface {
	Distance(p, q Point) float64
}

// StatsMetric is implemented by metrics whose distance depends on statistics
// of the point population. ComputeDistances calls Update once per sweep.
type StatsMetric interface {
	Metric
	Update(src PointSource)
}

// MetricFactory returns a fresh metric for every sweep so that stateful
// metrics are never shared between fillers.
type MetricFactory func() Metric

// MetricByName returns a factory for the named metric.
func MetricByName(name string) (MetricFactory, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", MetricEuclidean, "l2":
		return func() Metric { return Euclidean{} }, nil
	case MetricMahalanobis:
		return func() Metric { return NewMahalanobis() }, nil
	default:
		return nil, fmt.Errorf("metric %q: %w", name, ErrUnknownMetric)
	}
}

// Euclidean is the L2 distance ||p - q||.
type Euclidean struct{}

// Distance implements Metric.
func (Euclidean) Distance(p, q Point) float64 {
	return floats.Distance(p, q, 2)
}

// Mahalanobis is sqrt((p-q) * inv(S) * (p-q)^T) where S is the sample
// covariance of the bound point source.
//
// Update only binds the source and marks the cached statistics dirty; the
// covariance is recomputed on the first Distance call afterwards, so a sweep
// pays for it once rather than per pair.
type Mahalanobis struct {
	mu     sync.Mutex
	src    PointSource
	dirty  bool
	dim    int
	covInv *mat.SymDense
	mean   []float64

	// scratch buffers reused across Distance calls
	diff *mat.VecDense
}

// NewMahalanobis returns a metric with identity covariance and zero mean
// until a source is bound.
func NewMahalanobis() *Mahalanobis {
	return &Mahalanobis{}
}

// Update binds src as the statistics source and marks the cache dirty.
// A nil source is ignored.
func (m *Mahalanobis) Update(src PointSource) {
	if src == nil {
		return
	}
	m.mu.Lock()
	m.markDirty(src)
	m.mu.Unlock()
}

// Distance implements Metric.
func (m *Mahalanobis) Distance(p, q Point) float64 {
	if len(p) == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureFresh(len(p))

	for i := range p {
		m.diff.SetVec(i, p[i]-q[i])
	}
	d2 := mat.Inner(m.diff, m.covInv, m.diff)
	if d2 < 0 {
		// rounding on a near-singular inverse
		d2 = 0
	}
	return math.Sqrt(d2)
}

// Mean returns a copy of the cached mean vector, refreshing it first if the
// statistics are dirty.
func (m *Mahalanobis) Mean(dim int) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureFresh(dim)
	out := make([]float64, len(m.mean))
	copy(out, m.mean)
	return out
}

// InverseCovariance returns a copy of the cached inverse covariance.
func (m *Mahalanobis) InverseCovariance(dim int) *mat.SymDense {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureFresh(dim)
	out := mat.NewSymDense(m.dim, nil)
	out.CopySym(m.covInv)
	return out
}

func (m *Mahalanobis) markDirty(src PointSource) {
	m.src = src
	m.dirty = true
}

// ensureFresh recomputes the statistics when dirty or when the dimension of
// the points changed. Callers hold m.mu.
func (m *Mahalanobis) ensureFresh(dim int) {
	if dim < 1 {
		dim = 1
	}
	if m.covInv != nil && !m.dirty && m.dim == dim {
		return
	}
	m.dim = dim
	m.diff = mat.NewVecDense(dim, nil)
	m.covInv = identity(dim)
	m.mean = make([]float64, dim)
	m.dirty = false

	if m.src == nil {
		return
	}
	n := m.src.Size()
	switch {
	case n == 1:
		copy(m.mean, m.src.PointAt(0))
		return
	case n < 2:
		return
	}

	data := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		data.SetRow(i, m.src.PointAt(i)[:dim])
	}
	col := make([]float64, n)
	for j := 0; j < dim; j++ {
		m.mean[j] = stat.Mean(mat.Col(col, j, data), nil)
	}

	// unbiased estimator, divides by n-1
	cov := mat.NewSymDense(dim, nil)
	stat.CovarianceMatrix(cov, data, nil)

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		monitoring.Logf("[spectrum] covariance of %d points is not positive definite, using identity", n)
		return
	}
	inv := mat.NewSymDense(dim, nil)
	if err := chol.InverseTo(inv); err != nil {
		monitoring.Logf("[spectrum] covariance inverse failed: %v, using identity", err)
		return
	}
	m.covInv = inv
}

func identity(dim int) *mat.SymDense {
	id := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		id.SetSym(i, i, 1)
	}
	return id
}

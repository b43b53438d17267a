package cluster

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/banshee-data/distance.spectrum/internal/spectrum"
)

// Palette is the colour rotation for new clusters.
var Palette = []string{"#F00", "#0F0", "#33F", "#800", "#C0C", "#0CC", "#CC0", "#366"}

// Model owns a set of clusters and the BoundedCloud that aggregates them.
//
// Every change to the cluster set or to a member's points is bracketed by
// the prechange and changed hooks, which are called without the model lock.
type Model struct {
	cloud *spectrum.BoundedCloud

	mu          sync.Mutex
	clusters    []*Cluster
	rng         *rand.Rand
	nextColor   int
	onPrechange []func(*Model)
	onChanged   []func(*Model)
}

// NewModel returns an empty model over the unit square. Clusters created
// through it draw from generators derived from seed.
func NewModel(seed int64) *Model {
	m, err := NewModelWithRegion(spectrum.Point{0, 0}, spectrum.Point{1, 1}, seed)
	if err != nil {
		panic(err)
	}
	return m
}

// NewModelWithRegion returns an empty model bounded by [min, max].
func NewModelWithRegion(min, max spectrum.Point, seed int64) (*Model, error) {
	cloud, err := spectrum.NewBoundedCloud(min, max)
	if err != nil {
		return nil, err
	}
	return &Model{cloud: cloud, rng: rand.New(rand.NewSource(seed))}, nil
}

// Cloud returns the aggregated cloud, suitable for a DiffCollector side.
func (m *Model) Cloud() *spectrum.BoundedCloud { return m.cloud }

// OnPrechange registers fn to run before any point of the model changes.
func (m *Model) OnPrechange(fn func(*Model)) {
	m.mu.Lock()
	m.onPrechange = append(m.onPrechange, fn)
	m.mu.Unlock()
}

// OnChanged registers fn to run after points of the model changed.
func (m *Model) OnChanged(fn func(*Model)) {
	m.mu.Lock()
	m.onChanged = append(m.onChanged, fn)
	m.mu.Unlock()
}

// CreateCluster generates a cluster of population draws and adds it to the
// model. A nil normal makes a uniform cluster.
func (m *Model) CreateCluster(population int, normal *NormalParams) (*Cluster, error) {
	m.mu.Lock()
	rng := rand.New(rand.NewSource(m.rng.Int63()))
	color := Palette[m.nextColor%len(Palette)]
	m.nextColor++
	m.mu.Unlock()

	c := New(rng, normal)
	c.SetColor(color)
	c.Fill(population)
	if err := m.AddCluster(c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddCluster adds an existing cluster, typically one restored from a
// workspace. Adding a member again is a no-op.
func (m *Model) AddCluster(c *Cluster) error {
	if c == nil {
		return fmt.Errorf("nil cluster")
	}
	if m.contains(c) {
		return nil
	}
	m.fire(AboutToChange)
	err := m.cloud.AddSource(c)
	if err == nil {
		m.mu.Lock()
		m.clusters = append(m.clusters, c)
		m.mu.Unlock()
		c.SetOnChange(m.clusterChanged)
	}
	m.fire(Changed)
	return err
}

// RemoveCluster detaches c from the model. It reports whether c was a member.
func (m *Model) RemoveCluster(c *Cluster) bool {
	if c == nil || !m.contains(c) {
		return false
	}
	m.fire(AboutToChange)
	m.mu.Lock()
	for i, member := range m.clusters {
		if member == c {
			m.clusters = append(m.clusters[:i], m.clusters[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	m.cloud.RemoveSource(c)
	c.SetOnChange(nil)
	m.fire(Changed)
	return true
}

// Clusters returns the members in creation order.
func (m *Model) Clusters() []*Cluster {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Cluster, len(m.clusters))
	copy(out, m.clusters)
	return out
}

// ClusterPoints returns the in-region points of one member.
func (m *Model) ClusterPoints(c *Cluster) []spectrum.Point {
	if c == nil {
		return nil
	}
	return m.cloud.CopyPointsFor(c, nil)
}

func (m *Model) contains(c *Cluster) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range m.clusters {
		if member == c {
			return true
		}
	}
	return false
}

func (m *Model) clusterChanged(c *Cluster, phase Phase) {
	if m.contains(c) {
		m.fire(phase)
	}
}

func (m *Model) fire(phase Phase) {
	m.mu.Lock()
	hooks := m.onChanged
	if phase == AboutToChange {
		hooks = m.onPrechange
	}
	hooks = append(([]func(*Model))(nil), hooks...)
	m.mu.Unlock()
	for _, fn := range hooks {
		fn(m)
	}
}

// Bind makes the model stop and restart one side of a collector around
// every change. The collector must have been built on m.Cloud().
func (m *Model) Bind(dc *spectrum.DiffCollector, side spectrum.Side) {
	m.OnPrechange(func(*Model) { dc.PointsAboutToChange(side) })
	m.OnChanged(func(*Model) { dc.PointsChanged(side) })
}

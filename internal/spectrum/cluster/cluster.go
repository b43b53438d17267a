// Package cluster generates the point clusters that feed the spectrum
// clouds. A cluster draws raw points in the unit square and exposes them
// through a projective distortion onto a user-chosen hull; a Model groups
// clusters into one BoundedCloud and reports changes so a DiffCollector can
// stop and restart its sweeps around them.
package cluster

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/distance.spectrum/internal/spectrum"
)

// NormalParams selects a normal cluster: N(0, Deviation) on each axis,
// centred on (0.5, 0.5), keeping only draws within ClipRadius of the centre.
type NormalParams struct {
	Deviation  float64 `json:"deviation"`
	ClipRadius float64 `json:"clip_radius"`
}

// Phase tells a change hook whether the points are about to change or have
// changed.
type Phase int

const (
	AboutToChange Phase = iota
	Changed
)

// Cluster is a 2-D point source. Raw points live in the unit square and
// PointAt returns them through the current distortion.
type Cluster struct {
	id string

	mu       sync.RWMutex
	raw      []spectrum.Point
	hull     Quad
	dist     Distortion
	normal   *NormalParams
	color    string
	rng      *rand.Rand
	onChange func(*Cluster, Phase)
}

// New returns an empty cluster with DefaultHull. A nil normal makes it a
// uniform cluster. rng is owned by the cluster from now on.
func New(rng *rand.Rand, normal *NormalParams) *Cluster {
	c := &Cluster{
		id:    uuid.NewString(),
		hull:  DefaultHull,
		color: Palette[0],
		rng:   rng,
	}
	if normal != nil {
		n := *normal
		c.normal = &n
	}
	dist, err := NewDistortion(DefaultHull)
	if err != nil {
		panic(err)
	}
	c.dist = dist
	return c
}

// Restore rebuilds a stored cluster with its original id and raw points.
func Restore(id string, raw []spectrum.Point, hull Quad, normal *NormalParams, color string) (*Cluster, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("cluster id %q: %w", id, err)
	}
	dist, err := NewDistortion(hull)
	if err != nil {
		return nil, err
	}
	c := &Cluster{id: id, hull: hull, dist: dist, color: color}
	if normal != nil {
		n := *normal
		c.normal = &n
	}
	c.raw = make([]spectrum.Point, 0, len(raw))
	for i, p := range raw {
		if len(p) != 2 {
			return nil, fmt.Errorf("cluster %s point %d has %d dims: %w", id, i, len(p), spectrum.ErrDimensionMismatch)
		}
		c.raw = append(c.raw, p.Clone())
	}
	return c, nil
}

// ID returns the cluster's stable identifier.
func (c *Cluster) ID() string { return c.id }

// SetOnChange installs the change hook. It is called without the cluster
// lock held, before and after every mutation.
func (c *Cluster) SetOnChange(fn func(*Cluster, Phase)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Cluster) notify(phase Phase) {
	c.mu.RLock()
	fn := c.onChange
	c.mu.RUnlock()
	if fn != nil {
		fn(c, phase)
	}
}

// Fill draws n more points. Normal draws outside the clip radius are
// dropped without being replaced, so it returns how many points were added.
func (c *Cluster) Fill(n int) int {
	if n <= 0 {
		return 0
	}
	c.notify(AboutToChange)
	c.mu.Lock()
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	before := len(c.raw)
	for ; n > 0; n-- {
		if c.normal == nil {
			c.raw = append(c.raw, spectrum.Point{c.rng.Float64(), c.rng.Float64()})
			continue
		}
		x := c.rng.NormFloat64() * c.normal.Deviation
		y := c.rng.NormFloat64() * c.normal.Deviation
		if x*x+y*y <= c.normal.ClipRadius*c.normal.ClipRadius {
			c.raw = append(c.raw, spectrum.Point{x + 0.5, y + 0.5})
		}
	}
	added := len(c.raw) - before
	c.mu.Unlock()
	c.notify(Changed)
	return added
}

// Clear drops every point.
func (c *Cluster) Clear() {
	c.notify(AboutToChange)
	c.mu.Lock()
	c.raw = nil
	c.mu.Unlock()
	c.notify(Changed)
}

// SetHull changes the distortion. A degenerate hull is rejected and the
// previous one kept.
func (c *Cluster) SetHull(q Quad) error {
	dist, err := NewDistortion(q)
	if err != nil {
		return err
	}
	c.notify(AboutToChange)
	c.mu.Lock()
	c.hull = q
	c.dist = dist
	c.mu.Unlock()
	c.notify(Changed)
	return nil
}

// Hull returns the current hull.
func (c *Cluster) Hull() Quad {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hull
}

// Normal returns a copy of the normal parameters, nil for uniform clusters.
func (c *Cluster) Normal() *NormalParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.normal == nil {
		return nil
	}
	n := *c.normal
	return &n
}

// Color returns the display colour.
func (c *Cluster) Color() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.color
}

// SetColor changes the display colour. Points are unaffected.
func (c *Cluster) SetColor(color string) {
	c.mu.Lock()
	c.color = color
	c.mu.Unlock()
}

// Raw returns a copy of the undistorted points.
func (c *Cluster) Raw() []spectrum.Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]spectrum.Point, len(c.raw))
	for i, p := range c.raw {
		out[i] = p.Clone()
	}
	return out
}

// Size implements spectrum.PointSource.
func (c *Cluster) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.raw)
}

// PointAt implements spectrum.PointSource.
func (c *Cluster) PointAt(i int) spectrum.Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	x, y := c.dist.Apply(c.raw[i][0], c.raw[i][1])
	return spectrum.Point{x, y}
}

// CopyPoints implements spectrum.PointCopier under a single read lock.
func (c *Cluster) CopyPoints(dst []spectrum.Point) []spectrum.Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.raw {
		x, y := c.dist.Apply(p[0], p[1])
		dst = append(dst, spectrum.Point{x, y})
	}
	return dst
}

package cluster

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/distance.spectrum/internal/spectrum"
)

func TestDistortionMapsCorners(t *testing.T) {
	t.Parallel()

	hulls := map[string]Quad{
		"unit":    UnitSquare,
		"default": DefaultHull,
		"trapezoid": {
			{0.1, 0.1}, {0.9, 0.2}, {0.7, 0.8}, {0.2, 0.6},
		},
	}
	for name, q := range hulls {
		q := q
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			d, err := NewDistortion(q)
			require.NoError(t, err)
			for k, corner := range UnitSquare {
				x, y := d.Apply(corner[0], corner[1])
				assert.InDelta(t, q[k][0], x, 1e-9, "corner %d x", k)
				assert.InDelta(t, q[k][1], y, 1e-9, "corner %d y", k)
			}
		})
	}
}

func TestDistortionDefaultHullIsAffine(t *testing.T) {
	t.Parallel()
	d, err := NewDistortion(DefaultHull)
	require.NoError(t, err)

	x, y := d.Apply(0.5, 0.5)
	assert.InDelta(t, 0.875, x, 1e-9)
	assert.InDelta(t, 0.125, y, 1e-9)
}

func TestDistortionDegenerate(t *testing.T) {
	t.Parallel()
	_, err := NewDistortion(Quad{{0.5, 0.5}, {0.5, 0.5}, {0.5, 0.5}, {0.5, 0.5}})
	assert.True(t, errors.Is(err, ErrDegenerateHull), "got %v", err)
}

func TestClusterUniformFill(t *testing.T) {
	t.Parallel()
	c := New(rand.New(rand.NewSource(4)), nil)
	require.NoError(t, c.SetHull(UnitSquare))

	added := c.Fill(500)
	assert.Equal(t, 500, added)
	assert.Equal(t, 500, c.Size())
	for _, p := range c.CopyPoints(nil) {
		assert.True(t, p[0] > -1e-9 && p[0] < 1+1e-9 && p[1] > -1e-9 && p[1] < 1+1e-9, "point %v outside unit square", p)
	}
}

func TestClusterNormalFillClips(t *testing.T) {
	t.Parallel()
	c := New(rand.New(rand.NewSource(4)), &NormalParams{Deviation: 0.3, ClipRadius: 0.3})
	require.NoError(t, c.SetHull(UnitSquare))

	added := c.Fill(1000)
	// about 39% of draws fall inside one standard deviation
	assert.Less(t, added, 1000)
	assert.Greater(t, added, 200)
	for _, p := range c.Raw() {
		r := math.Hypot(p[0]-0.5, p[1]-0.5)
		assert.LessOrEqual(t, r, 0.3+1e-12)
	}
}

func TestClusterPointsGoThroughHull(t *testing.T) {
	t.Parallel()
	c := New(rand.New(rand.NewSource(1)), nil)
	c.Fill(100)

	raw := c.Raw()
	for i := 0; i < c.Size(); i++ {
		p := c.PointAt(i)
		assert.InDelta(t, 0.75+0.25*raw[i][0], p[0], 1e-9)
		assert.InDelta(t, 0.25*raw[i][1], p[1], 1e-9)
	}
}

func TestClusterSetHullRejectsDegenerate(t *testing.T) {
	t.Parallel()
	c := New(rand.New(rand.NewSource(1)), nil)
	calls := 0
	c.SetOnChange(func(*Cluster, Phase) { calls++ })

	err := c.SetHull(Quad{{0, 0}, {0, 0}, {0, 0}, {0, 0}})
	require.Error(t, err)
	assert.Equal(t, DefaultHull, c.Hull())
	assert.Zero(t, calls, "rejected hull must not fire hooks")
}

func TestClusterHookOrder(t *testing.T) {
	t.Parallel()
	c := New(rand.New(rand.NewSource(1)), nil)
	var phases []Phase
	var sizes []int
	c.SetOnChange(func(cl *Cluster, p Phase) {
		phases = append(phases, p)
		sizes = append(sizes, cl.Size())
	})

	c.Fill(10)
	c.Clear()

	assert.Equal(t, []Phase{AboutToChange, Changed, AboutToChange, Changed}, phases)
	assert.Equal(t, []int{0, 10, 10, 0}, sizes)
}

func TestRestore(t *testing.T) {
	t.Parallel()
	orig := New(rand.New(rand.NewSource(2)), &NormalParams{Deviation: 0.2, ClipRadius: 1})
	orig.Fill(50)
	orig.SetColor("#0CC")

	c, err := Restore(orig.ID(), orig.Raw(), orig.Hull(), orig.Normal(), orig.Color())
	require.NoError(t, err)
	assert.Equal(t, orig.ID(), c.ID())
	assert.Equal(t, orig.CopyPoints(nil), c.CopyPoints(nil))
	assert.Equal(t, orig.Normal(), c.Normal())

	_, err = Restore("not-a-uuid", nil, UnitSquare, nil, "")
	assert.Error(t, err)

	_, err = Restore(orig.ID(), []spectrum.Point{{1, 2, 3}}, UnitSquare, nil, "")
	assert.True(t, errors.Is(err, spectrum.ErrDimensionMismatch))
}

package aggregate

import (
	"math"
	"sync"
	"testing"

	"github.com/MeKo-Tech/imas/internal/keypoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kp(x, y float64) keypoint.Raw {
	return keypoint.Raw{X: x, Y: y, Tilt: 1}
}

func newTestGrid(t *testing.T, w, h int, rho float64) *Grid {
	t.Helper()
	g, err := NewGrid(w, h, rho)
	require.NoError(t, err)
	t.Cleanup(g.Release)
	return g
}

func TestNewGrid_InvalidRadius(t *testing.T) {
	_, err := NewGrid(10, 10, -1)
	require.Error(t, err)
	_, err = NewGrid(10, 10, math.NaN())
	require.Error(t, err)
}

func TestInsertBatch_CreatesClusters(t *testing.T) {
	g := newTestGrid(t, 50, 50, 2)
	n := g.InsertBatch([]keypoint.Raw{kp(5, 5), kp(20, 20), kp(40, 5)})
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, g.Len())

	gks := g.Compact()
	require.Len(t, gks, 3)
	// Cell order: (5,5), (40,5), (20,20).
	assert.InDelta(t, 40, gks[1].X, 0)
	assert.InDelta(t, 20, gks[2].Y, 0)
}

func TestInsertBatch_SameCellAppends(t *testing.T) {
	g := newTestGrid(t, 20, 20, 0)
	g.InsertBatch([]keypoint.Raw{kp(5.2, 5.1), kp(4.8, 4.9)})
	gks := g.Compact()
	require.Len(t, gks, 1)
	assert.Equal(t, 2, gks[0].Len())
	assert.InDelta(t, 5, gks[0].X, 1e-12)
	assert.InDelta(t, 5, gks[0].Y, 1e-12)
}

func TestInsertBatch_MergesWithinRadius(t *testing.T) {
	g := newTestGrid(t, 30, 30, 2)
	g.InsertBatch([]keypoint.Raw{kp(10, 10), kp(12, 10)})
	gks := g.Compact()
	require.Len(t, gks, 1)
	assert.InDelta(t, 11, gks[0].X, 1e-12)
	assert.InDelta(t, 10, gks[0].Y, 1e-12)
}

func TestInsertBatch_KeepsDistantApart(t *testing.T) {
	g := newTestGrid(t, 30, 30, 2)
	g.InsertBatch([]keypoint.Raw{kp(10, 10), kp(12, 12)})
	assert.Equal(t, 2, g.Len())
}

func TestInsertBatch_Cascades(t *testing.T) {
	g := newTestGrid(t, 40, 40, 3)
	g.InsertBatch([]keypoint.Raw{kp(10, 10), kp(14, 10)})
	require.Equal(t, 2, g.Len())

	// The bridge is within radius of both and pulls them together.
	g.InsertBatch([]keypoint.Raw{kp(12, 10)})
	gks := g.Compact()
	require.Len(t, gks, 1)
	assert.Equal(t, 3, gks[0].Len())
	assert.InDelta(t, 12, gks[0].X, 1e-12)
}

func TestConverge_StopsAtFixedPoint(t *testing.T) {
	g := newTestGrid(t, 40, 40, 3)
	g.InsertBatch([]keypoint.Raw{kp(10, 10), kp(14, 10), kp(30, 30)})
	g.InsertBatch([]keypoint.Raw{kp(12, 10)})
	require.Equal(t, 2, g.Len())

	// Every cluster is already separated, so converging any cell, occupied
	// or not, leaves the grid unchanged.
	before := append([]int32(nil), g.slots...)
	for cell := range g.slots {
		g.converge(cell)
	}
	assert.Equal(t, before, g.slots)
	assert.Equal(t, 2, g.Len())
}

func TestSettle_MovesToEmptyCell(t *testing.T) {
	g := newTestGrid(t, 20, 20, 0)
	g.InsertBatch([]keypoint.Raw{kp(5, 5)})
	from := g.cellOf(5, 5)
	idx := g.slots[from]

	g.arena[idx].Add(kp(8, 5))
	cell := g.settle(idx, from)
	assert.Equal(t, g.cellOf(7, 5), cell)
	assert.Equal(t, idx, g.slots[cell])
	assert.Equal(t, empty, g.slots[from])
}

func TestSettle_MergesIntoOccupant(t *testing.T) {
	// Radius 0 disables neighbour merges, so only relocation can merge.
	g := newTestGrid(t, 20, 20, 0)
	g.InsertBatch([]keypoint.Raw{kp(5, 5), kp(8, 5)})
	require.Equal(t, 2, g.Len())
	from := g.cellOf(5, 5)
	idx := g.slots[from]

	// The centroid moves to 7.5, which rounds onto the other cluster.
	g.arena[idx].Add(kp(10, 5))
	cell := g.settle(idx, from)
	assert.Equal(t, g.cellOf(8, 5), cell)
	assert.Equal(t, empty, g.slots[from])

	gks := g.Compact()
	require.Len(t, gks, 1)
	assert.Equal(t, 3, gks[0].Len())
	assert.InDelta(t, 23.0/3, gks[0].X, 1e-12)
}

func TestInsertBatch_ClampsOutOfRange(t *testing.T) {
	g := newTestGrid(t, 10, 10, 1)
	g.InsertBatch([]keypoint.Raw{kp(9.6, 9.7), kp(-0.4, 0)})
	assert.Equal(t, 2, g.Len())
}

func TestInsertBatch_EmptyGrid(t *testing.T) {
	g := newTestGrid(t, 0, 0, 2)
	assert.Equal(t, 0, g.InsertBatch([]keypoint.Raw{kp(1, 1)}))
	assert.Empty(t, g.Compact())
}

func TestInsertBatch_ArenaReuse(t *testing.T) {
	g := newTestGrid(t, 30, 30, 2)
	g.InsertBatch([]keypoint.Raw{kp(5, 5), kp(6, 5)})
	g.InsertBatch([]keypoint.Raw{kp(20, 20)})
	assert.Equal(t, 2, g.Len())
	assert.LessOrEqual(t, len(g.arena), 2)
}

func TestInsertBatch_Concurrent(t *testing.T) {
	g := newTestGrid(t, 200, 200, 4)
	var wg sync.WaitGroup
	const workers, perBatch = 8, 100
	for w := range workers {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			batch := make([]keypoint.Raw, perBatch)
			for i := range batch {
				batch[i] = kp(float64((i*37+seed*11)%200), float64((i*53+seed*7)%200))
			}
			g.InsertBatch(batch)
		}(w)
	}
	wg.Wait()

	gks := g.Compact()
	assert.Equal(t, workers*perBatch, ComputeStats(gks).Raw)
	assertSeparated(t, gks, 4)
}

func TestComputeStats(t *testing.T) {
	assert.Equal(t, Stats{}, ComputeStats(nil))

	a := keypoint.NewGeneralized(kp(1, 1))
	b := keypoint.NewGeneralized(kp(5, 5))
	b.Add(kp(5, 6))
	b.Add(kp(5, 4))
	s := ComputeStats([]keypoint.Generalized{a, b})
	assert.Equal(t, Stats{Raw: 4, Generalized: 2, MinMembers: 1, MeanMembers: 2, MaxMembers: 3}, s)
	assert.Contains(t, s.String(), "4 keypoints in 2 generalized keypoints")
}

func assertSeparated(t *testing.T, gks []keypoint.Generalized, rho float64) {
	t.Helper()
	for i := range gks {
		for j := i + 1; j < len(gks); j++ {
			dx := math.Round(gks[i].X) - math.Round(gks[j].X)
			dy := math.Round(gks[i].Y) - math.Round(gks[j].Y)
			assert.Greater(t, math.Hypot(dx, dy), rho, "clusters %d and %d", i, j)
		}
	}
}

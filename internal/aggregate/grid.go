// Package aggregate fuses raw detections from many simulated views into
// generalized keypoints using a per-pixel spatial grid.
package aggregate

import (
	"errors"
	"math"
	"sync"

	"github.com/MeKo-Tech/imas/internal/keypoint"
	"github.com/MeKo-Tech/imas/internal/mempool"
)

const empty int32 = -1

type offset struct{ dx, dy int }

// Grid owns the generalized keypoints of one image. Each pixel cell holds
// at most one cluster, the one whose rounded centroid falls on it.
//
// Clusters live in an arena and cells store arena indices, so merging only
// rewrites indices. All exported methods are safe for concurrent use;
// InsertBatch runs as one critical section.
type Grid struct {
	mu sync.Mutex

	width, height int
	radius        float64
	neighbours    []offset

	slots []int32
	arena []keypoint.Generalized
	free  []int32
	live  int
}

// NewGrid creates a grid for a width x height image that merges clusters
// whose cells lie within radius of each other. A grid with no area accepts
// no keypoints.
func NewGrid(width, height int, radius float64) (*Grid, error) {
	if radius < 0 || math.IsNaN(radius) {
		return nil, errors.New("merge radius must not be negative")
	}
	g := &Grid{radius: radius}
	if width > 0 && height > 0 {
		g.width, g.height = width, height
		g.slots = mempool.GetInt32Filled(width*height, empty)
	}
	r := int(math.Floor(radius))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if (dx != 0 || dy != 0) && float64(dx*dx+dy*dy) <= radius*radius {
				g.neighbours = append(g.neighbours, offset{dx, dy})
			}
		}
	}
	return g, nil
}

// Release returns the cell buffer to the pool. The grid must not be used
// afterwards.
func (g *Grid) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	mempool.PutInt32(g.slots)
	g.slots = nil
	g.width, g.height = 0, 0
}

// Len returns the number of live clusters.
func (g *Grid) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.live
}

// InsertBatch adds one view's keypoints and merges until no two clusters lie
// within the merge radius. It returns the number of keypoints placed.
func (g *Grid) InsertBatch(batch []keypoint.Raw) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.slots == nil {
		return 0
	}
	for _, kp := range batch {
		g.insert(kp)
	}
	return len(batch)
}

// Compact returns the live clusters in cell order.
func (g *Grid) Compact() []keypoint.Generalized {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]keypoint.Generalized, 0, g.live)
	for _, idx := range g.slots {
		if idx != empty {
			out = append(out, g.arena[idx])
		}
	}
	return out
}

func (g *Grid) cellOf(x, y float64) int {
	xi := min(max(int(math.Round(x)), 0), g.width-1)
	yi := min(max(int(math.Round(y)), 0), g.height-1)
	return yi*g.width + xi
}

func (g *Grid) clusterCell(idx int32) int {
	c := &g.arena[idx]
	return g.cellOf(c.X, c.Y)
}

func (g *Grid) alloc(c keypoint.Generalized) int32 {
	g.live++
	if n := len(g.free); n > 0 {
		idx := g.free[n-1]
		g.free = g.free[:n-1]
		g.arena[idx] = c
		return idx
	}
	g.arena = append(g.arena, c)
	return int32(len(g.arena) - 1)
}

// absorb merges cluster src into dst and recycles src's arena slot.
func (g *Grid) absorb(dst, src int32) {
	g.arena[dst].Absorb(&g.arena[src])
	g.free = append(g.free, src)
	g.live--
}

func (g *Grid) insert(kp keypoint.Raw) {
	cell := g.cellOf(kp.X, kp.Y)
	idx := g.slots[cell]
	if idx == empty {
		g.slots[cell] = g.alloc(keypoint.NewGeneralized(kp))
	} else {
		g.arena[idx].Add(kp)
		cell = g.settle(idx, cell)
	}
	g.converge(cell)
}

// settle moves the cluster idx, currently registered at cell, to the cell of
// its centroid. An occupied destination absorbs it, which may move the
// occupant in turn. It returns the cell of the surviving cluster.
func (g *Grid) settle(idx int32, cell int) int {
	for {
		target := g.clusterCell(idx)
		if target == cell {
			return cell
		}
		g.slots[cell] = empty
		occupant := g.slots[target]
		if occupant == empty {
			g.slots[target] = idx
			return target
		}
		g.absorb(occupant, idx)
		idx, cell = occupant, target
	}
}

// converge merges the cluster at cell with any neighbour within the merge
// radius until none is left. Only the most recently modified cluster can
// violate the separation, so a single cell is followed.
func (g *Grid) converge(cell int) {
	for {
		idx := g.slots[cell]
		if idx == empty {
			return
		}
		merged := false
		cx, cy := cell%g.width, cell/g.width
		for _, o := range g.neighbours {
			nx, ny := cx+o.dx, cy+o.dy
			if nx < 0 || ny < 0 || nx >= g.width || ny >= g.height {
				continue
			}
			n := ny*g.width + nx
			other := g.slots[n]
			if other == empty {
				continue
			}
			g.slots[n] = empty
			g.absorb(idx, other)
			cell = g.settle(idx, cell)
			merged = true
			break
		}
		if !merged {
			return
		}
	}
}

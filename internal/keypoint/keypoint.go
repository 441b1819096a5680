// Package keypoint defines raw detections, generalized keypoints built from
// them and the pruned descriptor distances used for matching.
package keypoint

// Raw is one detection from one simulated view. Positions are native 0-based
// pixel coordinates, Angle is in radians and Theta (the view rotation) in
// degrees. Size is the support radius used for border rejection.
type Raw struct {
	X     float64    `json:"x"`
	Y     float64    `json:"y"`
	Scale float64    `json:"scale"`
	Angle float64    `json:"angle"`
	Size  float64    `json:"size"`
	Tilt  float64    `json:"t"`
	Theta float64    `json:"theta"`
	Desc  Descriptor `json:"-"`
}

// Generalized is a cluster of raw keypoints judged to be the same physical
// location. X, Y is always the mean of the member positions.
type Generalized struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	SumX    float64 `json:"-"`
	SumY    float64 `json:"-"`
	Members []Raw   `json:"members"`
}

// NewGeneralized starts a cluster from one keypoint.
func NewGeneralized(kp Raw) Generalized {
	return Generalized{X: kp.X, Y: kp.Y, SumX: kp.X, SumY: kp.Y, Members: []Raw{kp}}
}

// Add appends a keypoint and updates the centroid.
func (g *Generalized) Add(kp Raw) {
	g.Members = append(g.Members, kp)
	g.SumX += kp.X
	g.SumY += kp.Y
	g.recenter()
}

// Absorb moves all members of other into g. other is left empty.
func (g *Generalized) Absorb(other *Generalized) {
	g.Members = append(g.Members, other.Members...)
	g.SumX += other.SumX
	g.SumY += other.SumY
	g.recenter()
	*other = Generalized{}
}

// Len returns the number of members.
func (g *Generalized) Len() int { return len(g.Members) }

func (g *Generalized) recenter() {
	n := float64(len(g.Members))
	if n == 0 {
		g.X, g.Y = 0, 0
		return
	}
	g.X = g.SumX / n
	g.Y = g.SumY / n
}

// Distance is the smallest member-to-member descriptor distance between two
// clusters, searched with a shrinking bound. The member indices achieving it
// are returned, or -1, -1 when no pair beats the initial bound.
func Distance(a, b *Generalized, norm Norm, bound float32) (float32, int, int) {
	best := bound
	ia, ib := -1, -1
	for i := range a.Members {
		da := a.Members[i].Desc
		if da == nil {
			continue
		}
		for j := range b.Members {
			db := b.Members[j].Desc
			if db == nil {
				continue
			}
			if d := da.Distance(db, norm, best); d < best {
				best, ia, ib = d, i, j
			}
		}
	}
	return best, ia, ib
}

package matcher

import "github.com/MeKo-Tech/imas/internal/keypoint"

// Correspondence is an accepted match between two raw keypoints. Query and
// Target index the generalized keypoints they were taken from.
type Correspondence struct {
	Query    int          `json:"query"`
	Target   int          `json:"target"`
	A        keypoint.Raw `json:"a"`
	B        keypoint.Raw `json:"b"`
	Distance float32      `json:"distance"`
	Ratio    float32      `json:"ratio"`
}

// RecordLen is the number of fields in a Record.
const RecordLen = 14

// Record flattens the match to x, y, scale, angle, 1, t, theta for each
// image in turn. The fifth field is the tilt along x, always 1.
func (c Correspondence) Record() [RecordLen]float64 {
	return [RecordLen]float64{
		c.A.X, c.A.Y, c.A.Scale, c.A.Angle, 1, c.A.Tilt, c.A.Theta,
		c.B.X, c.B.Y, c.B.Scale, c.B.Angle, 1, c.B.Tilt, c.B.Theta,
	}
}

// Records flattens a match list.
func Records(matches []Correspondence) [][RecordLen]float64 {
	out := make([][RecordLen]float64, len(matches))
	for i, m := range matches {
		out[i] = m.Record()
	}
	return out
}

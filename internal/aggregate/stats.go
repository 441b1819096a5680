package aggregate

import (
	"fmt"

	"github.com/MeKo-Tech/imas/internal/keypoint"
)

// Stats summarises a set of generalized keypoints.
type Stats struct {
	Raw         int     `json:"raw_keypoints"`
	Generalized int     `json:"generalized_keypoints"`
	MinMembers  int     `json:"min_members"`
	MeanMembers float64 `json:"mean_members"`
	MaxMembers  int     `json:"max_members"`
}

// ComputeStats counts members per cluster.
func ComputeStats(gks []keypoint.Generalized) Stats {
	s := Stats{Generalized: len(gks)}
	if len(gks) == 0 {
		return s
	}
	s.MinMembers = gks[0].Len()
	for i := range gks {
		n := gks[i].Len()
		s.Raw += n
		s.MinMembers = min(s.MinMembers, n)
		s.MaxMembers = max(s.MaxMembers, n)
	}
	s.MeanMembers = float64(s.Raw) / float64(len(gks))
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("%d keypoints in %d generalized keypoints (members min %d, mean %.2f, max %d)",
		s.Raw, s.Generalized, s.MinMembers, s.MeanMembers, s.MaxMembers)
}

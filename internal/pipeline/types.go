package pipeline

import (
	"github.com/MeKo-Tech/imas/internal/aggregate"
	"github.com/MeKo-Tech/imas/internal/estimator"
	"github.com/MeKo-Tech/imas/internal/matcher"
)

// Timings records wall time per stage in nanoseconds.
type Timings struct {
	DetectionNs int64 `json:"detection_ns"`
	MatchingNs  int64 `json:"matching_ns"`
	TotalNs     int64 `json:"total_ns"`
}

// MatchResult is the end-to-end outcome for one image pair.
type MatchResult struct {
	Matches []matcher.Correspondence `json:"matches"`
	// Model is the accepted robust model, if any.
	Model *estimator.Model `json:"model,omitempty"`
	// Raw counts matches before robust filtering.
	Raw             int              `json:"raw_matches"`
	Mode            matcher.Mode     `json:"mode"`
	Filter          estimator.Method `json:"filter"`
	StatsA          aggregate.Stats  `json:"stats_a"`
	StatsB          aggregate.Stats  `json:"stats_b"`
	StatsBackground *aggregate.Stats `json:"stats_background,omitempty"`
	Width1          int              `json:"width1"`
	Height1         int              `json:"height1"`
	Width2          int              `json:"width2"`
	Height2         int              `json:"height2"`
	Timings         Timings          `json:"timings"`
}

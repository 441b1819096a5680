package matcher

import (
	"github.com/MeKo-Tech/imas/internal/keypoint"
	"github.com/valyala/fastrand"
)

// ModeFor reports the mode a run with the given background set uses.
func ModeFor(background []keypoint.Generalized) Mode {
	if len(background) > 0 {
		return AContrario
	}
	return Standard
}

// backgroundSubset returns background, or a random subset of
// BackgroundLimit entries when the set is larger.
func (e *Engine) backgroundSubset(background []keypoint.Generalized) []keypoint.Generalized {
	limit := e.cfg.BackgroundLimit
	if limit <= 0 || len(background) <= limit {
		return background
	}
	var rng fastrand.RNG
	if e.cfg.Seed != 0 {
		rng.Seed(e.cfg.Seed)
	}
	idx := make([]int, len(background))
	for i := range idx {
		idx[i] = i
	}
	// partial Fisher-Yates
	for i := 0; i < limit; i++ {
		j := i + int(rng.Uint32n(uint32(len(idx)-i)))
		idx[i], idx[j] = idx[j], idx[i]
	}
	out := make([]keypoint.Generalized, limit)
	for i, k := range idx[:limit] {
		out[i] = background[k]
	}
	return out
}

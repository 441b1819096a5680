package estimator

import (
	"slices"
	"sort"

	"github.com/valyala/fastrand"
)

func newRNG(seed uint32) *fastrand.RNG {
	rng := &fastrand.RNG{}
	if seed != 0 {
		rng.Seed(seed)
	}
	return rng
}

// drawSample fills out with distinct entries of pool. pool must hold at
// least len(out) distinct values.
func drawSample(rng *fastrand.RNG, pool, out []int) {
	n := uint32(len(pool))
	for i := range out {
		for {
			c := pool[rng.Uint32n(n)]
			if !slices.Contains(out[:i], c) {
				out[i] = c
				break
			}
		}
	}
}

func identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

type residual struct {
	err float64
	idx int
}

func computeResiduals(kind Kind, m [9]float64, pairs []Pair, out []residual) {
	for i, p := range pairs {
		out[i] = residual{err: kind.residual(m, p), idx: i}
	}
}

func sortedIndices(res []residual) []int {
	idx := make([]int, len(res))
	for i, r := range res {
		idx[i] = r.idx
	}
	sort.Ints(idx)
	return idx
}

func (k Kind) residual(m [9]float64, p Pair) float64 {
	if k == Homography {
		return transferError(m, p)
	}
	return epipolarError(m, p)
}

func (k Kind) fitMinimal(pairs []Pair, idx []int) ([9]float64, bool) {
	if k == Homography {
		return homographyFromSample(pairs, idx)
	}
	return fitFundamental(pairs, idx)
}

func (k Kind) fit(pairs []Pair, idx []int) ([9]float64, bool) {
	if k == Homography {
		return fitHomography(pairs, idx)
	}
	return fitFundamental(pairs, idx)
}

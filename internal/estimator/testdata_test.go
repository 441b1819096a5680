package estimator

import (
	"math"

	"github.com/valyala/fastrand"
)

var testHomography = [9]float64{
	1.05, 0.08, 12,
	-0.06, 0.97, -7,
	2e-4, -1e-4, 1,
}

func uniform(rng *fastrand.RNG, lo, hi float64) float64 {
	return lo + (hi-lo)*float64(rng.Uint32())/math.MaxUint32
}

// homographyPairs returns good correspondences under h followed by
// outliers displaced at least 40 px from their true position.
func homographyPairs(h [9]float64, good, outliers int, seed uint32) []Pair {
	rng := newRNG(seed)
	pairs := make([]Pair, 0, good+outliers)
	for i := 0; i < good+outliers; i++ {
		x, y := uniform(rng, 10, 310), uniform(rng, 10, 230)
		u, v := applyHomography(h, x, y)
		if i >= good {
			a := uniform(rng, 0, 2*math.Pi)
			r := uniform(rng, 40, 120)
			u += r * math.Cos(a)
			v += r * math.Sin(a)
		}
		pairs = append(pairs, Pair{X1: x, Y1: y, X2: u, Y2: v})
	}
	return pairs
}

// stereoPairs projects random 3D points into two calibrated views.
func stereoPairs(n int, seed uint32) []Pair {
	rng := newRNG(seed)
	const f, cx, cy = 400.0, 160.0, 120.0
	ang := 0.15
	c, s := math.Cos(ang), math.Sin(ang)
	tx, ty, tz := -1.0, 0.2, 0.1

	pairs := make([]Pair, n)
	for i := range pairs {
		X, Y, Z := uniform(rng, -2, 2), uniform(rng, -1.5, 1.5), uniform(rng, 4, 9)
		// second camera rotated about the y axis
		X2 := c*X + s*Z + tx
		Y2 := Y + ty
		Z2 := -s*X + c*Z + tz
		pairs[i] = Pair{
			X1: f*X/Z + cx, Y1: f*Y/Z + cy,
			X2: f*X2/Z2 + cx, Y2: f*Y2/Z2 + cy,
		}
	}
	return pairs
}

package estimator

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// fitFundamental runs the normalised eight-point algorithm over idx and
// enforces rank two.
func fitFundamental(pairs []Pair, idx []int) ([9]float64, bool) {
	if len(idx) < 8 {
		return [9]float64{}, false
	}
	t1, t2 := normalizing(pairs, idx)
	a := mat.NewDense(max(len(idx), 9), 9, nil)
	for i, k := range idx {
		x, y := t1.apply(pairs[k].X1, pairs[k].Y1)
		u, v := t2.apply(pairs[k].X2, pairs[k].Y2)
		a.SetRow(i, []float64{u * x, u * y, u, v * x, v * y, v, x, y, 1})
	}
	fn, ok := nullVector(a)
	if !ok {
		return [9]float64{}, false
	}
	f := mat.NewDense(3, 3, fn[:])
	if !enforceRank2(f) {
		return [9]float64{}, false
	}
	// F = T2^T * F' * T1
	var out mat.Dense
	out.Mul(t2.dense().T(), f)
	out.Mul(&out, t1.dense())
	return normalizeMatrix(&out)
}

// enforceRank2 zeroes the smallest singular value of f in place.
func enforceRank2(f *mat.Dense) bool {
	var svd mat.SVD
	if !svd.Factorize(f, mat.SVDFull) {
		return false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)
	s[2] = 0
	var tmp mat.Dense
	tmp.Mul(&u, mat.NewDiagDense(3, s))
	f.Mul(&tmp, v.T())
	return true
}

// epipolarError is the larger of the two point-to-epipolar-line distances.
func epipolarError(f [9]float64, p Pair) float64 {
	// l2 = F x1
	a2 := f[0]*p.X1 + f[1]*p.Y1 + f[2]
	b2 := f[3]*p.X1 + f[4]*p.Y1 + f[5]
	c2 := f[6]*p.X1 + f[7]*p.Y1 + f[8]
	// l1 = F^T x2
	a1 := f[0]*p.X2 + f[3]*p.Y2 + f[6]
	b1 := f[1]*p.X2 + f[4]*p.Y2 + f[7]
	c1 := f[2]*p.X2 + f[5]*p.Y2 + f[8]

	n2 := math.Hypot(a2, b2)
	n1 := math.Hypot(a1, b1)
	if n1 == 0 || n2 == 0 {
		return math.Inf(1)
	}
	d2 := math.Abs(a2*p.X2+b2*p.Y2+c2) / n2
	d1 := math.Abs(a1*p.X1+b1*p.Y1+c1) / n1
	return math.Max(d1, d2)
}

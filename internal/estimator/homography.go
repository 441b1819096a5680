package estimator

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// homographyFromSample solves the exact homography through four
// conditioned correspondences with h22 fixed to 1.
func homographyFromSample(pairs []Pair, idx []int) ([9]float64, bool) {
	t1, t2 := normalizing(pairs, idx[:4])
	var a [8][8]float64
	var b [8]float64
	for i := range 4 {
		p := pairs[idx[i]]
		x, y := t1.apply(p.X1, p.Y1)
		u, v := t2.apply(p.X2, p.Y2)
		r := 2 * i
		// u = (h00 x + h01 y + h02)/(h20 x + h21 y + 1)
		a[r] = [8]float64{x, y, 1, 0, 0, 0, -x * u, -y * u}
		b[r] = u
		// v = (h10 x + h11 y + h12)/(h20 x + h21 y + 1)
		a[r+1] = [8]float64{0, 0, 0, x, y, 1, -x * v, -y * v}
		b[r+1] = v
	}
	h, ok := solve8x8(a, b)
	if !ok {
		return [9]float64{}, false
	}
	return denormalize(t1, t2, [9]float64{h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], 1})
}

// denormalize maps a homography between conditioned frames back to pixels.
func denormalize(t1, t2 similarity, hn [9]float64) ([9]float64, bool) {
	var hm mat.Dense
	hm.Mul(t2.inverse(), mat.NewDense(3, 3, hn[:]))
	hm.Mul(&hm, t1.dense())
	return normalizeMatrix(&hm)
}

// solve8x8 runs Gauss-Jordan elimination with partial pivoting.
func solve8x8(m [8][8]float64, v [8]float64) ([8]float64, bool) {
	for col := range 8 {
		pivot := findPivotRow(&m, col)
		if pivot < 0 {
			return [8]float64{}, false
		}
		m[col], m[pivot] = m[pivot], m[col]
		v[col], v[pivot] = v[pivot], v[col]

		div := m[col][col]
		for c := col; c < 8; c++ {
			m[col][c] /= div
		}
		v[col] /= div

		for r := range 8 {
			if r == col || m[r][col] == 0 {
				continue
			}
			f := m[r][col]
			for c := col; c < 8; c++ {
				m[r][c] -= f * m[col][c]
			}
			v[r] -= f * v[col]
		}
	}
	return v, true
}

func findPivotRow(m *[8][8]float64, col int) int {
	best, row := 0.0, -1
	for r := col; r < 8; r++ {
		if a := math.Abs(m[r][col]); a > best {
			best, row = a, r
		}
	}
	if best < 1e-12 {
		return -1
	}
	return row
}

// applyHomography maps (x, y); points sent to infinity come back far away.
func applyHomography(h [9]float64, x, y float64) (float64, float64) {
	denom := h[6]*x + h[7]*y + h[8]
	if denom == 0 {
		return -1e9, -1e9
	}
	return (h[0]*x + h[1]*y + h[2]) / denom, (h[3]*x + h[4]*y + h[5]) / denom
}

// transferError is the distance between the mapped point and its match.
func transferError(h [9]float64, p Pair) float64 {
	x, y := applyHomography(h, p.X1, p.Y1)
	return math.Hypot(x-p.X2, y-p.Y2)
}

// fitHomography solves the normalised DLT over the given correspondences.
func fitHomography(pairs []Pair, idx []int) ([9]float64, bool) {
	if len(idx) < 4 {
		return [9]float64{}, false
	}
	t1, t2 := normalizing(pairs, idx)
	rows := max(2*len(idx), 9)
	a := mat.NewDense(rows, 9, nil)
	for i, k := range idx {
		x, y := t1.apply(pairs[k].X1, pairs[k].Y1)
		u, v := t2.apply(pairs[k].X2, pairs[k].Y2)
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	hn, ok := nullVector(a)
	if !ok {
		return [9]float64{}, false
	}
	return denormalize(t1, t2, hn)
}

// nullVector returns the right singular vector of the smallest singular value.
func nullVector(a *mat.Dense) ([9]float64, bool) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return [9]float64{}, false
	}
	var v mat.Dense
	svd.VTo(&v)
	var out [9]float64
	for i := range 9 {
		out[i] = v.At(i, 8)
	}
	return out, true
}

// normalizeMatrix copies m into an array scaled so that m[2][2] == 1.
func normalizeMatrix(m *mat.Dense) ([9]float64, bool) {
	var out [9]float64
	for r := range 3 {
		for c := range 3 {
			out[3*r+c] = m.At(r, c)
		}
	}
	if math.Abs(out[8]) < 1e-15 {
		return out, !math.IsNaN(out[0])
	}
	s := out[8]
	for i := range out {
		out[i] /= s
	}
	return out, true
}

// similarity is an isotropic scale and translation used for conditioning.
type similarity struct {
	s, tx, ty float64
}

// normalizing returns transforms moving each point set's centroid to the
// origin with mean distance sqrt(2).
func normalizing(pairs []Pair, idx []int) (similarity, similarity) {
	var c1x, c1y, c2x, c2y float64
	for _, k := range idx {
		c1x += pairs[k].X1
		c1y += pairs[k].Y1
		c2x += pairs[k].X2
		c2y += pairs[k].Y2
	}
	n := float64(len(idx))
	c1x, c1y, c2x, c2y = c1x/n, c1y/n, c2x/n, c2y/n
	var d1, d2 float64
	for _, k := range idx {
		d1 += math.Hypot(pairs[k].X1-c1x, pairs[k].Y1-c1y)
		d2 += math.Hypot(pairs[k].X2-c2x, pairs[k].Y2-c2y)
	}
	return newSimilarity(c1x, c1y, d1/n), newSimilarity(c2x, c2y, d2/n)
}

func newSimilarity(cx, cy, meanDist float64) similarity {
	s := 1.0
	if meanDist > 0 {
		s = math.Sqrt2 / meanDist
	}
	return similarity{s: s, tx: -s * cx, ty: -s * cy}
}

func (t similarity) apply(x, y float64) (float64, float64) {
	return t.s*x + t.tx, t.s*y + t.ty
}

func (t similarity) dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{t.s, 0, t.tx, 0, t.s, t.ty, 0, 0, 1})
}

func (t similarity) inverse() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1 / t.s, 0, -t.tx / t.s, 0, 1 / t.s, -t.ty / t.s, 0, 0, 1})
}

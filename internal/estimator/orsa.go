package estimator

import (
	"context"
	"errors"
	"math"
	"slices"
	"sort"
)

// ORSA is the a-contrario estimator. Each hypothesis is scored by the
// number of false alarms of its best inlier set under a uniform background
// model; the lowest log10 NFA wins.
type ORSA struct {
	kind      Kind
	precision float64
	maxNFA    float64
	maxIter   int
	seed      uint32
}

var _ Estimator = (*ORSA)(nil)

// NewORSA creates an a-contrario estimator for kind.
func NewORSA(kind Kind, p Params) *ORSA {
	return &ORSA{
		kind:      kind,
		precision: p.Precision,
		maxNFA:    p.MaxNFA,
		maxIter:   p.MaxIterations,
		seed:      p.Seed,
	}
}

// Name implements Estimator.
func (o *ORSA) Name() string { return "orsa-" + o.kind.String() }

// Estimate implements Estimator. Score is the log10 NFA of the returned model.
func (o *ORSA) Estimate(ctx context.Context, pairs []Pair, dims Dims) (*Model, error) {
	model := &Model{Kind: o.kind, Score: math.Inf(1)}
	s := o.kind.sampleSize()
	n := len(pairs)
	if n <= s {
		return model, nil
	}
	if dims.W2 <= 0 || dims.H2 <= 0 {
		return nil, errors.New("second image dimensions must be positive")
	}

	sc := newNFAScorer(o.kind, n, dims)
	rng := newRNG(o.seed)
	pool := identity(n)
	sample := make([]int, s)
	res := make([]residual, n)
	limit := o.maxIter
	reserved := false

	for it := 0; it < limit; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		drawSample(rng, pool, sample)
		m, ok := o.kind.fitMinimal(pairs, sample)
		if !ok {
			continue
		}
		nfa, k := sc.best(o.kind, m, pairs, res, o.precision)
		if k == 0 || nfa >= model.Score {
			continue
		}
		model.Score = nfa
		model.Matrix = m
		model.Inliers = sortedIndices(res[:k])
		if nfa < 0 {
			// Meaningful: spend the reserve sampling from the inliers only.
			pool = slices.Clone(model.Inliers)
			if !reserved {
				reserved = true
				limit = min(limit, it+1+o.maxIter/10)
			}
		}
	}

	if model.Inliers != nil {
		if m, ok := o.kind.fit(pairs, model.Inliers); ok {
			if nfa, k := sc.best(o.kind, m, pairs, res, o.precision); k > 0 && nfa <= model.Score {
				model.Score = nfa
				model.Matrix = m
				model.Inliers = sortedIndices(res[:k])
			}
		}
	}
	model.Accepted = model.Inliers != nil && model.Score < o.maxNFA
	return model, nil
}

// nfaScorer holds the per-problem constants of the NFA computation.
type nfaScorer struct {
	s         int
	logAlpha0 float64
	// mult is the exponent of the residual in the false alarm probability.
	mult  float64
	logE0 float64
	logCn []float64 // log10 C(n, k)
	logCk []float64 // log10 C(k, s)
}

func newNFAScorer(kind Kind, n int, dims Dims) *nfaScorer {
	s := kind.sampleSize()
	area := float64(dims.W2) * float64(dims.H2)
	sc := &nfaScorer{
		s:     s,
		logE0: math.Log10(float64(n - s)),
		logCn: make([]float64, n+1),
		logCk: make([]float64, n+1),
	}
	if kind == Homography {
		// A point falls within distance e of its prediction with probability pi e^2 / A.
		sc.logAlpha0 = math.Log10(math.Pi / area)
		sc.mult = 2
	} else {
		// ... and within distance e of a line with probability 2 D e / A.
		diag := math.Hypot(float64(dims.W2), float64(dims.H2))
		sc.logAlpha0 = math.Log10(2 * diag / area)
		sc.mult = 1
	}
	for k := 0; k <= n; k++ {
		sc.logCn[k] = logCombi(n, k)
		sc.logCk[k] = logCombi(k, s)
	}
	return sc
}

// best sorts residuals and returns the lowest log10 NFA over inlier counts
// k > s together with that k, or k == 0 if no count qualifies. res is
// filled with the sorted residuals.
func (sc *nfaScorer) best(kind Kind, m [9]float64, pairs []Pair, res []residual, precision float64) (float64, int) {
	computeResiduals(kind, m, pairs, res)
	sort.Slice(res, func(i, j int) bool { return res[i].err < res[j].err })

	bestNFA, bestK := math.Inf(1), 0
	for k := sc.s + 1; k <= len(res); k++ {
		e := res[k-1].err
		if math.IsInf(e, 0) || math.IsNaN(e) || (precision > 0 && e > precision) {
			break
		}
		logAlpha := math.Min(sc.logAlpha0+sc.mult*math.Log10(math.Max(e, 1e-12)), 0)
		nfa := sc.logE0 + logAlpha*float64(k-sc.s) + sc.logCn[k] + sc.logCk[k]
		if nfa < bestNFA {
			bestNFA, bestK = nfa, k
		}
	}
	return bestNFA, bestK
}

// logCombi returns log10 of the binomial coefficient C(n, k).
func logCombi(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	a, _ := math.Lgamma(float64(n + 1))
	b, _ := math.Lgamma(float64(k + 1))
	c, _ := math.Lgamma(float64(n - k + 1))
	return (a - b - c) / math.Ln10
}

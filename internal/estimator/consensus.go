package estimator

import (
	"context"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ConsensusParams configure the sampling-consensus estimator. They can be
// loaded from a YAML file.
type ConsensusParams struct {
	Threshold     float64 `yaml:"threshold"`
	Confidence    float64 `yaml:"confidence"`
	MaxIterations int     `yaml:"max_iterations"`
	MinInliers    int     `yaml:"min_inliers"`
	Refine        bool    `yaml:"refine"`
}

// DefaultConsensusParams derives consensus parameters from p.
func DefaultConsensusParams(p Params) ConsensusParams {
	return ConsensusParams{
		Threshold:     p.Threshold,
		Confidence:    0.99,
		MaxIterations: p.MaxIterations,
		Refine:        true,
	}
}

// LoadConsensusParams overlays the YAML file at path onto base. Keys absent
// from the file keep their base value.
func LoadConsensusParams(path string, base ConsensusParams) (ConsensusParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("%w: %w", ErrEstimatorConfig, err)
	}
	out := base
	if err := yaml.Unmarshal(data, &out); err != nil {
		return base, fmt.Errorf("%w: parse %s: %w", ErrEstimatorConfig, path, err)
	}
	if err := out.validate(); err != nil {
		return base, fmt.Errorf("%w: %s: %w", ErrEstimatorConfig, path, err)
	}
	return out, nil
}

func (c ConsensusParams) validate() error {
	switch {
	case c.Threshold <= 0:
		return fmt.Errorf("threshold must be positive, got %v", c.Threshold)
	case c.Confidence <= 0 || c.Confidence >= 1:
		return fmt.Errorf("confidence must be in (0, 1), got %v", c.Confidence)
	case c.MaxIterations <= 0:
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	case c.MinInliers < 0:
		return fmt.Errorf("min_inliers must not be negative, got %d", c.MinInliers)
	}
	return nil
}

// Consensus is a threshold-based sampling-consensus estimator with an
// adaptive iteration count.
type Consensus struct {
	kind   Kind
	params ConsensusParams
	seed   uint32
}

var _ Estimator = (*Consensus)(nil)

// NewConsensus creates a sampling-consensus estimator for kind. When
// p.ConsensusConfig is set the file must exist and parse.
func NewConsensus(kind Kind, p Params) (*Consensus, error) {
	cp := DefaultConsensusParams(p)
	if p.ConsensusConfig != "" {
		var err error
		if cp, err = LoadConsensusParams(p.ConsensusConfig, cp); err != nil {
			return nil, err
		}
	} else if err := cp.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEstimatorConfig, err)
	}
	return &Consensus{kind: kind, params: cp, seed: p.Seed}, nil
}

// Name implements Estimator.
func (c *Consensus) Name() string { return "usac-" + c.kind.String() }

// Params returns the effective parameters.
func (c *Consensus) Params() ConsensusParams { return c.params }

// Estimate implements Estimator. Score is the inlier count.
func (c *Consensus) Estimate(ctx context.Context, pairs []Pair, _ Dims) (*Model, error) {
	model := &Model{Kind: c.kind}
	s := c.kind.sampleSize()
	n := len(pairs)
	if n < s {
		return model, nil
	}

	rng := newRNG(c.seed)
	pool := identity(n)
	sample := make([]int, s)
	res := make([]residual, n)
	limit := c.params.MaxIterations

	for it := 0; it < limit; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		drawSample(rng, pool, sample)
		m, ok := c.kind.fitMinimal(pairs, sample)
		if !ok {
			continue
		}
		inliers := c.inliers(m, pairs, res)
		if len(inliers) <= len(model.Inliers) {
			continue
		}
		model.Matrix = m
		model.Inliers = inliers
		limit = min(limit, adaptiveIterations(c.params.Confidence, float64(len(inliers))/float64(n), s))
	}

	if c.params.Refine && len(model.Inliers) >= s {
		if m, ok := c.kind.fit(pairs, model.Inliers); ok {
			if refined := c.inliers(m, pairs, res); len(refined) >= len(model.Inliers) {
				model.Matrix = m
				model.Inliers = refined
			}
		}
	}
	model.Score = float64(len(model.Inliers))
	model.Accepted = len(model.Inliers) > 0 && len(model.Inliers) >= c.params.MinInliers
	return model, nil
}

func (c *Consensus) inliers(m [9]float64, pairs []Pair, res []residual) []int {
	computeResiduals(c.kind, m, pairs, res)
	var out []int
	for _, r := range res {
		if r.err <= c.params.Threshold {
			out = append(out, r.idx)
		}
	}
	return out
}

// adaptiveIterations is the number of samples needed to draw one
// all-inlier sample with the given confidence at inlier ratio w.
func adaptiveIterations(confidence, w float64, s int) int {
	ws := math.Pow(w, float64(s))
	switch {
	case ws >= 1:
		return 1
	case ws <= 0:
		return math.MaxInt
	}
	n := math.Log(1-confidence) / math.Log(1-ws)
	if n >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Ceil(n))
}

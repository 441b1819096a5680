// Package matcher pairs generalized keypoints of two images with a nearest
// neighbour distance ratio test and hands the result to a robust filter.
package matcher

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"

	"github.com/MeKo-Tech/imas/internal/estimator"
	"github.com/MeKo-Tech/imas/internal/keypoint"
)

// Mode tells how the second nearest distance was obtained.
type Mode int

const (
	// Standard takes the second nearest neighbour from the target set.
	Standard Mode = iota
	// AContrario takes it from an unrelated background set.
	AContrario
)

func (m Mode) String() string {
	if m == AContrario {
		return "a-contrario"
	}
	return "standard"
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Config is the immutable matching configuration.
type Config struct {
	Norm  keypoint.Norm
	Ratio float64
	// MinMatches is the number of ratio-test survivors needed before the
	// robust filter runs; fewer yields an empty result.
	MinMatches int
	// Workers is the number of goroutines scanning queries (0 = NumCPU).
	Workers int
	// BackgroundLimit caps the background set with a random subset (<= 0 = all).
	BackgroundLimit int
	// Seed drives the background subset; 0 seeds randomly.
	Seed uint32
}

// DefaultConfig returns the SIFT-like defaults.
func DefaultConfig() Config {
	return Config{
		Norm:       keypoint.L1,
		Ratio:      0.8,
		MinMatches: 5,
		Workers:    runtime.NumCPU(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Norm != keypoint.L1 && c.Norm != keypoint.L2 {
		return fmt.Errorf("invalid norm %v", c.Norm)
	}
	if c.Ratio <= 0 {
		return fmt.Errorf("ratio must be positive, got %v", c.Ratio)
	}
	if c.MinMatches < 0 {
		return fmt.Errorf("min matches must not be negative, got %d", c.MinMatches)
	}
	return nil
}

// Result is the outcome of one matching run.
type Result struct {
	Matches []Correspondence `json:"matches"`
	// Model is set when the robust filter accepted a model.
	Model *estimator.Model `json:"model,omitempty"`
	// Raw is the number of matches that passed the ratio test.
	Raw  int  `json:"raw"`
	Mode Mode `json:"mode"`
}

// Engine matches generalized keypoints. It is safe for concurrent use.
type Engine struct {
	cfg Config
	est estimator.Estimator
}

// New creates an Engine. est may be nil to skip robust filtering.
func New(cfg Config, est estimator.Estimator) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Engine{cfg: cfg, est: est}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Match runs the ratio test for every keypoint of a against b and filters
// the survivors. A non-empty background switches to a-contrario mode.
func (e *Engine) Match(ctx context.Context, a, b, background []keypoint.Generalized, dims estimator.Dims) (*Result, error) {
	matches, err := e.Candidates(ctx, a, b, background)
	if err != nil {
		return nil, err
	}
	res := &Result{Raw: len(matches), Mode: ModeFor(background)}
	slog.Debug("ratio test done", "queries", len(a), "targets", len(b), "matches", len(matches), "mode", res.Mode)

	if len(matches) < e.cfg.MinMatches {
		slog.Info("not enough matches to filter", "matches", len(matches), "min", e.cfg.MinMatches)
		res.Matches = []Correspondence{}
		return res, nil
	}
	if e.est == nil {
		res.Matches = matches
		return res, nil
	}

	pairs := make([]estimator.Pair, len(matches))
	for i, m := range matches {
		pairs[i] = estimator.Pair{X1: m.A.X, Y1: m.A.Y, X2: m.B.X, Y2: m.B.Y}
	}
	model, err := e.est.Estimate(ctx, pairs, dims)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.est.Name(), err)
	}
	if !model.Accepted {
		slog.Info("model rejected", "filter", e.est.Name(), "score", model.Score, "matches", len(matches))
		res.Matches = []Correspondence{}
		return res, nil
	}
	res.Model = model
	res.Matches = make([]Correspondence, 0, len(model.Inliers))
	for _, i := range model.Inliers {
		res.Matches = append(res.Matches, matches[i])
	}
	slog.Debug("model accepted", "filter", e.est.Name(), "score", model.Score, "inliers", len(res.Matches))
	return res, nil
}

// Candidates returns the matches passing the ratio test, sorted by query
// index, without robust filtering.
func (e *Engine) Candidates(ctx context.Context, a, b, background []keypoint.Generalized) ([]Correspondence, error) {
	if len(a) == 0 || len(b) == 0 {
		return []Correspondence{}, nil
	}
	bg := e.backgroundSubset(background)

	var (
		mu      sync.Mutex
		matches []Correspondence
		wg      sync.WaitGroup
	)
	jobs := make(chan int, e.cfg.Workers)
	for range min(e.cfg.Workers, len(a)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				c, ok := e.matchOne(i, a, b, bg)
				if !ok {
					continue
				}
				mu.Lock()
				matches = append(matches, c)
				mu.Unlock()
			}
		}()
	}

	var err error
feed:
	for i := range a {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(x, y Correspondence) int { return cmp.Compare(x.Query, y.Query) })
	if matches == nil {
		matches = []Correspondence{}
	}
	return matches, nil
}

// matchOne runs the ratio test for query i. bg is empty in standard mode.
func (e *Engine) matchOne(i int, a, b, bg []keypoint.Generalized) (Correspondence, bool) {
	q := &a[i]
	n := e.nearestTwo(q, b)
	if len(bg) > 0 {
		n.d2 = e.nearest(q, bg)
	}
	if n.target < 0 {
		return Correspondence{}, false
	}
	ratio := keypoint.RatioSentinel
	if n.d2 != 0 {
		ratio = n.d1 / n.d2
	}
	if float64(ratio) >= e.cfg.Ratio {
		return Correspondence{}, false
	}
	return Correspondence{
		Query:    i,
		Target:   n.target,
		A:        q.Members[n.ia],
		B:        b[n.target].Members[n.ib],
		Distance: n.d1,
		Ratio:    ratio,
	}, true
}

type neighbours struct {
	d1, d2         float32
	target, ia, ib int
}

// nearestTwo scans set for the best and second best distances to q. The
// running second best is the pruning bound.
func (e *Engine) nearestTwo(q *keypoint.Generalized, set []keypoint.Generalized) neighbours {
	bound := e.cfg.Norm.Bound()
	n := neighbours{d1: bound, d2: bound, target: -1}
	for j := range set {
		d, ia, ib := keypoint.Distance(q, &set[j], e.cfg.Norm, n.d2)
		switch {
		case d < n.d1:
			n.d2 = n.d1
			n.d1, n.target, n.ia, n.ib = d, j, ia, ib
		case d < n.d2:
			n.d2 = d
		}
	}
	return n
}

// nearest returns the smallest distance from q to set.
func (e *Engine) nearest(q *keypoint.Generalized, set []keypoint.Generalized) float32 {
	best := e.cfg.Norm.Bound()
	for j := range set {
		if d, _, _ := keypoint.Distance(q, &set[j], e.cfg.Norm, best); d < best {
			best = d
		}
	}
	return best
}

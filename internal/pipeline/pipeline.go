// Package pipeline runs the view plan over images, aggregates generalized
// keypoints and matches two detections end to end.
package pipeline

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/MeKo-Tech/imas/internal/estimator"
	"github.com/MeKo-Tech/imas/internal/extractor"
	"github.com/MeKo-Tech/imas/internal/matcher"
	"github.com/MeKo-Tech/imas/internal/tilt"
)

// Default view plan parameters.
const (
	DefaultMaxTilt      = 8.0
	DefaultRotationStep = 72.0
)

// Config holds the configuration of every stage.
type Config struct {
	Extractor extractor.Config
	Detector  DetectorConfig
	Matching  matcher.Config
	Filter    estimator.Method
	Estimator estimator.Params
}

// DefaultConfig returns SIFT-family defaults with the full tilt plan.
func DefaultConfig() Config {
	ex := extractor.DefaultConfig()
	plan, _ := tilt.NewPlan(DefaultMaxTilt, ex.Family.CoveringRadius(), DefaultRotationStep)
	m := matcher.DefaultConfig()
	m.Norm = ex.Family.Norm()
	m.Ratio = ex.Family.DefaultRatio()
	return Config{
		Extractor: ex,
		Detector: DetectorConfig{
			Plan:         plan,
			Radius:       4,
			OrderedMerge: true,
			MaxWorkers:   runtime.NumCPU(),
		},
		Matching:  m,
		Filter:    estimator.MethodORSAHomography,
		Estimator: estimator.DefaultParams(),
	}
}

// Validate checks every stage.
func (c Config) Validate() error {
	if err := c.Extractor.Validate(); err != nil {
		return fmt.Errorf("extractor: %w", err)
	}
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	if _, err := estimator.ParseMethod(string(c.Filter)); err != nil {
		return err
	}
	return nil
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg      Config
	progress func(name string) ProgressCallback
	err      error
}

// NewBuilder starts from DefaultConfig.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// NewBuilderFrom starts from cfg.
func NewBuilderFrom(cfg Config) *Builder { return &Builder{cfg: cfg} }

// WithFamily selects the descriptor family and applies its presets: norm,
// ratio and a plan whose tilt step is the family's covering radius.
func (b *Builder) WithFamily(f extractor.Family) *Builder {
	b.cfg.Extractor.Family = f
	b.cfg.Matching.Norm = f.Norm()
	b.cfg.Matching.Ratio = f.DefaultRatio()
	return b.WithMaxTilt(DefaultMaxTilt)
}

// WithMaxTilt rebuilds the plan up to maxTilt. A value of 1 detects on the
// input image only.
func (b *Builder) WithMaxTilt(maxTilt float64) *Builder {
	if maxTilt == 1 {
		b.cfg.Detector.Plan = tilt.NativePlan()
		return b
	}
	plan, err := tilt.NewPlan(maxTilt, b.cfg.Extractor.Family.CoveringRadius(), DefaultRotationStep)
	if err != nil {
		b.err = errors.Join(b.err, err)
		return b
	}
	b.cfg.Detector.Plan = plan
	return b
}

// WithPlan sets the view plan directly.
func (b *Builder) WithPlan(p tilt.Plan) *Builder {
	b.cfg.Detector.Plan = p
	return b
}

// WithRatio overrides the family's ratio threshold.
func (b *Builder) WithRatio(r float64) *Builder {
	b.cfg.Matching.Ratio = r
	return b
}

// WithRadius sets the merge radius.
func (b *Builder) WithRadius(rho float64) *Builder {
	b.cfg.Detector.Radius = rho
	return b
}

// WithFilter selects the robust filter.
func (b *Builder) WithFilter(m estimator.Method) *Builder {
	b.cfg.Filter = m
	return b
}

// WithMinMatches sets the minimum number of matches needed to filter.
func (b *Builder) WithMinMatches(n int) *Builder {
	b.cfg.Matching.MinMatches = n
	return b
}

// WithWorkers sets the size of both worker pools.
func (b *Builder) WithWorkers(n int) *Builder {
	b.cfg.Detector.MaxWorkers = n
	b.cfg.Matching.Workers = n
	return b
}

// WithOrderedMerge toggles reproducible plan-order merging.
func (b *Builder) WithOrderedMerge(on bool) *Builder {
	b.cfg.Detector.OrderedMerge = on
	return b
}

// WithMaxSize downscales inputs larger than n pixels on a side.
func (b *Builder) WithMaxSize(n int) *Builder {
	b.cfg.Detector.MaxSize = n
	return b
}

// WithSeed makes background sampling and the robust filter reproducible.
func (b *Builder) WithSeed(seed uint32) *Builder {
	b.cfg.Matching.Seed = seed
	b.cfg.Estimator.Seed = seed
	return b
}

// WithProgress installs a progress factory called once per detected image.
func (b *Builder) WithProgress(f func(name string) ProgressCallback) *Builder {
	b.progress = f
	return b
}

// Config returns the configuration built so far.
func (b *Builder) Config() Config { return b.cfg }

// Build validates the configuration and constructs the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if b.err != nil {
		return nil, b.err
	}
	return New(b.cfg, b.progress)
}

// Pipeline detects and matches image pairs.
type Pipeline struct {
	cfg      Config
	detector *Detector
	engine   *matcher.Engine
	progress func(name string) ProgressCallback
	Profiler *Profiler
}

// New constructs a Pipeline. progress may be nil.
func New(cfg Config, progress func(name string) ProgressCallback) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ex, err := extractor.New(cfg.Extractor)
	if err != nil {
		return nil, err
	}
	det, err := NewDetector(cfg.Detector, ex)
	if err != nil {
		return nil, err
	}
	est, err := estimator.New(cfg.Filter, cfg.Estimator)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", cfg.Filter, err)
	}
	engine, err := matcher.New(cfg.Matching, est)
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, detector: det, engine: engine, progress: progress, Profiler: &Profiler{}}, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

func (p *Pipeline) detectorFor(name string) *Detector {
	if p.progress == nil {
		return p.detector
	}
	return p.detector.WithProgress(p.progress(name))
}

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/imas/internal/estimator"
	"github.com/MeKo-Tech/imas/internal/extractor"
	"github.com/MeKo-Tech/imas/internal/keypoint"
	"github.com/MeKo-Tech/imas/internal/matcher"
	"github.com/MeKo-Tech/imas/internal/pipeline"
	"github.com/MeKo-Tech/imas/internal/tilt"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	p := pipeline.DefaultConfig()
	ex := p.Extractor
	est := p.Estimator
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Descriptor: DescriptorConfig{
			Family: ex.Family.String(),
		},
		Aggregation: AggregationConfig{
			Radius:       p.Detector.Radius,
			OrderedMerge: p.Detector.OrderedMerge,
		},
		Plan: PlanConfig{
			MaxTilt:      pipeline.DefaultMaxTilt,
			RotationStep: pipeline.DefaultRotationStep,
		},
		Extractor: ExtractorConfig{
			Threshold:    ex.Threshold,
			Octaves:      ex.Octaves,
			MaxKeypoints: ex.MaxKeypoints,
		},
		Matching: MatchingConfig{
			MinMatches: p.Matching.MinMatches,
		},
		Filter: FilterConfig{
			Method:        string(p.Filter),
			Precision:     est.Precision,
			Threshold:     est.Threshold,
			MaxNFA:        est.MaxNFA,
			MaxIterations: est.MaxIterations,
		},
		Parallel: ParallelConfig{
			MaxWorkers: p.Detector.MaxWorkers,
		},
		Output: OutputConfig{
			Format: pipeline.FormatText,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      120,
			ShutdownTimeout: 10,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 30,
				RequestsPerHour:   600,
				MaxRequestsPerDay: 5000,
				MaxDataPerDayMB:   1024,
			},
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{pipeline.FormatText, pipeline.FormatJSON, pipeline.FormatCSV}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if _, err := extractor.ParseFamily(c.Descriptor.Family); err != nil {
		return fmt.Errorf("invalid descriptor.family: %w (must be one of: %s)", err, strings.Join(extractor.FamilyNames(), ", "))
	}
	if c.Descriptor.Norm != "" {
		if _, err := keypoint.ParseNorm(c.Descriptor.Norm); err != nil {
			return fmt.Errorf("invalid descriptor.norm: %w", err)
		}
	}
	if c.Descriptor.Ratio < 0 {
		return fmt.Errorf("invalid descriptor.ratio: %v (must not be negative)", c.Descriptor.Ratio)
	}

	if c.Aggregation.Radius < 0 {
		return fmt.Errorf("invalid aggregation.radius: %v (must not be negative)", c.Aggregation.Radius)
	}
	if len(c.Plan.Tilts) == 0 && c.Plan.MaxTilt < 1 {
		return fmt.Errorf("invalid plan.max_tilt: %v (must be at least 1)", c.Plan.MaxTilt)
	}
	if c.Plan.TiltStep != 0 && c.Plan.TiltStep <= 1 {
		return fmt.Errorf("invalid plan.tilt_step: %v (must exceed 1)", c.Plan.TiltStep)
	}
	if c.Plan.RotationStep <= 0 {
		return fmt.Errorf("invalid plan.rotation_step: %v (must be positive)", c.Plan.RotationStep)
	}

	if c.Matching.MinMatches < 0 {
		return fmt.Errorf("invalid matching.min_matches: %d (must not be negative)", c.Matching.MinMatches)
	}
	if _, err := estimator.ParseMethod(c.Filter.Method); err != nil {
		return fmt.Errorf("invalid filter.method: %w", err)
	}
	if c.Filter.Precision < 0 {
		return fmt.Errorf("invalid filter.precision: %v (must not be negative)", c.Filter.Precision)
	}
	if c.Filter.MaxIterations <= 0 {
		return fmt.Errorf("invalid filter.max_iterations: %d (must be positive)", c.Filter.MaxIterations)
	}
	if c.Image.MaxSize < 0 {
		return fmt.Errorf("invalid image.max_size: %d (must not be negative)", c.Image.MaxSize)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if rl := c.Server.RateLimit; rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 ||
		rl.MaxRequestsPerDay < 0 || rl.MaxDataPerDayMB < 0 {
		return errors.New("invalid server rate limit: limits must not be negative")
	}
	if c.Parallel.MaxWorkers <= 0 {
		return fmt.Errorf("invalid parallel max workers: %d (must be positive)", c.Parallel.MaxWorkers)
	}

	return nil
}

// ToPipelineConfig converts the config to the internal pipeline configuration format.
func (c *Config) ToPipelineConfig() (pipeline.Config, error) {
	fam, err := extractor.ParseFamily(c.Descriptor.Family)
	if err != nil {
		return pipeline.Config{}, err
	}
	det, err := c.ToDetectorConfig()
	if err != nil {
		return pipeline.Config{}, err
	}
	m, err := c.ToMatcherConfig()
	if err != nil {
		return pipeline.Config{}, err
	}
	method, err := estimator.ParseMethod(c.Filter.Method)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Extractor: c.toExtractorConfig(fam),
		Detector:  det,
		Matching:  m,
		Filter:    method,
		Estimator: c.ToEstimatorConfig(),
	}, nil
}

func (c *Config) toExtractorConfig(fam extractor.Family) extractor.Config {
	return extractor.Config{
		Family:       fam,
		Threshold:    c.Extractor.Threshold,
		Octaves:      c.Extractor.Octaves,
		MaxKeypoints: c.Extractor.MaxKeypoints,
	}
}

// ToDetectorConfig builds the view plan and aggregation settings.
func (c *Config) ToDetectorConfig() (pipeline.DetectorConfig, error) {
	plan, err := c.plan()
	if err != nil {
		return pipeline.DetectorConfig{}, err
	}
	return pipeline.DetectorConfig{
		Plan:         plan,
		Radius:       c.Aggregation.Radius,
		OrderedMerge: c.Aggregation.OrderedMerge,
		MaxWorkers:   c.Parallel.MaxWorkers,
		MaxSize:      c.Image.MaxSize,
	}, nil
}

func (c *Config) plan() (tilt.Plan, error) {
	if len(c.Plan.Tilts) > 0 {
		return tilt.PlanFromTilts(c.Plan.Tilts, c.Plan.RotationStep)
	}
	if c.Plan.MaxTilt == 1 {
		return tilt.NativePlan(), nil
	}
	step := c.Plan.TiltStep
	if step == 0 {
		fam, err := extractor.ParseFamily(c.Descriptor.Family)
		if err != nil {
			return nil, err
		}
		step = fam.CoveringRadius()
	}
	return tilt.NewPlan(c.Plan.MaxTilt, step, c.Plan.RotationStep)
}

// ToMatcherConfig applies the family presets and the explicit overrides.
func (c *Config) ToMatcherConfig() (matcher.Config, error) {
	fam, err := extractor.ParseFamily(c.Descriptor.Family)
	if err != nil {
		return matcher.Config{}, err
	}
	norm := fam.Norm()
	if c.Descriptor.Norm != "" {
		if norm, err = keypoint.ParseNorm(c.Descriptor.Norm); err != nil {
			return matcher.Config{}, err
		}
	}
	ratio := fam.DefaultRatio()
	if c.Descriptor.Ratio > 0 {
		ratio = c.Descriptor.Ratio
	}
	return matcher.Config{
		Norm:            norm,
		Ratio:           ratio,
		MinMatches:      c.Matching.MinMatches,
		Workers:         c.Parallel.MaxWorkers,
		BackgroundLimit: c.Matching.BackgroundLimit,
		Seed:            c.Matching.Seed,
	}, nil
}

// ToEstimatorConfig converts the filter section to estimator parameters.
func (c *Config) ToEstimatorConfig() estimator.Params {
	return estimator.Params{
		Precision:       c.Filter.Precision,
		Threshold:       c.Filter.Threshold,
		MaxNFA:          c.Filter.MaxNFA,
		MaxIterations:   c.Filter.MaxIterations,
		Seed:            c.Matching.Seed,
		ConsensusConfig: c.Filter.ConsensusConfig,
	}
}

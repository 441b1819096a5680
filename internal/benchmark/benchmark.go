// Package benchmark times detection and matching over a sweep of view
// plans, so the cost of deeper tilt simulation can be measured on real
// images.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"runtime"
	"strconv"
	"sync"

	"github.com/MeKo-Tech/imas/internal/common"
	"github.com/MeKo-Tech/imas/internal/pipeline"
)

// Func is one benchmarked operation. It returns the number of items it
// produced, such as keypoints or matches.
type Func func(ctx context.Context) (int, error)

// Benchmark represents a named benchmark function.
type Benchmark struct {
	Name string
	Func Func
}

// Suite manages multiple benchmarks.
type Suite struct {
	benchmarks []Benchmark
	results    []common.BenchmarkResult
	mu         sync.Mutex
}

// NewSuite creates an empty suite.
func NewSuite() *Suite {
	return &Suite{}
}

// Add adds a benchmark to the suite.
func (s *Suite) Add(name string, fn Func) {
	s.benchmarks = append(s.benchmarks, Benchmark{Name: name, Func: fn})
}

// Names lists the benchmarks in registration order.
func (s *Suite) Names() []string {
	names := make([]string, len(s.benchmarks))
	for i, b := range s.benchmarks {
		names[i] = b.Name
	}
	return names
}

// Run runs a single benchmark with the specified number of iterations.
func (s *Suite) Run(ctx context.Context, name string, iterations int) common.BenchmarkResult {
	for _, b := range s.benchmarks {
		if b.Name == name {
			return runBenchmark(ctx, b, iterations)
		}
	}
	return common.BenchmarkResult{
		Name:  name,
		Error: fmt.Errorf("benchmark '%s' not found", name),
	}
}

// RunAll runs all benchmarks in the suite. It stops early when ctx ends.
func (s *Suite) RunAll(ctx context.Context, iterations int) []common.BenchmarkResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = make([]common.BenchmarkResult, 0, len(s.benchmarks))
	for _, b := range s.benchmarks {
		if ctx.Err() != nil {
			break
		}
		s.results = append(s.results, runBenchmark(ctx, b, iterations))
	}
	return s.results
}

// Results returns the last run results.
func (s *Suite) Results() []common.BenchmarkResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// WriteResults prints formatted benchmark results to w.
func (s *Suite) WriteResults(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Benchmark Results:")
	_, _ = fmt.Fprintln(w, "==================")
	for _, result := range s.Results() {
		_, _ = fmt.Fprintln(w, result.String())
	}
}

func runBenchmark(ctx context.Context, b Benchmark, iterations int) common.BenchmarkResult {
	iterations = max(iterations, 1)
	// Force garbage collection before measuring
	runtime.GC()
	memBefore := common.GetMemoryStats()

	sw := common.StartStopwatch()
	var (
		items int
		err   error
	)
	for range iterations {
		if items, err = b.Func(ctx); err != nil {
			break
		}
	}
	duration := sw.Elapsed()

	return common.BenchmarkResult{
		Name:         b.Name,
		Duration:     duration,
		MemoryBefore: memBefore,
		MemoryAfter:  common.GetMemoryStats(),
		Iterations:   iterations,
		Items:        items,
		Error:        err,
	}
}

// NewPlanSweep registers one detection benchmark per maximum tilt on the
// first image and, when a second image is given, one matching benchmark
// per maximum tilt on the pair. Items count generalized keypoints and
// surviving matches respectively.
func NewPlanSweep(base pipeline.Config, maxTilts []float64, images ...image.Image) (*Suite, error) {
	if len(images) == 0 || len(images) > 2 {
		return nil, errors.New("one or two images are required")
	}
	if len(maxTilts) == 0 {
		return nil, errors.New("at least one maximum tilt is required")
	}

	s := NewSuite()
	for _, t := range maxTilts {
		pl, err := pipeline.NewBuilderFrom(base).WithMaxTilt(t).Build()
		if err != nil {
			return nil, fmt.Errorf("max tilt %g: %w", t, err)
		}
		suffix := "max-tilt=" + strconv.FormatFloat(t, 'g', -1, 64) +
			"/views=" + strconv.Itoa(pl.Config().Detector.Plan.Len())

		s.Add("detect/"+suffix, func(ctx context.Context) (int, error) {
			det, err := pl.Detect(ctx, "benchmark", images[0])
			if err != nil {
				return 0, err
			}
			return len(det.Keypoints), nil
		})
		if len(images) == 2 {
			s.Add("match/"+suffix, func(ctx context.Context) (int, error) {
				res, err := pl.Match(ctx, images[0], images[1], nil)
				if err != nil {
					return 0, err
				}
				return len(res.Matches), nil
			})
		}
	}
	return s, nil
}

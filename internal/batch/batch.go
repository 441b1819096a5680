// Package batch matches one reference image against a collection of
// images and ranks the collection by the number of surviving matches.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/imas/internal/pipeline"
)

// ProcessBatch discovers the images named by inputs, detects the reference
// once and matches it against every discovered image. The reference itself
// is skipped when it appears among the inputs. Progress, when enabled, is
// drawn on progressOut.
func ProcessBatch(ctx context.Context, pl *pipeline.Pipeline, referencePath string, inputs []string,
	config *Config, progressOut io.Writer) (*Result, error) {
	if pl == nil {
		return nil, errors.New("pipeline is required")
	}
	if config == nil {
		config = &Config{}
	}

	files, err := discoverImageFiles(inputs, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	files = withoutPath(files, referencePath)
	if len(files) == 0 {
		return nil, errors.New("no image files found")
	}

	var progress pipeline.ProgressCallback = pipeline.NoOpProgressCallback{}
	if config.ShowProgress && !config.Quiet {
		progress = pipeline.NewConsoleProgressCallback(progressOut, "Matching: ").
			WithUnit("image").
			WithUpdateInterval(config.ProgressInterval)
	}

	if config.OverlayDir != "" {
		if err := os.MkdirAll(config.OverlayDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create overlay directory: %w", err)
		}
	}

	startTime := time.Now()
	ref, err := detectReference(ctx, pl, referencePath, config.Background)
	if err != nil {
		return nil, fmt.Errorf("reference failed: %w", err)
	}
	entries, err := processImagesParallel(ctx, pl, ref, files, config, progress)
	duration := time.Since(startTime)
	if err != nil {
		return nil, fmt.Errorf("batch processing failed: %w", err)
	}

	return &Result{
		Reference:   referencePath,
		Background:  config.Background,
		Entries:     entries,
		Duration:    duration,
		WorkerCount: max(config.Workers, 1),
	}, nil
}

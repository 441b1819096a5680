package batch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration for batch matching.
type Config struct {
	// Background is an optional image for the a-contrario ratio test,
	// detected once and shared by every pair.
	Background string
	OverlayDir string
	Format     string
	OutputFile string

	// Workers bounds the number of targets matched at the same time.
	Workers int
	// FailFast aborts the batch on the first target that cannot be
	// loaded or matched instead of recording the error.
	FailFast bool

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Progress settings
	ShowProgress     bool
	Quiet            bool
	ProgressInterval time.Duration
}

// Entry is the outcome for one target image.
type Entry struct {
	File       string `json:"file"`
	Matches    int    `json:"matches"`
	RawMatches int    `json:"raw_matches"`
	// Model is the kind of the accepted robust model, empty when none.
	Model       string `json:"model,omitempty"`
	Generalized int    `json:"generalized_keypoints"`
	Overlay     string `json:"overlay,omitempty"`
	DurationNs  int64  `json:"duration_ns"`
	Error       string `json:"error,omitempty"`
}

// Failed reports whether the target could not be matched.
func (e Entry) Failed() bool { return e.Error != "" }

// Result holds the result of a batch run. Entries are ranked by match
// count, best first.
type Result struct {
	Reference   string        `json:"reference"`
	Background  string        `json:"background,omitempty"`
	Entries     []Entry       `json:"entries"`
	Duration    time.Duration `json:"duration_ns"`
	WorkerCount int           `json:"workers"`
}

// FormatResults formats the batch results in the specified format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r, format)
}

// SaveResults writes the formatted results to outputFile, or to w when
// outputFile is empty.
func (r *Result) SaveResults(w io.Writer, format, outputFile string, quiet bool) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile == "" {
		_, err = io.WriteString(w, output)
		return err
	}
	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if !quiet {
		_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
	}
	return nil
}

// Stats summarizes a batch run.
type Stats struct {
	Total            int
	Matched          int
	Failed           int
	Workers          int
	Duration         time.Duration
	AveragePerImage  time.Duration
	ThroughputPerSec float64
}

// Stats computes the summary of the run. A target counts as matched when
// at least one correspondence survived.
func (r *Result) Stats() Stats {
	s := Stats{Total: len(r.Entries), Workers: r.WorkerCount, Duration: r.Duration}
	for _, e := range r.Entries {
		switch {
		case e.Failed():
			s.Failed++
		case e.Matches > 0:
			s.Matched++
		}
	}
	if s.Total > 0 {
		s.AveragePerImage = r.Duration / time.Duration(s.Total)
	}
	if secs := r.Duration.Seconds(); secs > 0 {
		s.ThroughputPerSec = float64(s.Total) / secs
	}
	return s
}

// PrintStats prints processing statistics to w.
func (r *Result) PrintStats(w io.Writer, quiet bool) {
	if quiet {
		return
	}
	stats := r.Stats()
	_, _ = fmt.Fprintf(w, "\nBatch Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Reference: %s\n", r.Reference)
	_, _ = fmt.Fprintf(w, "  Total images: %d\n", stats.Total)
	_, _ = fmt.Fprintf(w, "  Matched: %d\n", stats.Matched)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", stats.Failed)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", stats.Workers)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", stats.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per image: %v\n", stats.AveragePerImage.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f images/sec\n", stats.ThroughputPerSec)
}

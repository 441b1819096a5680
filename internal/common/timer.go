// Package common holds the timing and memory helpers shared by the pipeline,
// batch and benchmark packages.
package common

import (
	"log/slog"
	"time"
)

// Stage is one named span of a Stopwatch run.
type Stage struct {
	Name     string
	Duration time.Duration
}

// Stopwatch measures a run as a sequence of consecutive stages.
type Stopwatch struct {
	start  time.Time
	last   time.Time
	stages []Stage
}

// StartStopwatch starts a stopwatch now.
func StartStopwatch() *Stopwatch {
	now := time.Now()
	return &Stopwatch{start: now, last: now}
}

// Lap closes the current stage under name and returns its duration.
func (s *Stopwatch) Lap(name string) time.Duration {
	now := time.Now()
	d := now.Sub(s.last)
	s.last = now
	s.stages = append(s.stages, Stage{Name: name, Duration: d})
	return d
}

// Elapsed is the time since the stopwatch started.
func (s *Stopwatch) Elapsed() time.Duration {
	return time.Since(s.start)
}

// Stage returns the duration recorded for name.
func (s *Stopwatch) Stage(name string) (time.Duration, bool) {
	for _, st := range s.stages {
		if st.Name == name {
			return st.Duration, true
		}
	}
	return 0, false
}

// Stages returns the recorded stages in order.
func (s *Stopwatch) Stages() []Stage {
	return append([]Stage(nil), s.stages...)
}

// LogValue renders the stages as a slog group.
func (s *Stopwatch) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(s.stages)+1)
	for _, st := range s.stages {
		attrs = append(attrs, slog.Duration(st.Name, st.Duration))
	}
	attrs = append(attrs, slog.Duration("total", s.last.Sub(s.start)))
	return slog.GroupValue(attrs...)
}

package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback receives per-view progress while an image is detected.
// Calls may come from several goroutines; implementations synchronise.
type ProgressCallback interface {
	// OnStart is called once with the number of views to simulate.
	OnStart(total int)
	// OnProgress is called after each merged view.
	OnProgress(done, total int)
	// OnComplete is called when all views are merged or detection failed.
	OnComplete()
	// OnError reports the view that failed.
	OnError(view int, err error)
}

// NoOpProgressCallback discards progress.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)         {}
func (NoOpProgressCallback) OnProgress(int, int) {}
func (NoOpProgressCallback) OnComplete()         {}
func (NoOpProgressCallback) OnError(int, error)  {}

// ConsoleProgressCallback draws a progress bar, typically on stderr.
type ConsoleProgressCallback struct {
	mu       sync.Mutex
	w        io.Writer
	prefix   string
	width    int
	interval time.Duration
	unit     string
	started  time.Time
	last     time.Time
}

// NewConsoleProgressCallback writes to w (stderr when nil), prefixing each line.
func NewConsoleProgressCallback(w io.Writer, prefix string) *ConsoleProgressCallback {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgressCallback{w: w, prefix: prefix, width: 30, interval: 100 * time.Millisecond, unit: "view"}
}

// WithWidth sets the bar width in characters.
func (c *ConsoleProgressCallback) WithWidth(width int) *ConsoleProgressCallback {
	c.width = max(width, 1)
	return c
}

// WithUpdateInterval limits how often the bar is redrawn.
func (c *ConsoleProgressCallback) WithUpdateInterval(d time.Duration) *ConsoleProgressCallback {
	c.interval = d
	return c
}

// WithUnit names the counted items, "view" by default.
func (c *ConsoleProgressCallback) WithUnit(unit string) *ConsoleProgressCallback {
	c.unit = unit
	return c
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = time.Now()
	c.last = time.Time{}
	_, _ = fmt.Fprintf(c.w, "%s%d %ss\n", c.prefix, total, c.unit)
}

func (c *ConsoleProgressCallback) OnProgress(done, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if done < total && now.Sub(c.last) < c.interval {
		return
	}
	c.last = now
	if total <= 0 {
		return
	}
	filled := c.width * done / total
	line := fmt.Sprintf("\r%s[%s%s] %d/%d", c.prefix,
		strings.Repeat("#", filled), strings.Repeat(".", c.width-filled), done, total)
	if elapsed := now.Sub(c.started).Seconds(); elapsed > 0 && done > 0 {
		line += fmt.Sprintf(" %.1f views/s", float64(done)/elapsed)
	}
	_, _ = fmt.Fprint(c.w, line)
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "\n%sdone in %v\n", c.prefix, time.Since(c.started).Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) OnError(view int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "\n%s%s %d failed: %v\n", c.prefix, c.unit, view, err)
}

// LogProgressCallback reports progress through slog every Every views.
type LogProgressCallback struct {
	logger  *slog.Logger
	level   slog.Level
	name    string
	Every   int
	mu      sync.Mutex
	started time.Time
}

// NewLogProgressCallback logs at level under the given image name.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level, name string) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level, name: name, Every: 10}
}

func (l *LogProgressCallback) OnStart(total int) {
	l.mu.Lock()
	l.started = time.Now()
	l.mu.Unlock()
	l.logger.Log(context.Background(), l.level, "detection started", "image", l.name, "views", total)
}

func (l *LogProgressCallback) OnProgress(done, total int) {
	if done != total && (l.Every <= 0 || done%l.Every != 0) {
		return
	}
	l.logger.Log(context.Background(), l.level, "detection progress", "image", l.name, "done", done, "views", total)
}

func (l *LogProgressCallback) OnComplete() {
	l.mu.Lock()
	elapsed := time.Since(l.started)
	l.mu.Unlock()
	l.logger.Log(context.Background(), l.level, "detection finished", "image", l.name,
		"elapsed", elapsed.Round(time.Millisecond))
}

func (l *LogProgressCallback) OnError(view int, err error) {
	l.logger.Log(context.Background(), slog.LevelError, "view failed", "image", l.name, "view", view, "error", err)
}

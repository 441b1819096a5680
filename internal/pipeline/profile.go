package pipeline

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Profiler accumulates counters across runs of one Pipeline.
type Profiler struct {
	Images      atomic.Int64
	Generalized atomic.Int64
	DetectNs    atomic.Int64
	Pairs       atomic.Int64
	Matches     atomic.Int64
	MatchNs     atomic.Int64
}

// RecordDetection adds one detected image.
func (p *Profiler) RecordDetection(det *Detection) {
	p.Images.Add(1)
	p.Generalized.Add(int64(len(det.Keypoints)))
	p.DetectNs.Add(det.Duration.Nanoseconds())
}

// RecordMatch adds one matched pair.
func (p *Profiler) RecordMatch(matches int, d time.Duration) {
	p.Pairs.Add(1)
	p.Matches.Add(int64(matches))
	p.MatchNs.Add(d.Nanoseconds())
}

// Snapshot returns the totals in milliseconds with per-run averages.
func (p *Profiler) Snapshot() map[string]any {
	imgs, pairs := p.Images.Load(), p.Pairs.Load()
	det, match := p.DetectNs.Load(), p.MatchNs.Load()
	out := map[string]any{
		"images":            imgs,
		"pairs":             pairs,
		"generalized":       p.Generalized.Load(),
		"matches":           p.Matches.Load(),
		"detect_ms_total":   det / 1_000_000,
		"matching_ms_total": match / 1_000_000,
	}
	if imgs > 0 {
		out["detect_ms_per_image"] = float64(det) / 1e6 / float64(imgs)
	}
	if pairs > 0 {
		out["matching_ms_per_pair"] = float64(match) / 1e6 / float64(pairs)
	}
	return out
}

// MemStats summarises memory usage.
type MemStats struct {
	AllocBytes uint64 `json:"alloc_bytes"`
	SysBytes   uint64 `json:"sys_bytes"`
	NumGC      uint32 `json:"num_gc"`
	Goroutines int    `json:"goroutines"`
}

// GetMemStats captures current memory statistics.
func GetMemStats() MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemStats{
		AllocBytes: m.Alloc,
		SysBytes:   m.Sys,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}

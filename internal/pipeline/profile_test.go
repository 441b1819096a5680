package pipeline

import (
	"testing"
	"time"

	"github.com/MeKo-Tech/imas/internal/keypoint"
	"github.com/stretchr/testify/assert"
)

func TestProfiler(t *testing.T) {
	var p Profiler
	assert.NotContains(t, p.Snapshot(), "detect_ms_per_image")

	p.RecordDetection(&Detection{Keypoints: make([]keypoint.Generalized, 3), Duration: 4 * time.Millisecond})
	p.RecordDetection(&Detection{Keypoints: make([]keypoint.Generalized, 5), Duration: 2 * time.Millisecond})
	p.RecordMatch(7, 10*time.Millisecond)

	snap := p.Snapshot()
	assert.EqualValues(t, 2, snap["images"])
	assert.EqualValues(t, 8, snap["generalized"])
	assert.EqualValues(t, 7, snap["matches"])
	assert.EqualValues(t, 6, snap["detect_ms_total"])
	assert.InDelta(t, 3.0, snap["detect_ms_per_image"], 1e-9)
	assert.InDelta(t, 10.0, snap["matching_ms_per_pair"], 1e-9)
}

func TestGetMemStats(t *testing.T) {
	s := GetMemStats()
	assert.Positive(t, s.SysBytes)
	assert.Positive(t, s.Goroutines)
}

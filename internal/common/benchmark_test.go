package common

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetMemoryStats(t *testing.T) {
	stats := GetMemoryStats()
	assert.Positive(t, stats.Alloc)
	assert.Positive(t, stats.TotalAlloc)
	assert.Positive(t, stats.Sys)

	str := stats.String()
	assert.Contains(t, str, "Alloc:")
	assert.Contains(t, str, "KB")
}

func TestBenchmarkResult(t *testing.T) {
	result := BenchmarkResult{
		Name:         "test_result",
		Duration:     100 * time.Millisecond,
		Iterations:   10,
		Items:        42,
		MemoryBefore: MemoryStats{TotalAlloc: 1024},
		MemoryAfter:  MemoryStats{TotalAlloc: 5 * 1024},
	}

	assert.Equal(t, 10*time.Millisecond, result.Average())
	assert.Equal(t, uint64(4), result.AllocatedKB())
	str := result.String()
	assert.Contains(t, str, "test_result")
	assert.Contains(t, str, "10 iterations")
	assert.Contains(t, str, "avg: 10ms")
	assert.Contains(t, str, "total: 100ms")
	assert.Contains(t, str, "items: 42")
	assert.Contains(t, str, "alloc: 4 KB")

	errorResult := BenchmarkResult{
		Name:  "error_result",
		Error: errors.New("test error"),
	}
	str = errorResult.String()
	assert.Contains(t, str, "error_result")
	assert.Contains(t, str, "ERROR")
	assert.Contains(t, str, "test error")
}

func TestBenchmarkResult_ZeroIterations(t *testing.T) {
	assert.Zero(t, BenchmarkResult{Duration: time.Second}.Average())
}

func BenchmarkMemoryStatsRetrieval(b *testing.B) {
	for range b.N {
		GetMemoryStats()
	}
}

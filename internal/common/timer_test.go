package common

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopwatch_Laps(t *testing.T) {
	sw := StartStopwatch()
	time.Sleep(5 * time.Millisecond)
	first := sw.Lap("detection")
	time.Sleep(5 * time.Millisecond)
	second := sw.Lap("matching")

	assert.GreaterOrEqual(t, first, 5*time.Millisecond)
	assert.GreaterOrEqual(t, second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, sw.Elapsed(), first+second)

	d, ok := sw.Stage("matching")
	require.True(t, ok)
	assert.Equal(t, second, d)
	_, ok = sw.Stage("missing")
	assert.False(t, ok)

	stages := sw.Stages()
	require.Len(t, stages, 2)
	assert.Equal(t, "detection", stages[0].Name)
	stages[0].Name = "changed"
	assert.Equal(t, "detection", sw.Stages()[0].Name)
}

func TestStopwatch_LogValue(t *testing.T) {
	sw := StartStopwatch()
	sw.Lap("views")
	sw.Lap("compact")

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("done", "timings", sw)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	timings, ok := rec["timings"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, timings, "views")
	assert.Contains(t, timings, "compact")
	assert.Contains(t, timings, "total")
}

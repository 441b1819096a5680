package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCommandText(t *testing.T) {
	dir := isolate(t)
	img := writeTexture(t, dir, "scene.png", 21)

	out, stderr, err := executeCommand(t, "detect", img, "--max-tilt", "1", "--workers", "2")
	require.NoError(t, err, stderr)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "# 200x150, 1 views"), lines[0])
	for _, line := range lines[1:] {
		assert.Len(t, strings.Fields(line), 3)
	}
	assert.Contains(t, stderr, "Detection finished")
}

func TestDetectCommandJSON(t *testing.T) {
	dir := isolate(t)
	img := writeTexture(t, dir, "scene.png", 22)

	out, _, err := executeCommand(t, "detect", img, "--tilts", "1,2", "--rotation-step", "90", "-f", "json")
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.InDelta(t, 200.0, body["width"], 1e-9)
	assert.InDelta(t, 5.0, body["views"], 1e-9)
	assert.NotEmpty(t, body["keypoints"])
}

func TestDetectCommandErrors(t *testing.T) {
	dir := isolate(t)
	img := writeTexture(t, dir, "scene.png", 23)

	_, _, err := executeCommand(t, "detect", img, "--format", "csv", "--max-tilt", "1")
	assert.Error(t, err)

	_, _, err = executeCommand(t, "detect")
	assert.Error(t, err)

	_, _, err = executeCommand(t, "detect", dir+"/missing.png")
	assert.Error(t, err)
}

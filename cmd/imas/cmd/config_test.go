package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/imas/internal/config"
)

func TestConfigInit(t *testing.T) {
	dir := isolate(t)

	t.Run("default name", func(t *testing.T) {
		out, _, err := executeCommand(t, "config", "init")
		require.NoError(t, err)
		assert.Contains(t, out, "imas.yaml")
		assert.FileExists(t, filepath.Join(dir, "imas.yaml"))
	})

	t.Run("explicit path", func(t *testing.T) {
		path := filepath.Join(dir, "nested", "custom.yaml")
		_, _, err := executeCommand(t, "config", "init", path)
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var cfg config.Config
		require.NoError(t, yaml.Unmarshal(data, &cfg))
		assert.Equal(t, config.DefaultConfig().Plan, cfg.Plan)
	})
}

func TestConfigShowReflectsFileAndEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "imas.yaml"),
		[]byte("descriptor:\n  family: brief\nplan:\n  max_tilt: 4\n"), 0o600))
	t.Setenv("IMAS_FILTER_METHOD", "usac-homography")

	out, _, err := executeCommand(t, "config", "show")
	require.NoError(t, err)

	header, body, found := strings.Cut(out, "\n")
	require.True(t, found)
	assert.Contains(t, header, "# loaded from")
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(body), &cfg))
	assert.Equal(t, "brief", cfg.Descriptor.Family)
	assert.InDelta(t, 4.0, cfg.Plan.MaxTilt, 1e-12)
	assert.Equal(t, "usac-homography", cfg.Filter.Method)
}

func TestConfigPaths(t *testing.T) {
	dir := isolate(t)
	out, _, err := executeCommand(t, "config", "paths")
	require.NoError(t, err)

	assert.Contains(t, out, filepath.Join(dir, ".imas"))
	assert.Contains(t, out, "/etc/imas")
	assert.Contains(t, out, "IMAS_")
}

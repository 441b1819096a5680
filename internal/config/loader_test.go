package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// isolate points every search path at an empty temp dir and returns a
// loader on a fresh viper instance.
func isolate(t *testing.T) (*Loader, string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Chdir(dir)
	return NewLoaderWithViper(viper.New()), dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	require.NotNil(t, loader)
	assert.Same(t, viper.GetViper(), loader.v)
}

func TestLoadWithNoConfigFile(t *testing.T) {
	loader, _ := isolate(t)

	cfg, err := loader.Load()
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def, *cfg)
	assert.Empty(t, loader.GetConfigFileUsed())
}

func TestLoadFromWorkingDirectory(t *testing.T) {
	loader, dir := isolate(t)
	writeFile(t, filepath.Join(dir, "imas.yaml"), `
log_level: debug
descriptor:
  family: rootsift
plan:
  tilts: [1, 2, 4]
`)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "rootsift", cfg.Descriptor.Family)
	assert.Equal(t, []float64{1, 2, 4}, cfg.Plan.Tilts)
	assert.Equal(t, 8080, cfg.Server.Port, "unset keys keep defaults")
}

func TestLoadFromHomeDirectory(t *testing.T) {
	loader, dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".imas", "imas.yaml"), "matching:\n  min_matches: 12\n")

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Matching.MinMatches)
}

func TestLoadWithFile(t *testing.T) {
	loader, dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, `
aggregation:
  radius: 2.5
  ordered_merge: false
filter:
  method: usac-fundamental
  threshold: 1.5
matching:
  seed: 42
  background_limit: 300
server:
  port: 9090
`)

	cfg, err := loader.LoadWithFile(path)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, cfg.Aggregation.Radius, 1e-12)
	assert.False(t, cfg.Aggregation.OrderedMerge)
	assert.Equal(t, "usac-fundamental", cfg.Filter.Method)
	assert.InDelta(t, 1.5, cfg.Filter.Threshold, 1e-12)
	assert.Equal(t, uint32(42), cfg.Matching.Seed)
	assert.Equal(t, 300, cfg.Matching.BackgroundLimit)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, path, loader.GetConfigFileUsed())
}

func TestLoadWithFile_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		loader, dir := isolate(t)
		_, err := loader.LoadWithFile(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		loader, dir := isolate(t)
		path := filepath.Join(dir, "bad.yaml")
		writeFile(t, path, "filter: [unclosed\n")
		_, err := loader.LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})

	t.Run("validation failure", func(t *testing.T) {
		loader, dir := isolate(t)
		path := filepath.Join(dir, "invalid.yaml")
		writeFile(t, path, "descriptor:\n  family: surf\n")
		_, err := loader.LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration validation failed")
	})
}

func TestLoadWithFileWithoutValidation(t *testing.T) {
	loader, dir := isolate(t)
	path := filepath.Join(dir, "invalid.yaml")
	writeFile(t, path, "log_level: chatty\n")

	cfg, err := loader.LoadWithFileWithoutValidation(path)
	require.NoError(t, err)
	assert.Equal(t, "chatty", cfg.LogLevel)
}

func TestEnvironmentVariableOverride(t *testing.T) {
	loader, _ := isolate(t)
	t.Setenv("IMAS_FILTER_MAX_NFA", "-4.5")
	t.Setenv("IMAS_DESCRIPTOR_FAMILY", "brief")
	t.Setenv("IMAS_SERVER_PORT", "7000")

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.InDelta(t, -4.5, cfg.Filter.MaxNFA, 1e-12)
	assert.Equal(t, "brief", cfg.Descriptor.Family)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	loader, dir := isolate(t)
	path := filepath.Join(dir, "imas.yaml")
	writeFile(t, path, "matching:\n  min_matches: 8\n")
	t.Setenv("IMAS_MATCHING_MIN_MATCHES", "20")

	cfg, err := loader.LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Matching.MinMatches)
}

func TestLoaderSetAndGet(t *testing.T) {
	loader, _ := isolate(t)
	loader.Set("output.format", "csv")
	assert.Equal(t, "csv", loader.Get("output.format"))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Contains(t, loader.GetResolvedConfig(), "filter")
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "imas.yaml")

	require.NoError(t, GenerateDefaultConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Config
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, DefaultConfig(), got)

	// The generated file must load back through viper unchanged.
	loader := NewLoaderWithViper(viper.New())
	cfg, err := loader.LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestGenerateDefaultConfigFile_DefaultName(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, GenerateDefaultConfigFile(""))
	assert.FileExists(t, filepath.Join(dir, "imas.yaml"))
}

func TestGetConfigSearchPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	t.Run("xdg set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		paths := GetConfigSearchPaths()
		assert.Equal(t, []string{".", filepath.Join(home, ".imas"), "/etc/imas", "/xdg/imas"}, paths)
	})

	t.Run("xdg unset", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		require.NoError(t, os.Unsetenv("XDG_CONFIG_HOME"))
		paths := GetConfigSearchPaths()
		assert.Equal(t, filepath.Join(home, ".config", "imas"), paths[len(paths)-1])
	})
}

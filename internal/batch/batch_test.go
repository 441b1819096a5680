package batch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/imas/internal/estimator"
	"github.com/MeKo-Tech/imas/internal/pipeline"
	"github.com/MeKo-Tech/imas/internal/testutil"
)

func testPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	pl, err := pipeline.NewBuilder().
		WithMaxTilt(1).
		WithFilter(estimator.MethodNone).
		WithWorkers(2).
		WithSeed(5).
		Build()
	require.NoError(t, err)
	return pl
}

// writeScene writes a 200x150 texture and returns its path.
func writeScene(t *testing.T, dir, name string, seed uint32) string {
	t.Helper()
	cfg := testutil.DefaultTextureConfig()
	cfg.Width, cfg.Height, cfg.Shapes, cfg.Seed = 200, 150, 60, seed
	path := filepath.Join(dir, name)
	require.NoError(t, testutil.WriteTexturePNG(cfg, path))
	return path
}

func TestProcessBatch_NoImageFiles(t *testing.T) {
	result, err := ProcessBatch(context.Background(), testPipeline(t), "ref.png", []string{}, &Config{Workers: 1}, nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "no image files found")
}

func TestProcessBatch_InvalidImagePath(t *testing.T) {
	result, err := ProcessBatch(context.Background(), testPipeline(t), "ref.png",
		[]string{"/nonexistent/file.png"}, &Config{Workers: 1}, nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "cannot access")
}

func TestProcessBatch_NilPipeline(t *testing.T) {
	_, err := ProcessBatch(context.Background(), nil, "ref.png", []string{"."}, nil, nil)
	require.Error(t, err)
}

func TestProcessBatch_OnlyReference(t *testing.T) {
	dir := t.TempDir()
	ref := writeScene(t, dir, "ref.png", 3)

	_, err := ProcessBatch(context.Background(), testPipeline(t), ref, []string{dir}, &Config{Workers: 1}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image files found")
}

func TestProcessBatch_MissingReference(t *testing.T) {
	dir := t.TempDir()
	writeScene(t, dir, "target.png", 4)

	_, err := ProcessBatch(context.Background(), testPipeline(t), filepath.Join(dir, "missing.png"),
		[]string{dir}, &Config{Workers: 1}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reference failed")
}

func TestProcessBatch_RanksTargets(t *testing.T) {
	dir := t.TempDir()
	targets := filepath.Join(dir, "targets")
	require.NoError(t, os.MkdirAll(targets, 0o750))

	ref := writeScene(t, dir, "ref.png", 3)
	writeScene(t, targets, "other.png", 99)
	same := writeScene(t, targets, "same.png", 3)
	require.NoError(t, os.WriteFile(filepath.Join(targets, "broken.png"), []byte("not an image"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(targets, "notes.txt"), []byte("skip"), 0o600))

	var progress bytes.Buffer
	overlays := filepath.Join(dir, "overlays")
	cfg := &Config{Workers: 2, OverlayDir: overlays, ShowProgress: true}
	result, err := ProcessBatch(context.Background(), testPipeline(t), ref, []string{targets}, cfg, &progress)
	require.NoError(t, err)

	require.Len(t, result.Entries, 3)
	assert.Equal(t, ref, result.Reference)
	assert.Equal(t, 2, result.WorkerCount)
	assert.Contains(t, progress.String(), "Matching: 3 images")

	best := result.Entries[0]
	assert.Equal(t, same, best.File)
	assert.Positive(t, best.Matches)
	assert.Equal(t, best.Matches, best.RawMatches, "no robust filter")
	assert.Positive(t, best.Generalized)
	assert.FileExists(t, best.Overlay)
	assert.Equal(t, filepath.Join(overlays, "same_matches.png"), best.Overlay)

	assert.False(t, result.Entries[1].Failed())
	assert.GreaterOrEqual(t, best.Matches, result.Entries[1].Matches)

	last := result.Entries[2]
	assert.True(t, last.Failed())
	assert.Equal(t, filepath.Join(targets, "broken.png"), last.File)

	stats := result.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Failed)
	assert.GreaterOrEqual(t, stats.Matched, 1)
}

func TestProcessBatch_FailFast(t *testing.T) {
	dir := t.TempDir()
	ref := writeScene(t, dir, "ref.png", 3)
	broken := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(broken, []byte("not an image"), 0o600))

	_, err := ProcessBatch(context.Background(), testPipeline(t), ref, []string{broken},
		&Config{Workers: 1, FailFast: true}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch processing failed")
}

func TestProcessBatch_Background(t *testing.T) {
	dir := t.TempDir()
	ref := writeScene(t, dir, "ref.png", 3)
	target := writeScene(t, dir, "target.png", 3)
	bg := filepath.Join(t.TempDir(), "bg.png")
	cfg := testutil.DefaultTextureConfig()
	cfg.Width, cfg.Height, cfg.Seed = 200, 150, 41
	require.NoError(t, testutil.WriteTexturePNG(cfg, bg))

	result, err := ProcessBatch(context.Background(), testPipeline(t), ref, []string{target},
		&Config{Workers: 1, Background: bg}, nil)
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, bg, result.Background)
	assert.Positive(t, result.Entries[0].Matches)
}

func TestProcessBatch_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	ref := writeScene(t, dir, "ref.png", 3)
	target := writeScene(t, dir, "target.png", 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ProcessBatch(ctx, testPipeline(t), ref, []string{target}, &Config{Workers: 1}, nil)
	require.Error(t, err)
}

package batch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/imas/internal/common"
	"github.com/MeKo-Tech/imas/internal/imageio"
	"github.com/MeKo-Tech/imas/internal/pipeline"
)

// reference is the image every target is matched against, detected once.
type reference struct {
	path       string
	img        image.Image
	det        *pipeline.Detection
	background *pipeline.Detection
}

// loadImage loads an image with a supported extension.
func loadImage(path string) (image.Image, error) {
	if !imageio.IsSupported(path) {
		return nil, fmt.Errorf("unsupported image format: %s", path)
	}
	img, meta, err := imageio.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	slog.Debug("Loaded image", "path", path, "width", meta.Width, "height", meta.Height)
	return img, nil
}

// detectReference loads and detects the reference and the optional
// background image concurrently.
func detectReference(ctx context.Context, pl *pipeline.Pipeline, path, background string) (*reference, error) {
	ref := &reference{path: path}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		img, err := loadImage(path)
		if err != nil {
			return err
		}
		ref.img = img
		ref.det, err = pl.Detect(gctx, filepath.Base(path), img)
		if err != nil {
			return fmt.Errorf("detection failed for %s: %w", path, err)
		}
		return nil
	})
	if background != "" {
		g.Go(func() error {
			img, err := loadImage(background)
			if err != nil {
				return err
			}
			ref.background, err = pl.Detect(gctx, filepath.Base(background), img)
			if err != nil {
				return fmt.Errorf("detection failed for %s: %w", background, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ref, nil
}

// saveOverlay renders the matches side by side and saves them as PNG.
func saveOverlay(ref *reference, img image.Image, res *pipeline.MatchResult, path, overlayDir string) (string, error) {
	ov := pipeline.RenderMatches(ref.img, img, res.Matches)
	if ov == nil {
		return "", errors.New("failed to render overlay")
	}
	base := filepath.Base(path)
	outPath := filepath.Join(overlayDir, strings.TrimSuffix(base, filepath.Ext(base))+"_matches.png")
	if err := imaging.Save(ov, outPath); err != nil {
		return "", fmt.Errorf("failed to save overlay: %w", err)
	}
	return outPath, nil
}

// processSingleImage matches one target against the reference.
func processSingleImage(ctx context.Context, pl *pipeline.Pipeline, ref *reference, path,
	overlayDir string) (Entry, error) {
	sw := common.StartStopwatch()

	img, err := loadImage(path)
	if err != nil {
		return Entry{}, err
	}
	det, err := pl.Detect(ctx, filepath.Base(path), img)
	if err != nil {
		return Entry{}, fmt.Errorf("detection failed for %s: %w", path, err)
	}
	res, err := pl.MatchDetections(ctx, ref.det, det, ref.background)
	if err != nil {
		return Entry{}, fmt.Errorf("matching failed for %s: %w", path, err)
	}

	entry := Entry{
		File:        path,
		Matches:     len(res.Matches),
		RawMatches:  res.Raw,
		Generalized: det.Stats.Generalized,
	}
	if res.Model != nil && res.Model.Accepted {
		entry.Model = res.Model.Kind.String()
	}
	if overlayDir != "" {
		entry.Overlay, err = saveOverlay(ref, img, res, path, overlayDir)
		if err != nil {
			return Entry{}, err
		}
	}
	entry.DurationNs = sw.Elapsed().Nanoseconds()
	return entry, nil
}

// processImagesParallel matches the targets with at most workers pairs in
// flight. A target that fails is recorded with its error unless failFast
// is set or the context ends.
func processImagesParallel(ctx context.Context, pl *pipeline.Pipeline, ref *reference, paths []string,
	config *Config, progress pipeline.ProgressCallback) ([]Entry, error) {
	entries := make([]Entry, len(paths))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(config.Workers, 1))
	progress.OnStart(len(paths))
	for i, path := range paths {
		g.Go(func() error {
			entry, err := processSingleImage(gctx, pl, ref, path, config.OverlayDir)
			if err != nil {
				progress.OnError(i, err)
				if config.FailFast || gctx.Err() != nil {
					return err
				}
				slog.Warn("Target skipped", "file", path, "error", err)
				entry = Entry{File: path, Error: err.Error()}
			}
			entries[i] = entry
			progress.OnProgress(int(done.Add(1)), len(paths))
			return nil
		})
	}
	err := g.Wait()
	progress.OnComplete()
	if err != nil {
		return nil, err
	}

	rankEntries(entries)
	return entries, nil
}

// rankEntries orders entries by match count, best first. Failed targets go
// last; ties keep file order.
func rankEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if a.Failed() != b.Failed() {
			if a.Failed() {
				return 1
			}
			return -1
		}
		if c := cmp.Compare(b.Matches, a.Matches); c != 0 {
			return c
		}
		return cmp.Compare(a.File, b.File)
	})
}

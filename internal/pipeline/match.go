package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/imas/internal/common"
	"github.com/MeKo-Tech/imas/internal/estimator"
	"github.com/MeKo-Tech/imas/internal/keypoint"
	"golang.org/x/sync/errgroup"
)

// Detect runs the detector on one image.
func (p *Pipeline) Detect(ctx context.Context, name string, img image.Image) (*Detection, error) {
	det, err := p.detectorFor(name).Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	p.Profiler.RecordDetection(det)
	return det, nil
}

// Match detects both images, and the optional background image, concurrently
// and matches the first against the second. A nil background selects the
// standard ratio test.
func (p *Pipeline) Match(ctx context.Context, img1, img2, background image.Image) (*MatchResult, error) {
	if img1 == nil || img2 == nil {
		return nil, errors.New("two images are required")
	}
	sw := common.StartStopwatch()

	var detA, detB, detBg *Detection
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		detA, err = p.Detect(gctx, "image1", img1)
		return err
	})
	g.Go(func() (err error) {
		detB, err = p.Detect(gctx, "image2", img2)
		return err
	})
	if background != nil {
		g.Go(func() (err error) {
			detBg, err = p.Detect(gctx, "background", background)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	detection := sw.Lap("detection")

	res, err := p.MatchDetections(ctx, detA, detB, detBg)
	if err != nil {
		return nil, err
	}
	res.Timings.DetectionNs = detection.Nanoseconds()
	res.Timings.TotalNs = sw.Elapsed().Nanoseconds()
	return res, nil
}

// MatchDetections matches two precomputed detections. bg may be nil.
func (p *Pipeline) MatchDetections(ctx context.Context, a, b, bg *Detection) (*MatchResult, error) {
	if a == nil || b == nil {
		return nil, errors.New("two detections are required")
	}
	sw := common.StartStopwatch()
	var background []keypoint.Generalized
	if bg != nil {
		background = bg.Keypoints
	}
	dims := estimator.Dims{W1: a.Width, H1: a.Height, W2: b.Width, H2: b.Height}
	m, err := p.engine.Match(ctx, a.Keypoints, b.Keypoints, background, dims)
	if err != nil {
		return nil, err
	}

	res := &MatchResult{
		Matches: m.Matches,
		Model:   m.Model,
		Raw:     m.Raw,
		Mode:    m.Mode,
		Filter:  p.cfg.Filter,
		StatsA:  a.Stats,
		StatsB:  b.Stats,
		Width1:  a.Width,
		Height1: a.Height,
		Width2:  b.Width,
		Height2: b.Height,
	}
	if bg != nil {
		s := bg.Stats
		res.StatsBackground = &s
	}
	matching := sw.Lap("matching")
	res.Timings.MatchingNs = matching.Nanoseconds()
	res.Timings.TotalNs = res.Timings.MatchingNs
	p.Profiler.RecordMatch(len(res.Matches), matching)
	slog.Info("matching finished",
		"generalized_a", a.Stats.Generalized, "generalized_b", b.Stats.Generalized,
		"raw", res.Raw, "matches", len(res.Matches), "mode", res.Mode, "filter", res.Filter,
		"model", res.Model != nil)
	return res, nil
}

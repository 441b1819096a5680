package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/imas/internal/aggregate"
	"github.com/MeKo-Tech/imas/internal/common"
	"github.com/MeKo-Tech/imas/internal/extractor"
	"github.com/MeKo-Tech/imas/internal/imageio"
	"github.com/MeKo-Tech/imas/internal/keypoint"
	"github.com/MeKo-Tech/imas/internal/tilt"
)

// DetectorConfig configures detection and aggregation for one image.
type DetectorConfig struct {
	Plan tilt.Plan
	// Radius is the merge radius rho in pixels.
	Radius float64
	// OrderedMerge merges view batches in plan order for reproducible output.
	OrderedMerge bool
	// MaxWorkers bounds the view worker pool (0 = runtime.NumCPU()).
	MaxWorkers int
	// MaxSize downscales inputs so that no side exceeds it (0 = native).
	MaxSize int
}

// Validate checks the configuration.
func (c DetectorConfig) Validate() error {
	if c.Plan.Len() == 0 {
		return errors.New("view plan is empty")
	}
	if c.Radius < 0 {
		return fmt.Errorf("merge radius must not be negative, got %v", c.Radius)
	}
	if c.MaxSize < 0 {
		return fmt.Errorf("max size must not be negative, got %d", c.MaxSize)
	}
	return nil
}

// Detection is the set of generalized keypoints found on one image, in the
// coordinates of the image as supplied.
type Detection struct {
	Width     int                    `json:"width"`
	Height    int                    `json:"height"`
	Keypoints []keypoint.Generalized `json:"keypoints"`
	Stats     aggregate.Stats        `json:"stats"`
	Views     int                    `json:"views"`
	// Scale maps working coordinates to the input; 1 without downscaling.
	Scale    float64       `json:"scale"`
	Duration time.Duration `json:"duration_ns"`
}

// Detector runs the view plan over images and aggregates the keypoints.
// A Detector may be used for several images concurrently.
type Detector struct {
	cfg       DetectorConfig
	extractor extractor.Extractor
	simulator *tilt.Simulator
	progress  ProgressCallback
}

// NewDetector creates a Detector around ex.
func NewDetector(cfg DetectorConfig, ex extractor.Extractor) (*Detector, error) {
	if ex == nil {
		return nil, errors.New("extractor is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:       cfg,
		extractor: ex,
		simulator: tilt.NewSimulator(),
		progress:  NoOpProgressCallback{},
	}, nil
}

// WithProgress returns a copy of d reporting to cb.
func (d *Detector) WithProgress(cb ProgressCallback) *Detector {
	c := *d
	if cb == nil {
		cb = NoOpProgressCallback{}
	}
	c.progress = cb
	return &c
}

// Config returns the detector configuration.
func (d *Detector) Config() DetectorConfig { return d.cfg }

// Detect prepares img (grayscale, optional downscale) and detects on it.
// Keypoint coordinates are returned in img's pixel frame.
func (d *Detector) Detect(ctx context.Context, img image.Image) (*Detection, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	g, scale := imageio.Prepare(img, d.cfg.MaxSize)
	det, err := d.DetectAndAggregate(ctx, g)
	if err != nil {
		return nil, err
	}
	if scale != 1 {
		det.rescale(scale)
		b := img.Bounds()
		det.Width, det.Height = b.Dx(), b.Dy()
	}
	return det, nil
}

// DetectAndAggregate simulates every view of the plan, extracts keypoints
// and merges them into generalized keypoints on a grid over img.
func (d *Detector) DetectAndAggregate(ctx context.Context, img *imageio.Gray) (*Detection, error) {
	sw := common.StartStopwatch()
	det := &Detection{Width: img.Width, Height: img.Height, Scale: 1, Keypoints: []keypoint.Generalized{}}
	if img.Empty() {
		return det, nil
	}

	grid, err := aggregate.NewGrid(img.Width, img.Height, d.cfg.Radius)
	if err != nil {
		return nil, err
	}
	defer grid.Release()

	views := d.cfg.Plan.Views()
	d.progress.OnStart(len(views))
	defer d.progress.OnComplete()

	raw := 0
	err = d.runViews(ctx, img, views, d.cfg.OrderedMerge, func(_ int, kps []keypoint.Raw) {
		raw += grid.InsertBatch(kps)
	})
	if err != nil {
		return nil, err
	}
	sw.Lap("views")

	det.Keypoints = grid.Compact()
	det.Stats = aggregate.ComputeStats(det.Keypoints)
	det.Views = len(views)
	sw.Lap("compact")
	det.Duration = sw.Elapsed()
	slog.Debug("detection finished",
		"width", img.Width, "height", img.Height,
		"views", len(views), "raw", raw,
		"generalized", len(det.Keypoints), "timings", sw)
	return det, nil
}

// rescale maps working coordinates to the input frame.
func (det *Detection) rescale(s float64) {
	for i := range det.Keypoints {
		g := &det.Keypoints[i]
		g.X *= s
		g.Y *= s
		g.SumX *= s
		g.SumY *= s
		for j := range g.Members {
			m := &g.Members[j]
			m.X *= s
			m.Y *= s
			m.Scale *= s
			m.Size *= s
		}
	}
	det.Scale = s
}

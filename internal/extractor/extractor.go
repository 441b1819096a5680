// Package extractor detects local features on one (possibly simulated)
// view and returns them as raw keypoints tagged with the view.
package extractor

import (
	"errors"
	"fmt"
	"sort"

	"github.com/MeKo-Tech/imas/internal/imageio"
	"github.com/MeKo-Tech/imas/internal/keypoint"
	"github.com/MeKo-Tech/imas/internal/tilt"
)

// Extractor turns a raster into raw keypoints in the raster's own 0-based
// pixel coordinates, tagged with the view that produced the raster.
type Extractor interface {
	Extract(img *imageio.Gray, view tilt.View) ([]keypoint.Raw, error)
}

// Config controls the built-in detector.
type Config struct {
	Family Family
	// Threshold is the segment test contrast in gray levels.
	Threshold float32
	// Octaves is the number of pyramid levels searched.
	Octaves int
	// MaxKeypoints caps detections per view, strongest first. 0 keeps all.
	MaxKeypoints int
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		Family:       SIFT,
		Threshold:    20,
		Octaves:      3,
		MaxKeypoints: 2000,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, ok := familyNames[c.Family]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownFamily, int(c.Family))
	}
	if c.Threshold <= 0 {
		return errors.New("threshold must be positive")
	}
	if c.Octaves < 1 {
		return errors.New("octaves must be at least 1")
	}
	if c.MaxKeypoints < 0 {
		return errors.New("max keypoints must not be negative")
	}
	return nil
}

const (
	baseSigma   = 1.0
	octaveSigma = 1.0
	// orientRadius is the disc radius for the intensity centroid.
	orientRadius = 7
)

// Patch is the built-in pyramid corner detector with patch descriptors.
type Patch struct {
	cfg Config
}

var _ Extractor = (*Patch)(nil)

// New creates a Patch extractor.
func New(cfg Config) (*Patch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Patch{cfg: cfg}, nil
}

// Family returns the descriptor family.
func (p *Patch) Family() Family { return p.cfg.Family }

type scored struct {
	kp    keypoint.Raw
	score float32
}

// Extract implements Extractor. Empty or tiny rasters yield no keypoints.
func (p *Patch) Extract(img *imageio.Gray, view tilt.View) ([]keypoint.Raw, error) {
	if img.Empty() || img.Width <= 2*patchMargin || img.Height <= 2*patchMargin {
		return nil, nil
	}
	t := max(view.Tilt, 1)

	var found []scored
	level := imageio.Blur(img, baseSigma)
	scale := 1.0
	for range p.cfg.Octaves {
		if level.Width <= 2*patchMargin || level.Height <= 2*patchMargin {
			break
		}
		for _, c := range detectCorners(level, p.cfg.Threshold, patchMargin) {
			angle := orientation(level, c.x, c.y, orientRadius)
			found = append(found, scored{
				kp: keypoint.Raw{
					X:     float64(c.x) * scale,
					Y:     float64(c.y) * scale,
					Scale: scale,
					Angle: angle,
					Size:  descRadius * scale,
					Tilt:  t,
					Theta: view.Theta,
					Desc:  p.describe(level, c.x, c.y, angle),
				},
				score: c.score,
			})
		}
		smoothed := imageio.Blur(level, octaveSigma)
		level.Release()
		level = imageio.Downsample2(smoothed)
		smoothed.Release()
		scale *= 2
	}
	level.Release()

	if p.cfg.MaxKeypoints > 0 && len(found) > p.cfg.MaxKeypoints {
		sort.SliceStable(found, func(i, j int) bool { return found[i].score > found[j].score })
		found = found[:p.cfg.MaxKeypoints]
	}
	out := make([]keypoint.Raw, len(found))
	for i, s := range found {
		out[i] = s.kp
	}
	return out, nil
}

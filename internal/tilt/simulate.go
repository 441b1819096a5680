package tilt

import (
	"errors"
	"math"

	"github.com/MeKo-Tech/imas/internal/imageio"
)

// Simulator renders tilted views of a raster.
type Simulator struct{}

// NewSimulator returns a simulator.
func NewSimulator() *Simulator { return &Simulator{} }

// Simulate renders the view with the default anti-aliasing blur.
func (s *Simulator) Simulate(img *imageio.Gray, view View) (*imageio.Gray, error) {
	return s.SimulateWith(img, view.Theta, view.Tilt, view.Sigma())
}

// SimulateWith rotates img by theta degrees into its bounding canvas, blurs
// vertically with sigma and subsamples rows by t. Output pixel (i, j) is the
// tilted-frame point (i+1, j+1). The caller owns the returned raster and
// should Release it. For the native view the input itself is returned.
func (s *Simulator) SimulateWith(img *imageio.Gray, theta, t, sigma float64) (*imageio.Gray, error) {
	if img.Empty() {
		return &imageio.Gray{}, nil
	}
	if t < 1 {
		return nil, errors.New("tilt must be >= 1")
	}
	if theta == 0 && t == 1 {
		return img, nil
	}

	rotated := img
	if theta != 0 {
		rotated = rotate(img, Radians(theta))
	}
	if t == 1 {
		return rotated, nil
	}

	src := rotated
	if sigma > 0 {
		src = imageio.BlurColumns(rotated, sigma)
		if rotated != img {
			rotated.Release()
		}
	}
	out := subsampleRows(src, t)
	if src != img {
		src.Release()
	}
	return out, nil
}

func rotate(img *imageio.Gray, theta float64) *imageio.Gray {
	f := newFrame(img.Width, img.Height, theta)
	w, h := CanvasSize(img.Width, img.Height, 1, theta)
	out := imageio.NewPooledGray(w, h)
	for j := range h {
		yr := float64(j) + f.yOri
		row := out.Pix[j*w : (j+1)*w]
		for i := range w {
			xn, yn := f.unrotate(float64(i)+f.xOri, yr)
			if v, ok := img.Bilinear(xn, yn); ok {
				row[i] = v
			}
		}
	}
	return out
}

// subsampleRows keeps rows at 0, t, 2t, ... interpolating linearly. A last
// row past the raster repeats the bottom row.
func subsampleRows(img *imageio.Gray, t float64) *imageio.Gray {
	w := img.Width
	h := tiltedRows(img.Height, t)
	out := imageio.NewPooledGray(w, h)
	last := img.Height - 1
	for j := range h {
		r := math.Min(float64(j)*t, float64(last))
		r0 := int(r)
		r1 := min(r0+1, last)
		f := float32(r - float64(r0))
		a := img.Pix[r0*w : (r0+1)*w]
		b := img.Pix[r1*w : (r1+1)*w]
		dst := out.Pix[j*w : (j+1)*w]
		for x := range w {
			dst[x] = a[x]*(1-f) + b[x]*f
		}
	}
	return out
}

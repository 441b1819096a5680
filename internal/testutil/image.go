package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextureConfig describes a synthetic scene of random shapes.
type TextureConfig struct {
	Width  int
	Height int
	Shapes int
	Seed   uint32
	// Label, when set, is stamped in the top-left corner.
	Label string
	// Blur softens edges so corners survive resampling.
	Blur float64
}

// DefaultTextureConfig returns a 160x120 scene with 40 shapes.
func DefaultTextureConfig() TextureConfig {
	return TextureConfig{Width: 160, Height: 120, Shapes: 40, Seed: 7, Blur: 0.8}
}

// GenerateTexture paints random rectangles and discs of random gray levels
// on a mid-gray background. The same config always yields the same image.
func GenerateTexture(cfg TextureConfig) *image.NRGBA {
	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{Y: 128}}, image.Point{}, draw.Src)

	var rng fastrand.RNG
	rng.Seed(max(cfg.Seed, 1))
	maxSide := uint32(max(cfg.Width/6, 4))
	for range cfg.Shapes {
		x := int(rng.Uint32n(uint32(cfg.Width)))
		y := int(rng.Uint32n(uint32(cfg.Height)))
		s := int(rng.Uint32n(maxSide)) + 3
		level := color.Gray{Y: uint8(rng.Uint32n(256))}
		if rng.Uint32n(2) == 0 {
			fillRect(img, image.Rect(x, y, x+s, y+s*2/3+2), level)
		} else {
			fillDisc(img, x, y, s/2+1, level)
		}
	}
	if cfg.Label != "" {
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.Black),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(4, 14),
		}
		d.DrawString(cfg.Label)
	}
	if cfg.Blur > 0 {
		return imaging.Blur(img, cfg.Blur)
	}
	return imaging.Clone(img)
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r.Intersect(img.Bounds()), &image.Uniform{c}, image.Point{}, draw.Src)
}

func fillDisc(img *image.RGBA, cx, cy, r int, c color.Color) {
	b := img.Bounds()
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r && image.Pt(x, y).In(b) {
				img.Set(x, y, c)
			}
		}
	}
}

// SaveImage writes img as PNG, creating parent directories.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()
	require.NoError(t, EnsureDir(filepath.Dir(path)))

	file, err := os.Create(path) //nolint:gosec // G304: test path
	require.NoError(t, err, "Failed to create file %s", path)
	defer func() {
		require.NoError(t, file.Close())
	}()
	require.NoError(t, png.Encode(file, img), "Failed to encode PNG image")
}

// WriteTexturePNG renders a texture straight to disk without a testing.T.
func WriteTexturePNG(cfg TextureConfig, path string) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return imaging.Save(GenerateTexture(cfg), path)
}

// SimulateView rotates img by angle degrees and then compresses it
// horizontally by tilt, the affine camera model of an oblique view.
func SimulateView(img image.Image, tilt, angle float64) *image.NRGBA {
	rotated := imaging.Rotate(img, angle, color.Gray{Y: 128})
	b := rotated.Bounds()
	w := max(int(float64(b.Dx())/tilt+0.5), 1)
	return imaging.Resize(rotated, w, b.Dy(), imaging.Lanczos)
}

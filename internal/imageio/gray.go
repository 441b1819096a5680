// Package imageio loads images and converts them to the single-channel float
// rasters the detector and the tilt simulator work on.
package imageio

import (
	"image"
	"image/color"
	"math"

	"github.com/MeKo-Tech/imas/internal/mempool"
	"github.com/disintegration/imaging"
)

// Gray is a row-major single-channel raster with intensities in [0, 255].
type Gray struct {
	Pix    []float32
	Width  int
	Height int

	pooled bool
}

// NewGray allocates a zeroed raster.
func NewGray(width, height int) *Gray {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &Gray{Pix: make([]float32, width*height), Width: width, Height: height}
}

// NewPooledGray allocates a zeroed raster from the shared buffer pool.
// Call Release once the raster is no longer referenced.
func NewPooledGray(width, height int) *Gray {
	if width <= 0 || height <= 0 {
		return &Gray{}
	}
	return &Gray{Pix: mempool.GetFloat32(width * height), Width: width, Height: height, pooled: true}
}

// Release hands a pooled buffer back. It is a no-op for regular rasters.
func (g *Gray) Release() {
	if g == nil || !g.pooled {
		return
	}
	mempool.PutFloat32(g.Pix)
	g.Pix = nil
	g.pooled = false
}

// Empty reports whether the raster has no pixels.
func (g *Gray) Empty() bool {
	return g == nil || g.Width <= 0 || g.Height <= 0 || len(g.Pix) < g.Width*g.Height
}

// At returns the pixel at (x, y); coordinates are clamped to the raster.
func (g *Gray) At(x, y int) float32 {
	x = clampInt(x, 0, g.Width-1)
	y = clampInt(y, 0, g.Height-1)
	return g.Pix[y*g.Width+x]
}

// Bilinear samples at a sub-pixel 0-based position and returns ok=false
// outside the raster.
func (g *Gray) Bilinear(x, y float64) (float32, bool) {
	if x < 0 || y < 0 || x > float64(g.Width-1) || y > float64(g.Height-1) {
		return 0, false
	}
	x0 := int(x)
	y0 := int(y)
	x1 := min(x0+1, g.Width-1)
	y1 := min(y0+1, g.Height-1)
	fx := float32(x - float64(x0))
	fy := float32(y - float64(y0))
	row0 := y0 * g.Width
	row1 := y1 * g.Width
	top := g.Pix[row0+x0]*(1-fx) + g.Pix[row0+x1]*fx
	bot := g.Pix[row1+x0]*(1-fx) + g.Pix[row1+x1]*fx
	return top*(1-fy) + bot*fy, true
}

// Clone returns a deep, non-pooled copy.
func (g *Gray) Clone() *Gray {
	out := NewGray(g.Width, g.Height)
	copy(out.Pix, g.Pix)
	return out
}

// FromImage converts any image to a grayscale raster using imaging's
// luminance conversion.
func FromImage(img image.Image) *Gray {
	if img == nil {
		return &Gray{}
	}
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	out := NewGray(b.Dx(), b.Dy())
	for y := range out.Height {
		row := gray.Pix[y*gray.Stride:]
		for x := range out.Width {
			out.Pix[y*out.Width+x] = float32(row[x*4])
		}
	}
	return out
}

// ToImage converts the raster to an 8-bit image, clamping to [0, 255].
func (g *Gray) ToImage() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	for i, v := range g.Pix[:g.Width*g.Height] {
		out.Pix[i] = uint8(math.Round(float64(clampFloat(v, 0, 255))))
	}
	return out
}

// Prepare converts img to a raster, downscaling with Lanczos so that neither
// side exceeds maxSize. A maxSize <= 0 keeps the native resolution. The
// returned scale maps prepared coordinates back to the input (native = prepared * scale).
func Prepare(img image.Image, maxSize int) (*Gray, float64) {
	if img == nil {
		return &Gray{}, 1
	}
	b := img.Bounds()
	if maxSize > 0 && (b.Dx() > maxSize || b.Dy() > maxSize) {
		resized := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
		scale := float64(b.Dx()) / float64(resized.Bounds().Dx())
		return FromImage(resized), scale
	}
	return FromImage(img), 1
}

// ToRGBA copies any image into a fresh RGBA canvas.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := range b.Dy() {
		for x := range b.Dx() {
			out.Set(x, y, color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)))
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

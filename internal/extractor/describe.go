package extractor

import (
	"math"

	"github.com/MeKo-Tech/imas/internal/imageio"
	"github.com/MeKo-Tech/imas/internal/keypoint"
	"github.com/valyala/fastrand"
)

const (
	// descRadius is the half width of the histogram window in level pixels.
	descRadius = 8
	// cellsPerSide * cellsPerSide spatial cells, each with orientBins bins.
	cellsPerSide = 4
	orientBins   = 8
	// patchMargin keeps the rotated window and its gradient taps inside the level.
	patchMargin = 13

	briefBits   = 256
	briefRadius = 12
)

// briefPattern holds the point pairs compared by the binary descriptor,
// drawn once from a fixed seed so descriptors are comparable across runs.
var briefPattern = func() [briefBits][4]float64 {
	var rng fastrand.RNG
	rng.Seed(0x1b873593)
	span := uint32(2*briefRadius + 1)
	var p [briefBits][4]float64
	for i := range p {
		for k := range 4 {
			p[i][k] = float64(int(rng.Uint32n(span)) - briefRadius)
		}
	}
	return p
}()

func (p *Patch) describe(img *imageio.Gray, x, y int, angle float64) keypoint.Descriptor {
	if p.cfg.Family == BRIEF {
		return describeBinary(img, x, y, angle)
	}
	return describeFloat(img, x, y, angle, p.cfg.Family)
}

func describeFloat(img *imageio.Gray, x, y int, angle float64, family Family) keypoint.Float {
	hist := gradientHistogram(img, float64(x), float64(y), angle)
	if family.halved() {
		hist = foldHalf(hist)
	}
	normalizeL2(hist)
	for i, v := range hist {
		hist[i] = min(v, 0.2)
	}
	normalizeL2(hist)

	if family.rooted() {
		var sum float32
		for _, v := range hist {
			sum += v
		}
		if sum > 0 {
			for i, v := range hist {
				hist[i] = float32(math.Sqrt(float64(v / sum)))
			}
		}
		return keypoint.Float{Vec: hist}
	}
	for i, v := range hist {
		hist[i] = min(512*v, 255)
	}
	return keypoint.Float{Vec: hist}
}

// gradientHistogram accumulates Gaussian-weighted gradient magnitudes of a
// window rotated to angle into spatial cells and orientation bins.
func gradientHistogram(img *imageio.Gray, x, y, angle float64) []float32 {
	hist := make([]float32, cellsPerSide*cellsPerSide*orientBins)
	c, s := math.Cos(angle), math.Sin(angle)
	cell := float64(2*descRadius) / cellsPerSide
	sigma2 := 2 * float64(descRadius*descRadius)
	for j := range 2 * descRadius {
		v := float64(j) - descRadius + 0.5
		for i := range 2 * descRadius {
			u := float64(i) - descRadius + 0.5
			px := x + c*u - s*v
			py := y + s*u + c*v
			l, ok1 := img.Bilinear(px-1, py)
			r, ok2 := img.Bilinear(px+1, py)
			t, ok3 := img.Bilinear(px, py-1)
			b, ok4 := img.Bilinear(px, py+1)
			if !ok1 || !ok2 || !ok3 || !ok4 {
				continue
			}
			gx := float64(r - l)
			gy := float64(b - t)
			// Express the gradient in the keypoint frame.
			gu := c*gx + s*gy
			gv := -s*gx + c*gy
			mag := math.Hypot(gu, gv)
			if mag == 0 {
				continue
			}
			theta := math.Atan2(gv, gu)
			if theta < 0 {
				theta += 2 * math.Pi
			}
			bin := int(theta/(2*math.Pi)*orientBins) % orientBins
			cx := min(int((u+descRadius)/cell), cellsPerSide-1)
			cy := min(int((v+descRadius)/cell), cellsPerSide-1)
			weight := math.Exp(-(u*u + v*v) / sigma2)
			hist[(cy*cellsPerSide+cx)*orientBins+bin] += float32(weight * mag)
		}
	}
	return hist
}

// foldHalf merges each orientation bin with its opposite.
func foldHalf(hist []float32) []float32 {
	const half = orientBins / 2
	out := make([]float32, len(hist)/2)
	for cell := range len(hist) / orientBins {
		for b := range half {
			out[cell*half+b] = hist[cell*orientBins+b] + hist[cell*orientBins+b+half]
		}
	}
	return out
}

func normalizeL2(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

func describeBinary(img *imageio.Gray, x, y int, angle float64) keypoint.Binary {
	c, s := math.Cos(angle), math.Sin(angle)
	fx, fy := float64(x), float64(y)
	bits := make([]uint64, briefBits/64)
	for i, pair := range briefPattern {
		a := sampleRotated(img, fx, fy, pair[0], pair[1], c, s)
		b := sampleRotated(img, fx, fy, pair[2], pair[3], c, s)
		if a < b {
			bits[i/64] |= 1 << (uint(i) % 64)
		}
	}
	return keypoint.Binary{Bits: bits, Polarity: laplacianSign(img, x, y)}
}

func sampleRotated(img *imageio.Gray, x, y, u, v, c, s float64) float32 {
	val, _ := img.Bilinear(x+c*u-s*v, y+s*u+c*v)
	return val
}

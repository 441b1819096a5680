package imageio

import "math"

// GaussianKernel returns a normalized 1-D kernel of radius ceil(4*sigma).
func GaussianKernel(sigma float64) []float32 {
	radius := max(int(math.Ceil(4*sigma)), 1)
	k := make([]float32, 2*radius+1)
	var sum float64
	for i := range k {
		d := float64(i - radius)
		v := math.Exp(-d * d / (2 * sigma * sigma))
		k[i] = float32(v)
		sum += v
	}
	for i := range k {
		k[i] = float32(float64(k[i]) / sum)
	}
	return k
}

// BlurColumns convolves every column with a Gaussian, clamping at the edges.
// The result is pooled.
func BlurColumns(g *Gray, sigma float64) *Gray {
	k := GaussianKernel(sigma)
	radius := len(k) / 2
	w, h := g.Width, g.Height
	out := NewPooledGray(w, h)
	for y := range h {
		dst := out.Pix[y*w : (y+1)*w]
		for ki, kv := range k {
			sy := clampInt(y+ki-radius, 0, h-1)
			src := g.Pix[sy*w : (sy+1)*w]
			for x := range w {
				dst[x] += kv * src[x]
			}
		}
	}
	return out
}

// BlurRows convolves every row with a Gaussian, clamping at the edges.
// The result is pooled.
func BlurRows(g *Gray, sigma float64) *Gray {
	k := GaussianKernel(sigma)
	radius := len(k) / 2
	w, h := g.Width, g.Height
	out := NewPooledGray(w, h)
	for y := range h {
		src := g.Pix[y*w : (y+1)*w]
		dst := out.Pix[y*w : (y+1)*w]
		for x := range w {
			var acc float32
			for ki, kv := range k {
				acc += kv * src[clampInt(x+ki-radius, 0, w-1)]
			}
			dst[x] = acc
		}
	}
	return out
}

// Blur applies a separable isotropic Gaussian. The result is pooled.
func Blur(g *Gray, sigma float64) *Gray {
	if g.Empty() {
		return &Gray{}
	}
	rows := BlurRows(g, sigma)
	out := BlurColumns(rows, sigma)
	rows.Release()
	return out
}

// Downsample2 keeps every second pixel in both directions. The result is pooled.
func Downsample2(g *Gray) *Gray {
	w := (g.Width + 1) / 2
	h := (g.Height + 1) / 2
	out := NewPooledGray(w, h)
	for y := range h {
		src := g.Pix[2*y*g.Width:]
		dst := out.Pix[y*w : (y+1)*w]
		for x := range w {
			dst[x] = src[2*x]
		}
	}
	return out
}

// Package tilt maps coordinates between an image and its simulated
// tilt/rotation views, enumerates the views to simulate and renders them.
//
// Frame coordinates are 1-based: pixel column i (0-based) of a raster is
// x = i+1. Angles passed to the geometry functions are in radians.
package tilt

import "math"

// frame holds the rotation and the corner-based origin shared by the forward
// and inverse mappings.
type frame struct {
	cos, sin   float64
	xOri, yOri float64
	// rotated corners (0,0), (w-1,0), (w-1,h-1), (0,h-1)
	cx, cy [4]float64
}

func newFrame(width, height int, theta float64) frame {
	f := frame{cos: math.Cos(theta), sin: math.Sin(theta)}
	w := float64(width - 1)
	h := float64(height - 1)
	corners := [4][2]float64{{0, 0}, {w, 0}, {w, h}, {0, h}}
	f.xOri, f.yOri = math.Inf(1), math.Inf(1)
	for i, c := range corners {
		f.cx[i], f.cy[i] = f.rotate(c[0], c[1])
		f.xOri = math.Min(f.xOri, f.cx[i])
		f.yOri = math.Min(f.yOri, f.cy[i])
	}
	return f
}

func (f frame) rotate(x, y float64) (float64, float64) {
	return f.cos*x + f.sin*y, -f.sin*x + f.cos*y
}

func (f frame) unrotate(x, y float64) (float64, float64) {
	return f.cos*x - f.sin*y, f.sin*x + f.cos*y
}

// CanvasSize returns the dimensions of the simulated raster for a view. The
// raster covers every transformed corner, so fractional extents round up.
func CanvasSize(width, height int, t, theta float64) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	f := newFrame(width, height, theta)
	var xMax, yMax float64
	for i := range 4 {
		xMax = math.Max(xMax, f.cx[i]-f.xOri)
		yMax = math.Max(yMax, f.cy[i]-f.yOri)
	}
	w := coverCount(xMax)
	h := coverCount(yMax)
	return w, tiltedRows(h, t)
}

// coverCount is the number of unit-spaced samples from 0 needed to reach
// extent. Rounding noise below eps is ignored.
func coverCount(extent float64) int {
	const eps = 1e-9
	return max(int(math.Ceil(extent-eps)), 0) + 1
}

// tiltedRows is the number of rows kept when subsampling h rows by t.
func tiltedRows(h int, t float64) int {
	if t <= 1 {
		return h
	}
	return coverCount(float64(h-1) / t)
}

// ToTiltedFrame maps a native point into the simulated view: rotate by theta
// about the origin, translate the rotated corners into the first quadrant,
// compress y by t.
func ToTiltedFrame(x, y float64, width, height int, t, theta float64) (float64, float64) {
	f := newFrame(width, height, theta)
	xr, yr := f.rotate(x-1, y-1)
	return xr - f.xOri + 1, (yr-f.yOri)/t + 1
}

// FromTiltedFrame maps a point of the simulated view back to the native
// image. Points within border of the transformed image boundary, or falling
// outside [1,width]x[1,height] after inversion, are rejected.
func FromTiltedFrame(x, y float64, width, height int, border, t, theta float64) (float64, float64, bool) {
	f := newFrame(width, height, theta)

	var bx, by [4]float64
	for i := range 4 {
		bx[i] = f.cx[i] - f.xOri + 1
		by[i] = (f.cy[i]-f.yOri)/t + 1
	}
	for i := range 4 {
		j := (i + 1) % 4
		if lineDistance(x, y, bx[i], by[i], bx[j], by[j]) <= border {
			return 0, 0, false
		}
	}

	xr := (x - 1) + f.xOri
	yr := (y-1)*t + f.yOri
	xn, yn := f.unrotate(xr, yr)
	xn++
	yn++
	if xn < 1 || xn > float64(width) || yn < 1 || yn > float64(height) {
		return 0, 0, false
	}
	return xn, yn, true
}

// lineDistance is the perpendicular distance from (x, y) to the line through
// (x1, y1) and (x2, y2). Degenerate segments fall back to point distance.
func lineDistance(x, y, x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	n := math.Hypot(dx, dy)
	if n == 0 {
		return math.Hypot(x-x1, y-y1)
	}
	return math.Abs(dy*(x-x1)-dx*(y-y1)) / n
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * math.Pi / 180 }

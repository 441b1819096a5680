package imageio

import (
	"image"
	"image/color"
	"math"
)

// DrawLine draws a segment between two sub-pixel points using Bresenham.
func DrawLine(dst *image.RGBA, x0, y0, x1, y1 float64, col color.Color, thickness int) {
	a := image.Pt(int(math.Round(x0)), int(math.Round(y0)))
	b := image.Pt(int(math.Round(x1)), int(math.Round(y1)))
	drawLine(dst, a, b, col, thickness)
}

// DrawCross marks a point with a small plus sign of the given half size.
func DrawCross(dst *image.RGBA, x, y float64, half int, col color.Color) {
	cx := int(math.Round(x))
	cy := int(math.Round(y))
	drawLine(dst, image.Pt(cx-half, cy), image.Pt(cx+half, cy), col, 1)
	drawLine(dst, image.Pt(cx, cy-half), image.Pt(cx, cy+half), col, 1)
}

func drawLine(dst *image.RGBA, a, b image.Point, col color.Color, thickness int) {
	x0, y0 := a.X, a.Y
	x1, y1 := b.X, b.Y
	dx := absInt(x1 - x0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -absInt(y1 - y0)
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		drawThickPoint(dst, x0, y0, col, thickness)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func drawThickPoint(dst *image.RGBA, x, y int, col color.Color, thickness int) {
	r := (max(thickness, 1) - 1) / 2
	bounds := dst.Bounds()
	for yy := y - r; yy <= y+r; yy++ {
		for xx := x - r; xx <= x+r; xx++ {
			if image.Pt(xx, yy).In(bounds) {
				dst.Set(xx, yy, col)
			}
		}
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

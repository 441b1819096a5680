package pipeline

import (
	"image"
	"image/color"

	"github.com/MeKo-Tech/imas/internal/imageio"
	"github.com/MeKo-Tech/imas/internal/matcher"
	"github.com/disintegration/imaging"
)

// OverlayGap is the horizontal gap between the two images of an overlay.
const OverlayGap = 10

var overlayPalette = []color.RGBA{
	{230, 25, 75, 255},
	{60, 180, 75, 255},
	{0, 130, 200, 255},
	{245, 130, 48, 255},
	{145, 30, 180, 255},
	{70, 240, 240, 255},
}

// RenderMatches places a and b side by side and draws a line between the
// two ends of every match, with a cross on each keypoint.
func RenderMatches(a, b image.Image, matches []matcher.Correspondence) *image.RGBA {
	if a == nil || b == nil {
		return nil
	}
	ba, bb := a.Bounds(), b.Bounds()
	w := ba.Dx() + OverlayGap + bb.Dx()
	h := max(ba.Dy(), bb.Dy())

	canvas := imaging.New(w, h, color.White)
	canvas = imaging.Paste(canvas, a, image.Pt(0, 0))
	canvas = imaging.Paste(canvas, b, image.Pt(ba.Dx()+OverlayGap, 0))
	dst := imageio.ToRGBA(canvas)

	off := float64(ba.Dx() + OverlayGap)
	for i, m := range matches {
		col := overlayPalette[i%len(overlayPalette)]
		imageio.DrawLine(dst, m.A.X, m.A.Y, m.B.X+off, m.B.Y, col, 1)
		imageio.DrawCross(dst, m.A.X, m.A.Y, 3, col)
		imageio.DrawCross(dst, m.B.X+off, m.B.Y, 3, col)
	}
	return dst
}

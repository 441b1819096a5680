package pipeline

import (
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/imas/internal/keypoint"
	"github.com/MeKo-Tech/imas/internal/matcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformGray(w, h int, level uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

func TestRenderMatches(t *testing.T) {
	a := uniformGray(40, 30, 0)
	b := uniformGray(50, 20, 0)
	matches := []matcher.Correspondence{{
		A: keypoint.Raw{X: 10, Y: 10},
		B: keypoint.Raw{X: 10, Y: 10},
	}}

	out := RenderMatches(a, b, matches)
	require.NotNil(t, out)
	assert.Equal(t, 40+OverlayGap+50, out.Bounds().Dx())
	assert.Equal(t, 30, out.Bounds().Dy())

	// The gap stays white, the horizontal match line crosses it.
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(45, 25))
	assert.Equal(t, overlayPalette[0], out.RGBAAt(45, 10))
	// The second image lies to the right of the gap.
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, out.RGBAAt(40+OverlayGap+30, 15))
}

func TestRenderMatches_Nil(t *testing.T) {
	assert.Nil(t, RenderMatches(nil, uniformGray(4, 4, 0), nil))
}

package tilt

import (
	"math"
	"testing"

	"github.com/MeKo-Tech/imas/internal/imageio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blobImage(w, h int, cx, cy float64) *imageio.Gray {
	img := imageio.NewGray(w, h)
	for y := range h {
		for x := range w {
			d2 := (float64(x)-cx)*(float64(x)-cx) + (float64(y)-cy)*(float64(y)-cy)
			img.Pix[y*w+x] = float32(255 * math.Exp(-d2/8))
		}
	}
	return img
}

func argmax(img *imageio.Gray) (int, int) {
	best := float32(-1)
	bx, by := 0, 0
	for y := range img.Height {
		for x := range img.Width {
			if v := img.Pix[y*img.Width+x]; v > best {
				best, bx, by = v, x, y
			}
		}
	}
	return bx, by
}

func TestSimulate_NativeReturnsInput(t *testing.T) {
	img := blobImage(32, 32, 10, 10)
	out, err := NewSimulator().Simulate(img, View{Tilt: 1})
	require.NoError(t, err)
	assert.Same(t, img, out)
}

func TestSimulate_Empty(t *testing.T) {
	out, err := NewSimulator().Simulate(&imageio.Gray{}, View{Tilt: 2, Theta: 30})
	require.NoError(t, err)
	assert.True(t, out.Empty())
}

func TestSimulate_InvalidTilt(t *testing.T) {
	_, err := NewSimulator().SimulateWith(blobImage(8, 8, 4, 4), 0, 0.5, 0)
	require.Error(t, err)
}

func TestSimulate_MatchesGeometry(t *testing.T) {
	const w, h = 80, 60
	img := blobImage(w, h, 30, 20)
	for _, v := range []View{{Tilt: 1, Theta: 40}, {Tilt: 2}, {Tilt: 2, Theta: 30}, {Tilt: 2.83, Theta: 120}} {
		out, err := NewSimulator().Simulate(img, v)
		require.NoError(t, err)

		cw, ch := CanvasSize(w, h, v.Tilt, v.Radians())
		assert.Equal(t, cw, out.Width, "view %+v", v)
		assert.Equal(t, ch, out.Height, "view %+v", v)

		xt, yt := ToTiltedFrame(31, 21, w, h, v.Tilt, v.Radians())
		mx, my := argmax(out)
		assert.InDelta(t, xt-1, float64(mx), 1.5, "view %+v", v)
		assert.InDelta(t, yt-1, float64(my), 1.5, "view %+v", v)
		out.Release()
	}
}

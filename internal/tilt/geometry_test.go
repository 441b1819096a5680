package tilt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToTiltedFrame_NoRotation(t *testing.T) {
	x, y := ToTiltedFrame(10, 21, 100, 50, 2, 0)
	assert.InDelta(t, 10, x, 1e-9)
	assert.InDelta(t, 11, y, 1e-9)

	x, y = ToTiltedFrame(1, 1, 100, 50, 3, 0)
	assert.InDelta(t, 1, x, 1e-9)
	assert.InDelta(t, 1, y, 1e-9)
}

func TestToTiltedFrame_QuarterTurn(t *testing.T) {
	// The top-left native pixel lands bottom-left of the rotated canvas.
	x, y := ToTiltedFrame(1, 1, 100, 50, 1, math.Pi/2)
	assert.InDelta(t, 1, x, 1e-9)
	assert.InDelta(t, 100, y, 1e-9)

	w, h := CanvasSize(100, 50, 1, math.Pi/2)
	assert.Equal(t, 50, w)
	assert.Equal(t, 100, h)
}

func TestCanvasSize(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		tilt, theta  float64
		wantW, wantH int
	}{
		{"native", 64, 48, 1, 0, 64, 48},
		{"tilt only", 64, 49, 2, 0, 64, 25},
		{"empty", 0, 10, 2, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := CanvasSize(tt.w, tt.h, tt.tilt, tt.theta)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestCanvasSize_ContainsAllCorners(t *testing.T) {
	for _, deg := range []float64{0, 15, 45, 90, 120, 179} {
		for _, tt := range []float64{1, 1.7, 2.89, 4} {
			w, h := CanvasSize(80, 60, tt, Radians(deg))
			for _, c := range [][2]float64{{1, 1}, {80, 1}, {80, 60}, {1, 60}} {
				x, y := ToTiltedFrame(c[0], c[1], 80, 60, tt, Radians(deg))
				assert.GreaterOrEqual(t, x, 1-1e-6)
				assert.GreaterOrEqual(t, y, 1-1e-6)
				assert.LessOrEqual(t, x, float64(w)+1e-6, "theta=%v t=%v", deg, tt)
				assert.LessOrEqual(t, y, float64(h)+1e-6, "theta=%v t=%v", deg, tt)
			}
		}
	}
}

func TestCanvasSize_FractionalExtentRoundsUp(t *testing.T) {
	// At 120 degrees the corner (1,60) lands at x=91.595 on an 80x60 image.
	w, h := CanvasSize(80, 60, 1, Radians(120))
	x, y := ToTiltedFrame(1, 60, 80, 60, 1, Radians(120))
	assert.InDelta(t, 91.595, x, 1e-3)
	assert.Equal(t, 92, w)
	assert.LessOrEqual(t, y, float64(h))

	// Exact extents are not padded by rounding noise.
	w, h = CanvasSize(100, 50, 1, Radians(90))
	assert.Equal(t, 50, w)
	assert.Equal(t, 100, h)
}

func TestTiltedRows(t *testing.T) {
	assert.Equal(t, 48, tiltedRows(48, 1))
	assert.Equal(t, 25, tiltedRows(49, 2))
	// 47 rows of extent over t=2 leave a partial row that is kept.
	assert.Equal(t, 25, tiltedRows(48, 2))
	assert.Equal(t, 1, tiltedRows(1, 4))
}

func TestFromTiltedFrame_RejectsNearBorder(t *testing.T) {
	// A point one pixel inside the left edge of an unrotated view.
	_, _, ok := FromTiltedFrame(2, 20, 100, 50, 1.5, 1, 0)
	assert.False(t, ok)

	x, y, ok := FromTiltedFrame(2, 20, 100, 50, 0.5, 1, 0)
	require.True(t, ok)
	assert.InDelta(t, 2, x, 1e-9)
	assert.InDelta(t, 20, y, 1e-9)
}

func TestFromTiltedFrame_RejectsOutsideImage(t *testing.T) {
	// Corner of the rotated canvas that does not belong to the image.
	_, _, ok := FromTiltedFrame(1, 1, 100, 50, 0, 1, Radians(45))
	assert.False(t, ok)

	_, _, ok = FromTiltedFrame(500, 10, 100, 50, 0, 1, 0)
	assert.False(t, ok)
}

func TestLineDistance(t *testing.T) {
	assert.InDelta(t, 3, lineDistance(0, 3, -1, 0, 5, 0), 1e-12)
	assert.InDelta(t, 5, lineDistance(3, 4, 0, 0, 0, 0), 1e-12)
}

func TestRadians(t *testing.T) {
	assert.InDelta(t, math.Pi, Radians(180), 1e-12)
}

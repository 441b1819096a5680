package tilt

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const (
	propWidth  = 120
	propHeight = 90
)

func TestTiltedFrame_RoundTrip(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 300
	properties := gopter.NewProperties(params)

	properties.Property("from(to(p)) recovers interior points", prop.ForAll(
		func(x, y, tl, theta float64) bool {
			xt, yt := ToTiltedFrame(x, y, propWidth, propHeight, tl, theta)
			xb, yb, ok := FromTiltedFrame(xt, yt, propWidth, propHeight, 0, tl, theta)
			return ok && math.Abs(xb-x) < 1e-6 && math.Abs(yb-y) < 1e-6
		},
		gen.Float64Range(2, propWidth-1),
		gen.Float64Range(2, propHeight-1),
		gen.Float64Range(1, 8),
		gen.Float64Range(0, math.Pi),
	))

	properties.TestingRun(t)
}

func TestFromTiltedFrame_BorderMonotonic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a larger border threshold never accepts more", prop.ForAll(
		func(x, y, tl, theta, b1, extra float64) bool {
			_, _, okSmall := FromTiltedFrame(x, y, propWidth, propHeight, b1, tl, theta)
			_, _, okLarge := FromTiltedFrame(x, y, propWidth, propHeight, b1+extra, tl, theta)
			return !okLarge || okSmall
		},
		gen.Float64Range(-5, 160),
		gen.Float64Range(-5, 160),
		gen.Float64Range(1, 6),
		gen.Float64Range(0, math.Pi),
		gen.Float64Range(0, 10),
		gen.Float64Range(0, 10),
	))

	properties.TestingRun(t)
}

package tilt

import (
	"errors"
	"fmt"
	"math"
)

// View is one simulated tilt/rotation. Theta is in degrees.
type View struct {
	Tilt  float64 `json:"t"`
	Theta float64 `json:"theta"`
}

// Native reports whether the view is the unmodified input image.
func (v View) Native() bool { return v.Tilt <= 1 }

// Radians returns the rotation in radians.
func (v View) Radians() float64 { return Radians(v.Theta) }

// Sigma is the vertical anti-aliasing blur applied before subsampling by t.
func (v View) Sigma() float64 { return AntiAliasSigma(v.Tilt) }

// AntiAliasSigma returns 0.8*sqrt(t^2-1), or 0 for t <= 1.
func AntiAliasSigma(t float64) float64 {
	if t <= 1 {
		return 0
	}
	return 0.8 * math.Sqrt(t*t-1)
}

// Tilt is one tilt magnitude of a plan with its rotations in degrees.
type Tilt struct {
	T         float64   `json:"t"`
	Rotations []float64 `json:"rotations,omitempty"`
}

// Plan is the ordered sequence of tilts to simulate for one image.
type Plan []Tilt

var errInvalidPlan = errors.New("invalid view plan")

// NativePlan simulates nothing and detects on the input image only.
func NativePlan() Plan { return Plan{{T: 1}} }

// NewPlan builds a geometric covering of the tilt space: tilts tiltStep^k up
// to maxTilt, each tilt t > 1 sampled at rotations spaced rotationStep/t
// degrees over [0, 180).
func NewPlan(maxTilt, tiltStep, rotationStep float64) (Plan, error) {
	if maxTilt < 1 {
		return nil, fmt.Errorf("%w: max tilt %.3f < 1", errInvalidPlan, maxTilt)
	}
	if tiltStep <= 1 {
		return nil, fmt.Errorf("%w: tilt step %.3f must exceed 1", errInvalidPlan, tiltStep)
	}
	tilts := []float64{1}
	const eps = 1e-9
	for t := tiltStep; t <= maxTilt+eps; t *= tiltStep {
		tilts = append(tilts, t)
	}
	return PlanFromTilts(tilts, rotationStep)
}

// PlanFromTilts builds a plan from an explicit tilt list.
func PlanFromTilts(tilts []float64, rotationStep float64) (Plan, error) {
	if len(tilts) == 0 {
		return nil, fmt.Errorf("%w: no tilts", errInvalidPlan)
	}
	if rotationStep <= 0 {
		return nil, fmt.Errorf("%w: rotation step %.3f must be positive", errInvalidPlan, rotationStep)
	}
	plan := make(Plan, 0, len(tilts))
	for _, t := range tilts {
		if t < 1 || math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("%w: tilt %.3f < 1", errInvalidPlan, t)
		}
		plan = append(plan, Tilt{T: t, Rotations: rotationsFor(t, rotationStep)})
	}
	return plan, nil
}

func rotationsFor(t, step float64) []float64 {
	if t <= 1 {
		return nil
	}
	delta := step / t
	n := int(math.Ceil(180/delta - 1e-9))
	rots := make([]float64, n)
	for k := range n {
		rots[k] = float64(k) * delta
	}
	return rots
}

// Views flattens the plan in order. A tilt of 1 contributes one native view.
func (p Plan) Views() []View {
	views := make([]View, 0, p.Len())
	for _, tl := range p {
		if tl.T <= 1 {
			views = append(views, View{Tilt: 1})
			continue
		}
		for _, r := range tl.Rotations {
			views = append(views, View{Tilt: tl.T, Theta: r})
		}
	}
	return views
}

// Len returns the number of views.
func (p Plan) Len() int {
	n := 0
	for _, tl := range p {
		if tl.T <= 1 {
			n++
			continue
		}
		n += len(tl.Rotations)
	}
	return n
}

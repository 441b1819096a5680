// Package estimator fits a global geometric model (homography or
// fundamental matrix) to noisy correspondences while rejecting outliers.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind is the geometric model being fitted.
type Kind int

const (
	// Homography maps image 1 points to image 2 points.
	Homography Kind = iota + 1
	// Fundamental relates points through epipolar lines.
	Fundamental
)

func (k Kind) String() string {
	switch k {
	case Homography:
		return "homography"
	case Fundamental:
		return "fundamental"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// sampleSize is the number of correspondences drawn per hypothesis.
func (k Kind) sampleSize() int {
	if k == Homography {
		return 4
	}
	return 8
}

// Pair is one correspondence in 0-based pixel coordinates.
type Pair struct {
	X1, Y1, X2, Y2 float64
}

// Dims are the dimensions of both images.
type Dims struct {
	W1, H1, W2, H2 int
}

// Model is a fitted 3x3 matrix in row-major order, normalised so that the
// last entry is 1 when it is non-zero, together with its support.
type Model struct {
	Kind     Kind       `json:"kind"`
	Matrix   [9]float64 `json:"matrix"`
	Inliers  []int      `json:"inliers"`
	Score    float64    `json:"score"`
	Accepted bool       `json:"accepted"`
}

// Estimator fits a model to correspondences. A model that is not
// significant is reported with Accepted=false, not as an error.
type Estimator interface {
	Estimate(ctx context.Context, pairs []Pair, dims Dims) (*Model, error)
	Name() string
}

var (
	// ErrEstimatorConfig reports a missing or unreadable estimator configuration.
	ErrEstimatorConfig = errors.New("estimator configuration")
	// ErrUnknownMethod is returned by ParseMethod.
	ErrUnknownMethod = errors.New("unknown filter method")
)

// Method names a filtering strategy.
type Method string

const (
	MethodNone            Method = "none"
	MethodORSAFundamental Method = "orsa-fundamental"
	MethodORSAHomography  Method = "orsa-homography"
	MethodUSACFundamental Method = "usac-fundamental"
	MethodUSACHomography  Method = "usac-homography"
)

// Methods lists the accepted method names.
func Methods() []Method {
	return []Method{MethodNone, MethodORSAFundamental, MethodORSAHomography, MethodUSACFundamental, MethodUSACHomography}
}

// ParseMethod maps a name to a Method. The empty string means none.
func ParseMethod(s string) (Method, error) {
	n := Method(strings.ToLower(strings.TrimSpace(s)))
	if n == "" {
		return MethodNone, nil
	}
	for _, m := range Methods() {
		if m == n {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// Params configures the estimators.
type Params struct {
	// Precision bounds the residual (pixels) of a-contrario inliers; 0 disables the bound.
	Precision float64
	// Threshold is the sampling-consensus inlier residual in pixels.
	Threshold float64
	// MaxNFA is the log10 NFA below which an a-contrario model is accepted.
	MaxNFA float64
	// MaxIterations caps the number of sampled hypotheses.
	MaxIterations int
	// Seed makes sampling reproducible; 0 seeds randomly.
	Seed uint32
	// ConsensusConfig is an optional YAML file with sampling-consensus parameters.
	ConsensusConfig string
}

// DefaultParams returns the defaults used by the command line.
func DefaultParams() Params {
	return Params{
		Precision:     24,
		Threshold:     3,
		MaxNFA:        -2,
		MaxIterations: 10000,
	}
}

// New builds the estimator for method. MethodNone yields a nil Estimator.
func New(method Method, p Params) (Estimator, error) {
	if p.MaxIterations <= 0 {
		return nil, errors.New("max iterations must be positive")
	}
	switch method {
	case MethodNone:
		return nil, nil
	case MethodORSAHomography:
		return NewORSA(Homography, p), nil
	case MethodORSAFundamental:
		return NewORSA(Fundamental, p), nil
	case MethodUSACHomography:
		return NewConsensus(Homography, p)
	case MethodUSACFundamental:
		return NewConsensus(Fundamental, p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

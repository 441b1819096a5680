package estimator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDims = Dims{W1: 320, H1: 240, W2: 320, H2: 240}

func testParams() Params {
	p := DefaultParams()
	p.Seed = 42
	p.MaxIterations = 2000
	return p
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"", MethodNone, false},
		{"none", MethodNone, false},
		{"ORSA-Homography", MethodORSAHomography, false},
		{" usac-fundamental ", MethodUSACFundamental, false},
		{"ransac", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownMethod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	p := testParams()

	e, err := New(MethodNone, p)
	require.NoError(t, err)
	assert.Nil(t, e)

	for _, m := range Methods()[1:] {
		e, err := New(m, p)
		require.NoError(t, err, m)
		require.NotNil(t, e)
		assert.Equal(t, string(m), e.Name())
	}

	_, err = New(Method("bogus"), p)
	require.ErrorIs(t, err, ErrUnknownMethod)

	p.MaxIterations = 0
	_, err = New(MethodORSAHomography, p)
	require.Error(t, err)
}

func TestHomographyFromSample_Exact(t *testing.T) {
	pairs := homographyPairs(testHomography, 4, 0, 3)
	h, ok := homographyFromSample(pairs, []int{0, 1, 2, 3})
	require.True(t, ok)
	for i := range h {
		assert.InDelta(t, testHomography[i], h[i], 1e-6, "entry %d", i)
	}
}

func TestHomographyFromSample_Degenerate(t *testing.T) {
	pairs := []Pair{{0, 0, 0, 0}, {1, 1, 1, 1}, {2, 2, 2, 2}, {3, 3, 3, 3}}
	_, ok := homographyFromSample(pairs, []int{0, 1, 2, 3})
	assert.False(t, ok)
}

func TestFitHomography_LeastSquares(t *testing.T) {
	pairs := homographyPairs(testHomography, 30, 0, 5)
	h, ok := fitHomography(pairs, identity(len(pairs)))
	require.True(t, ok)
	for _, p := range pairs {
		assert.Less(t, transferError(h, p), 1e-6)
	}
}

func TestFitFundamental_Stereo(t *testing.T) {
	pairs := stereoPairs(24, 11)
	f, ok := fitFundamental(pairs, identity(len(pairs)))
	require.True(t, ok)
	for _, p := range pairs {
		assert.Less(t, epipolarError(f, p), 1e-5)
	}

	// a point moved off its epipolar line is detected
	bad := pairs[0]
	bad.X2 += 25
	bad.Y2 -= 25
	assert.Greater(t, epipolarError(f, bad), 1.0)
}

func TestFitFundamental_TooFew(t *testing.T) {
	pairs := stereoPairs(7, 1)
	_, ok := fitFundamental(pairs, identity(len(pairs)))
	assert.False(t, ok)
}

func TestORSA_Homography_SeparatesOutliers(t *testing.T) {
	pairs := homographyPairs(testHomography, 60, 25, 7)
	m, err := NewORSA(Homography, testParams()).Estimate(context.Background(), pairs, testDims)
	require.NoError(t, err)
	require.True(t, m.Accepted)
	assert.Equal(t, identity(60), m.Inliers)
	assert.Less(t, m.Score, -2.0)
	assert.Equal(t, Homography, m.Kind)
}

func TestORSA_Fundamental_Stereo(t *testing.T) {
	pairs := stereoPairs(50, 9)
	m, err := NewORSA(Fundamental, testParams()).Estimate(context.Background(), pairs, testDims)
	require.NoError(t, err)
	require.True(t, m.Accepted)
	assert.GreaterOrEqual(t, len(m.Inliers), 45)
}

func TestORSA_RejectsRandomData(t *testing.T) {
	rng := newRNG(13)
	pairs := make([]Pair, 40)
	for i := range pairs {
		pairs[i] = Pair{
			X1: uniform(rng, 0, 200), Y1: uniform(rng, 0, 200),
			X2: uniform(rng, 0, 200), Y2: uniform(rng, 0, 200),
		}
	}
	dims := Dims{W1: 200, H1: 200, W2: 200, H2: 200}
	m, err := NewORSA(Homography, testParams()).Estimate(context.Background(), pairs, dims)
	require.NoError(t, err)
	assert.False(t, m.Accepted)
}

func TestORSA_TooFewPairs(t *testing.T) {
	pairs := homographyPairs(testHomography, 4, 0, 1)
	m, err := NewORSA(Homography, testParams()).Estimate(context.Background(), pairs, testDims)
	require.NoError(t, err)
	assert.False(t, m.Accepted)
	assert.Empty(t, m.Inliers)
}

func TestORSA_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pairs := homographyPairs(testHomography, 20, 5, 1)
	_, err := NewORSA(Homography, testParams()).Estimate(ctx, pairs, testDims)
	require.ErrorIs(t, err, context.Canceled)
}

func TestORSA_Deterministic(t *testing.T) {
	pairs := homographyPairs(testHomography, 30, 30, 21)
	a, err := NewORSA(Homography, testParams()).Estimate(context.Background(), pairs, testDims)
	require.NoError(t, err)
	b, err := NewORSA(Homography, testParams()).Estimate(context.Background(), pairs, testDims)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLogCombi(t *testing.T) {
	assert.InDelta(t, 0, logCombi(5, 0), 1e-12)
	assert.InDelta(t, 1, logCombi(5, 2), 1e-12) // C(5,2) = 10
	assert.InDelta(t, 2.0, logCombi(100, 99), 1e-12)
}

func TestConsensus_Homography(t *testing.T) {
	pairs := homographyPairs(testHomography, 50, 20, 4)
	c, err := NewConsensus(Homography, testParams())
	require.NoError(t, err)
	m, err := c.Estimate(context.Background(), pairs, testDims)
	require.NoError(t, err)
	require.True(t, m.Accepted)
	assert.Equal(t, identity(50), m.Inliers)
	assert.InDelta(t, 50, m.Score, 0)
}

func TestConsensus_MinInliers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usac.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_inliers: 80\n"), 0o600))

	p := testParams()
	p.ConsensusConfig = path
	c, err := NewConsensus(Homography, p)
	require.NoError(t, err)
	assert.Equal(t, 80, c.Params().MinInliers)
	assert.InDelta(t, p.Threshold, c.Params().Threshold, 0)

	m, err := c.Estimate(context.Background(), homographyPairs(testHomography, 50, 10, 4), testDims)
	require.NoError(t, err)
	assert.False(t, m.Accepted)
}

func TestLoadConsensusParams_Errors(t *testing.T) {
	dir := t.TempDir()
	base := DefaultConsensusParams(DefaultParams())

	_, err := LoadConsensusParams(filepath.Join(dir, "missing.yaml"), base)
	require.ErrorIs(t, err, ErrEstimatorConfig)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("threshold: [1, 2\n"), 0o600))
	_, err = LoadConsensusParams(bad, base)
	require.ErrorIs(t, err, ErrEstimatorConfig)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("confidence: 1.5\n"), 0o600))
	_, err = LoadConsensusParams(invalid, base)
	require.ErrorIs(t, err, ErrEstimatorConfig)

	p := DefaultParams()
	p.ConsensusConfig = filepath.Join(dir, "missing.yaml")
	_, err = New(MethodUSACHomography, p)
	require.ErrorIs(t, err, ErrEstimatorConfig)
}

func TestAdaptiveIterations(t *testing.T) {
	assert.Equal(t, 1, adaptiveIterations(0.99, 1, 4))
	assert.Equal(t, 72, adaptiveIterations(0.99, 0.5, 4))
	assert.Greater(t, adaptiveIterations(0.99, 0.1, 8), 1_000_000)
}

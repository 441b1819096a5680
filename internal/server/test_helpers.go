package server

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"

	"github.com/MeKo-Tech/imas/internal/aggregate"
	"github.com/MeKo-Tech/imas/internal/estimator"
	"github.com/MeKo-Tech/imas/internal/keypoint"
	"github.com/MeKo-Tech/imas/internal/matcher"
	"github.com/MeKo-Tech/imas/internal/pipeline"
)

// mockPipeline returns canned results and records what it was given.
type mockPipeline struct {
	matchResult  *pipeline.MatchResult
	matchErr     error
	detectResult *pipeline.Detection
	detectErr    error

	gotBackground bool
	calls         int
}

func (m *mockPipeline) Match(ctx context.Context, img1, img2, background image.Image) (*pipeline.MatchResult, error) {
	m.calls++
	m.gotBackground = background != nil
	if m.matchErr != nil {
		return nil, m.matchErr
	}
	if m.matchResult != nil {
		return m.matchResult, nil
	}
	return sampleMatchResult(), nil
}

func (m *mockPipeline) Detect(ctx context.Context, name string, img image.Image) (*pipeline.Detection, error) {
	m.calls++
	if m.detectErr != nil {
		return nil, m.detectErr
	}
	if m.detectResult != nil {
		return m.detectResult, nil
	}
	b := img.Bounds()
	kps := []keypoint.Generalized{
		keypoint.NewGeneralized(keypoint.Raw{X: 10, Y: 12, Scale: 1.6, Tilt: 1}),
		keypoint.NewGeneralized(keypoint.Raw{X: 30, Y: 8, Scale: 2, Tilt: 2, Theta: 36}),
	}
	return &pipeline.Detection{
		Width:     b.Dx(),
		Height:    b.Dy(),
		Keypoints: kps,
		Stats:     aggregate.ComputeStats(kps),
		Views:     6,
		Scale:     1,
	}, nil
}

// sampleMatchResult holds two matches and an accepted homography.
func sampleMatchResult() *pipeline.MatchResult {
	matches := []matcher.Correspondence{
		{
			Query: 0, Target: 1,
			A: keypoint.Raw{X: 10, Y: 20, Scale: 1.5, Angle: 0.25, Tilt: 1, Theta: 0},
			B: keypoint.Raw{X: 14, Y: 24, Scale: 1.5, Angle: 0.25, Tilt: 2, Theta: 45},
		},
		{
			Query: 3, Target: 0,
			A: keypoint.Raw{X: 40, Y: 5, Scale: 2, Angle: 1, Tilt: 1},
			B: keypoint.Raw{X: 44, Y: 9, Scale: 2, Angle: 1, Tilt: 1},
		},
	}
	return &pipeline.MatchResult{
		Matches: matches,
		Model: &estimator.Model{
			Kind:     estimator.Homography,
			Matrix:   [9]float64{1, 0, 4, 0, 1, 4, 0, 0, 1},
			Inliers:  []int{0, 1},
			Score:    -7.5,
			Accepted: true,
		},
		Raw:     5,
		Mode:    matcher.Standard,
		Filter:  estimator.MethodORSAHomography,
		StatsA:  aggregate.Stats{Raw: 10, Generalized: 4, MinMembers: 1, MeanMembers: 2.5, MaxMembers: 4},
		StatsB:  aggregate.Stats{Raw: 12, Generalized: 5, MinMembers: 1, MeanMembers: 2.4, MaxMembers: 3},
		Width1:  64,
		Height1: 48,
		Width2:  64,
		Height2: 48,
	}
}

func newTestServer(svc matchService) *Server {
	return newServerWith(svc, &pipeline.Profiler{}, Config{
		CORSOrigin:     "*",
		MaxUploadMB:    5,
		TimeoutSec:     30,
		OverlayEnabled: true,
	})
}

// encodeImageToPNG encodes an image to PNG bytes.
func encodeImageToPNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	err := png.Encode(&buf, img)
	return buf.Bytes(), err
}

// createMultipartRequest builds a POST to path with one file part per
// entry of files and the given extra fields.
func createMultipartRequest(
	path string,
	files map[string][]byte,
	extraFields map[string]string,
) (*http.Request, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for field, data := range files {
		part, err := writer.CreateFormFile(field, field+".png")
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
	}

	for key, value := range extraFields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

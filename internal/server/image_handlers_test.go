package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/imas/internal/estimator"
	"github.com/MeKo-Tech/imas/internal/pipeline"
	"github.com/MeKo-Tech/imas/internal/testutil"
)

func texturePNG(t *testing.T, seed uint32) []byte {
	t.Helper()
	cfg := testutil.DefaultTextureConfig()
	cfg.Width, cfg.Height, cfg.Shapes, cfg.Seed = 200, 150, 60, seed
	data, err := encodeImageToPNG(testutil.GenerateTexture(cfg))
	require.NoError(t, err)
	return data
}

func pairFiles(t *testing.T) map[string][]byte {
	t.Helper()
	return map[string][]byte{"image1": texturePNG(t, 1), "image2": texturePNG(t, 2)}
}

func TestMatchHandler_JSON(t *testing.T) {
	mock := &mockPipeline{}
	server := newTestServer(mock)

	req, err := createMultipartRequest("/match", pairFiles(t), nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	server.matchHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.False(t, mock.gotBackground)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.InDelta(t, 2.0, body["count"], 1e-9)
	assert.InDelta(t, 5.0, body["raw_matches"], 1e-9)
	assert.Equal(t, "standard", body["mode"])
	assert.Equal(t, "orsa-homography", body["filter"])

	matches, ok := body["matches"].([]any)
	require.True(t, ok)
	require.Len(t, matches, 2)
	first, ok := matches[0].([]any)
	require.True(t, ok)
	require.Len(t, first, 14)
	assert.InDelta(t, 10.0, first[0], 1e-9)
	assert.InDelta(t, 1.0, first[4], 1e-9)
	assert.InDelta(t, 45.0, first[13], 1e-9)

	model, ok := body["model"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "homography", model["kind"])
	assert.Equal(t, true, model["accepted"])
	assert.Contains(t, body, "stats_a")
	assert.NotContains(t, body, "stats_background")
}

func TestMatchHandler_Background(t *testing.T) {
	mock := &mockPipeline{}
	server := newTestServer(mock)

	files := pairFiles(t)
	files["background"] = texturePNG(t, 3)
	req, err := createMultipartRequest("/match", files, nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	server.matchHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mock.gotBackground)
}

func TestMatchHandler_Formats(t *testing.T) {
	server := newTestServer(&mockPipeline{})

	t.Run("csv", func(t *testing.T) {
		req, err := createMultipartRequest("/match", pairFiles(t), map[string]string{"format": "csv"})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		server.matchHandler(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		rows, err := csv.NewReader(w.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, pipeline.RecordHeader, rows[0])
	})

	t.Run("text via query", func(t *testing.T) {
		req, err := createMultipartRequest("/match?format=text", pairFiles(t), nil)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		server.matchHandler(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		require.Len(t, lines, 2)
		assert.Len(t, strings.Fields(lines[0]), 14)
	})

	t.Run("overlay", func(t *testing.T) {
		req, err := createMultipartRequest("/match", pairFiles(t), map[string]string{"format": "overlay"})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		server.matchHandler(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, 200+pipeline.OverlayGap+200, img.Bounds().Dx())
	})
}

func TestMatchHandler_OverlayDisabled(t *testing.T) {
	server := newServerWith(&mockPipeline{}, nil, Config{MaxUploadMB: 5})

	req, err := createMultipartRequest("/match", pairFiles(t), map[string]string{"format": "overlay"})
	require.NoError(t, err)
	w := httptest.NewRecorder()
	server.matchHandler(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMatchHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		mock       *mockPipeline
		files      func(t *testing.T) map[string][]byte
		wantStatus int
		wantCalls  int
	}{
		{
			name:       "missing second image",
			mock:       &mockPipeline{},
			files:      func(t *testing.T) map[string][]byte { return map[string][]byte{"image1": texturePNG(t, 1)} },
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "undecodable image",
			mock: &mockPipeline{},
			files: func(t *testing.T) map[string][]byte {
				return map[string][]byte{"image1": texturePNG(t, 1), "image2": []byte("not an image")}
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "pipeline failure",
			mock:       &mockPipeline{matchErr: errors.New("view 3: boom")},
			files:      pairFiles,
			wantStatus: http.StatusInternalServerError,
			wantCalls:  1,
		},
		{
			name:       "estimator configuration",
			mock:       &mockPipeline{matchErr: estimator.ErrEstimatorConfig},
			files:      pairFiles,
			wantStatus: http.StatusInternalServerError,
			wantCalls:  1,
		},
		{
			name:       "timeout",
			mock:       &mockPipeline{matchErr: context.DeadlineExceeded},
			files:      pairFiles,
			wantStatus: http.StatusGatewayTimeout,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(tt.mock)
			req, err := createMultipartRequest("/match", tt.files(t), nil)
			require.NoError(t, err)
			w := httptest.NewRecorder()
			server.matchHandler(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCalls, tt.mock.calls)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestMatchHandler_NotMultipart(t *testing.T) {
	server := newTestServer(&mockPipeline{})
	req := httptest.NewRequest(http.MethodPost, "/match", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	server.matchHandler(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMatchHandler_TooLarge(t *testing.T) {
	server := newServerWith(&mockPipeline{}, nil, Config{MaxUploadMB: 1})
	files := map[string][]byte{"image1": make([]byte, 2*1024*1024), "image2": texturePNG(t, 2)}
	req, err := createMultipartRequest("/match", files, nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	server.matchHandler(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestMatchHandler_NilPipeline(t *testing.T) {
	server := newServerWith(nil, nil, Config{MaxUploadMB: 5})
	req, err := createMultipartRequest("/match", pairFiles(t), nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	server.matchHandler(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDetectHandler(t *testing.T) {
	server := newTestServer(&mockPipeline{})

	t.Run("json", func(t *testing.T) {
		req, err := createMultipartRequest("/detect", map[string][]byte{"image": texturePNG(t, 4)}, nil)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		server.detectHandler(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp DetectResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 200, resp.Width)
		assert.Equal(t, 150, resp.Height)
		assert.Equal(t, 6, resp.Views)
		require.Len(t, resp.Keypoints, 2)
		assert.Equal(t, KeypointSummary{X: 10, Y: 12, Members: 1}, resp.Keypoints[0])
		assert.Equal(t, 2, resp.Stats.Generalized)
	})

	t.Run("text", func(t *testing.T) {
		req, err := createMultipartRequest("/detect", map[string][]byte{"image": texturePNG(t, 4)}, map[string]string{"format": "text"})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		server.detectHandler(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.HasPrefix(w.Body.String(), "# 200x150, 6 views"))
	})

	t.Run("missing image", func(t *testing.T) {
		req, err := createMultipartRequest("/detect", nil, map[string]string{"format": "json"})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		server.detectHandler(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("pipeline failure", func(t *testing.T) {
		s := newTestServer(&mockPipeline{detectErr: context.Canceled})
		req, err := createMultipartRequest("/detect", map[string][]byte{"image": texturePNG(t, 4)}, nil)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		s.detectHandler(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("method", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.detectHandler(w, httptest.NewRequest(http.MethodGet, "/detect", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestNewServer_EndToEnd(t *testing.T) {
	cfg := pipeline.NewBuilder().
		WithMaxTilt(1).
		WithFilter(estimator.MethodNone).
		WithWorkers(2).
		WithSeed(5).
		Config()

	server, err := NewServer(Config{CORSOrigin: "*", MaxUploadMB: 5, TimeoutSec: 60, PipelineConfig: cfg})
	require.NoError(t, err)
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	img := texturePNG(t, 8)
	req, err := createMultipartRequest("/match", map[string][]byte{"image1": img, "image2": img}, nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Positive(t, body["count"])
	assert.Equal(t, "none", body["filter"])

	assert.EqualValues(t, 2, server.profiler.Snapshot()["images"])
}

func TestNewServer_InvalidConfig(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.Filter = "magsac"
	_, err := NewServer(Config{PipelineConfig: cfg})
	assert.Error(t, err)
}

package server

import (
	"context"
	"image"
	"net/http"

	"github.com/MeKo-Tech/imas/internal/aggregate"
	"github.com/MeKo-Tech/imas/internal/estimator"
	"github.com/MeKo-Tech/imas/internal/matcher"
	"github.com/MeKo-Tech/imas/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// matchService defines the methods needed by the server from a pipeline.
type matchService interface {
	Match(ctx context.Context, img1, img2, background image.Image) (*pipeline.MatchResult, error)
	Detect(ctx context.Context, name string, img image.Image) (*pipeline.Detection, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline       matchService
	profiler       *pipeline.Profiler
	corsOrigin     string
	maxUploadMB    int64
	timeoutSec     int
	overlayEnabled bool
	rateLimiter    *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	CORSOrigin     string
	MaxUploadMB    int64
	TimeoutSec     int
	PipelineConfig pipeline.Config
	OverlayEnabled bool
	RateLimit      RateLimitConfig
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string             `json:"status"`
	Version string             `json:"version,omitempty"`
	Time    string             `json:"time"`
	Memory  *pipeline.MemStats `json:"memory,omitempty"`
	Stats   map[string]any     `json:"stats,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// MatchResponse is the JSON reply of POST /match. Matches are 14-field
// records: x, y, scale, angle, 1, t, theta for each image.
type MatchResponse struct {
	Success          bool                         `json:"success"`
	Matches          [][matcher.RecordLen]float64 `json:"matches"`
	Count            int                          `json:"count"`
	RawMatches       int                          `json:"raw_matches"`
	Mode             matcher.Mode                 `json:"mode"`
	Filter           estimator.Method             `json:"filter"`
	Model            *estimator.Model             `json:"model,omitempty"`
	StatsA           aggregate.Stats              `json:"stats_a"`
	StatsB           aggregate.Stats              `json:"stats_b"`
	StatsBackground  *aggregate.Stats             `json:"stats_background,omitempty"`
	ProcessingTimeMs int64                        `json:"processing_time_ms"`
}

// KeypointSummary is one generalized keypoint as reported by POST /detect.
type KeypointSummary struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Members int     `json:"members"`
}

// DetectResponse is the JSON reply of POST /detect.
type DetectResponse struct {
	Success          bool              `json:"success"`
	Width            int               `json:"width"`
	Height           int               `json:"height"`
	Views            int               `json:"views"`
	Stats            aggregate.Stats   `json:"stats"`
	Keypoints        []KeypointSummary `json:"keypoints"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
}

// NewServer builds the pipeline from config and wraps it in a Server.
func NewServer(config Config) (*Server, error) {
	pl, err := pipeline.New(config.PipelineConfig, nil)
	if err != nil {
		return nil, err
	}
	return newServerWith(pl, pl.Profiler, config), nil
}

func newServerWith(svc matchService, prof *pipeline.Profiler, config Config) *Server {
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 50
	}
	s := &Server{
		pipeline:       svc,
		profiler:       prof,
		corsOrigin:     config.CORSOrigin,
		maxUploadMB:    config.MaxUploadMB,
		timeoutSec:     config.TimeoutSec,
		overlayEnabled: config.OverlayEnabled,
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit)
	}
	return s
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/match", s.corsMiddleware(s.rateLimitMiddleware(s.matchHandler)))
	mux.HandleFunc("/detect", s.corsMiddleware(s.rateLimitMiddleware(s.detectHandler)))
	mux.Handle("/metrics", promhttp.Handler())
}

package server

import (
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/imas/internal/matcher"
	"github.com/MeKo-Tech/imas/internal/pipeline"
)

// matchHandler matches the uploaded image1 against image2. An optional
// background upload switches to the a-contrario ratio test.
func (s *Server) matchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.parseUpload(w, r) {
		requestsTotal.WithLabelValues("match", "error").Inc()
		return
	}

	var imgs [3]image.Image
	for i, field := range []string{"image1", "image2", "background"} {
		img, err := formImage(r, field)
		if err != nil {
			requestsTotal.WithLabelValues("match", "error").Inc()
			s.writeErrorResponse(w, fmt.Sprintf("Invalid image: %v", err), http.StatusBadRequest)
			return
		}
		imgs[i] = img
	}
	if imgs[0] == nil || imgs[1] == nil {
		requestsTotal.WithLabelValues("match", "error").Inc()
		s.writeErrorResponse(w, "Both image1 and image2 are required", http.StatusBadRequest)
		return
	}

	format := requestFormat(r)
	if format == formatOverlay && !s.overlayEnabled {
		requestsTotal.WithLabelValues("match", "error").Inc()
		http.Error(w, "overlay output disabled", http.StatusForbidden)
		return
	}

	if s.pipeline == nil {
		s.writeErrorResponse(w, "Matching pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	start := time.Now()
	res, err := s.pipeline.Match(ctx, imgs[0], imgs[1], imgs[2])
	duration := time.Since(start)
	if err != nil {
		requestsTotal.WithLabelValues("match", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Matching failed: %v", err), processingStatus(err))
		return
	}

	requestsTotal.WithLabelValues("match", "success").Inc()
	processingDuration.WithLabelValues("match").Observe(duration.Seconds())
	matchesFound.WithLabelValues("raw").Observe(float64(res.Raw))
	matchesFound.WithLabelValues("filtered").Observe(float64(len(res.Matches)))
	modelsAccepted.WithLabelValues(string(res.Filter), strconv.FormatBool(res.Model != nil)).Inc()

	switch format {
	case pipeline.FormatCSV:
		out, err := pipeline.ToCSV(res)
		writeText(w, "text/csv", out, err)
	case pipeline.FormatText:
		out, err := pipeline.ToText(res)
		writeText(w, "text/plain; charset=utf-8", out, err)
	case formatOverlay:
		s.writeOverlay(w, imgs[0], imgs[1], res.Matches)
	default:
		s.writeJSON(w, MatchResponse{
			Success:          true,
			Matches:          matcher.Records(res.Matches),
			Count:            len(res.Matches),
			RawMatches:       res.Raw,
			Mode:             res.Mode,
			Filter:           res.Filter,
			Model:            res.Model,
			StatsA:           res.StatsA,
			StatsB:           res.StatsB,
			StatsBackground:  res.StatsBackground,
			ProcessingTimeMs: duration.Milliseconds(),
		})
	}
}

// writeOverlay renders the two images side by side with the matches drawn.
func (s *Server) writeOverlay(w http.ResponseWriter, a, b image.Image, matches []matcher.Correspondence) {
	ov := pipeline.RenderMatches(a, b, matches)
	if ov == nil {
		http.Error(w, "overlay failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_ = png.Encode(w, ov)
}

// detectHandler computes the generalized keypoints of one uploaded image.
func (s *Server) detectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.parseUpload(w, r) {
		requestsTotal.WithLabelValues("detect", "error").Inc()
		return
	}

	img, err := formImage(r, "image")
	if err != nil {
		requestsTotal.WithLabelValues("detect", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Invalid image: %v", err), http.StatusBadRequest)
		return
	}
	if img == nil {
		requestsTotal.WithLabelValues("detect", "error").Inc()
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return
	}

	if s.pipeline == nil {
		s.writeErrorResponse(w, "Matching pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	start := time.Now()
	det, err := s.pipeline.Detect(ctx, "upload", img)
	duration := time.Since(start)
	if err != nil {
		requestsTotal.WithLabelValues("detect", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Detection failed: %v", err), processingStatus(err))
		return
	}

	requestsTotal.WithLabelValues("detect", "success").Inc()
	processingDuration.WithLabelValues("detect").Observe(duration.Seconds())
	generalizedKeypoints.Observe(float64(len(det.Keypoints)))

	if requestFormat(r) == pipeline.FormatText {
		out, err := pipeline.DetectionToText(det)
		writeText(w, "text/plain; charset=utf-8", out, err)
		return
	}

	kps := make([]KeypointSummary, len(det.Keypoints))
	for i := range det.Keypoints {
		g := &det.Keypoints[i]
		kps[i] = KeypointSummary{X: g.X, Y: g.Y, Members: g.Len()}
	}
	s.writeJSON(w, DetectResponse{
		Success:          true,
		Width:            det.Width,
		Height:           det.Height,
		Views:            det.Views,
		Stats:            det.Stats,
		Keypoints:        kps,
		ProcessingTimeMs: duration.Milliseconds(),
	})
}

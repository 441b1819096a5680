package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/imas/internal/config"
	"github.com/MeKo-Tech/imas/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the matching API",
	Long: `Start an HTTP server that provides REST API endpoints for image matching.

The server provides the following endpoints:
  POST /match   - Match uploaded image1 and image2 (optional background)
  POST /detect  - Generalized keypoints of an uploaded image
  GET  /health  - Health check with memory and processing statistics
  GET  /metrics - Prometheus metrics

Examples:
  imas serve
  imas serve --port 8080
  imas serve --host 0.0.0.0 --port 3000 --family brief --max-tilt 4`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addPipelineFlags(serveCmd)
	d := config.DefaultConfig().Server
	serveCmd.Flags().StringP("host", "H", d.Host, "server host")
	serveCmd.Flags().IntP("port", "p", d.Port, "server port")
	serveCmd.Flags().String("cors-origin", d.CORSOrigin, "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", d.MaxUploadMB, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", d.TimeoutSec, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", d.ShutdownTimeout, "shutdown timeout in seconds")
	serveCmd.Flags().Bool("overlay-enable", true, "enable overlay image responses")

	rl := d.RateLimit
	serveCmd.Flags().Bool("rate-limit-enabled", rl.Enabled, "enable per-client rate limiting")
	serveCmd.Flags().Int("rate-limit-requests-per-minute", rl.RequestsPerMinute, "requests per minute per client")
	serveCmd.Flags().Int("rate-limit-requests-per-hour", rl.RequestsPerHour, "requests per hour per client")
	serveCmd.Flags().Int("rate-limit-max-requests-per-day", rl.MaxRequestsPerDay, "requests per day per client")
	serveCmd.Flags().Int("rate-limit-max-data-per-day", rl.MaxDataPerDayMB, "upload MB per day per client")
}

// resolveRateLimit applies changed rate limit flags over the configuration.
func resolveRateLimit(cmd *cobra.Command, cfg config.RateLimitConfig) server.RateLimitConfig {
	if cmd.Flags().Changed("rate-limit-enabled") {
		cfg.Enabled, _ = cmd.Flags().GetBool("rate-limit-enabled")
	}
	if cmd.Flags().Changed("rate-limit-requests-per-minute") {
		cfg.RequestsPerMinute, _ = cmd.Flags().GetInt("rate-limit-requests-per-minute")
	}
	if cmd.Flags().Changed("rate-limit-requests-per-hour") {
		cfg.RequestsPerHour, _ = cmd.Flags().GetInt("rate-limit-requests-per-hour")
	}
	if cmd.Flags().Changed("rate-limit-max-requests-per-day") {
		cfg.MaxRequestsPerDay, _ = cmd.Flags().GetInt("rate-limit-max-requests-per-day")
	}
	if cmd.Flags().Changed("rate-limit-max-data-per-day") {
		cfg.MaxDataPerDayMB, _ = cmd.Flags().GetInt("rate-limit-max-data-per-day")
	}
	return server.RateLimitConfig{
		Enabled:           cfg.Enabled,
		RequestsPerMinute: cfg.RequestsPerMinute,
		RequestsPerHour:   cfg.RequestsPerHour,
		MaxRequestsPerDay: cfg.MaxRequestsPerDay,
		MaxDataPerDay:     int64(cfg.MaxDataPerDayMB) * 1024 * 1024,
	}
}

// resolveServerConfig resolves the server settings, letting changed flags win
// over the configuration file.
func resolveServerConfig(cmd *cobra.Command, cfg *config.Config) (server.Config, error) {
	host := cfg.Server.Host
	if cmd.Flags().Changed("host") {
		host, _ = cmd.Flags().GetString("host")
	}

	port := cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}

	corsOrigin := cfg.Server.CORSOrigin
	if cmd.Flags().Changed("cors-origin") {
		corsOrigin, _ = cmd.Flags().GetString("cors-origin")
	}

	maxUploadSize := cfg.Server.MaxUploadMB
	if cmd.Flags().Changed("max-upload-size") {
		maxUploadSize, _ = cmd.Flags().GetInt("max-upload-size")
	}

	timeout := cfg.Server.TimeoutSec
	if cmd.Flags().Changed("timeout") {
		timeout, _ = cmd.Flags().GetInt("timeout")
	}

	overlayEnable, _ := cmd.Flags().GetBool("overlay-enable")

	if port < 1 || port > 65535 {
		return server.Config{}, fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
	}

	pCfg, err := cfg.ToPipelineConfig()
	if err != nil {
		return server.Config{}, err
	}

	return server.Config{
		Host:           host,
		Port:           port,
		CORSOrigin:     corsOrigin,
		MaxUploadMB:    int64(maxUploadSize),
		TimeoutSec:     timeout,
		PipelineConfig: pCfg,
		OverlayEnabled: overlayEnable,
		RateLimit:      resolveRateLimit(cmd, cfg.Server.RateLimit),
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	srvCfg, err := resolveServerConfig(cmd, cfg)
	if err != nil {
		return err
	}
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if cmd.Flags().Changed("shutdown-timeout") {
		shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	matchServer, err := server.NewServer(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	mux := http.NewServeMux()
	matchServer.SetupRoutes(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", srvCfg.Host, srvCfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(srvCfg.TimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(srvCfg.TimeoutSec) * time.Second,
	}

	go func() {
		slog.Info("Starting matching server", "host", srvCfg.Host, "port", srvCfg.Port,
			"family", cfg.Descriptor.Family, "filter", cfg.Filter.Method,
			"rate_limit", srvCfg.RateLimit.Enabled)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled, initiating shutdown")
	}

	slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
		return err
	}
	slog.Info("Graceful shutdown completed")
	return nil
}

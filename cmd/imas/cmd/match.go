package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/imas/internal/common"
	"github.com/MeKo-Tech/imas/internal/config"
	"github.com/MeKo-Tech/imas/internal/imageio"
	"github.com/MeKo-Tech/imas/internal/pipeline"
)

// matchCmd represents the match command.
var matchCmd = &cobra.Command{
	Use:   "match IMAGE1 IMAGE2",
	Short: "Match two images under viewpoint change",
	Long: `Detect generalized keypoints in both images and match them.

Every match is written as one record of 14 fields: position, scale and
orientation of the keypoint in IMAGE1 followed by the tilt and rotation of the
view it came from, then the same seven fields for IMAGE2.

With --background the ratio test compares each candidate against the
nearest keypoint of a third, unrelated image instead of the second nearest
neighbour in IMAGE2.

Examples:
  imas match a.png b.png
  imas match a.png b.png --format json --output matches.json
  imas match a.png b.png --background noise.png --filter orsa-fundamental
  imas match a.png b.png --family brief --max-tilt 4 --overlay overlay.png`,
	Args: cobra.ExactArgs(2),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)
	addPipelineFlags(matchCmd)
	matchCmd.Flags().StringP("background", "b", "", "background image for the a-contrario ratio test")
	matchCmd.Flags().StringP("format", "f", pipeline.FormatText, "output format: text, json, csv")
	matchCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	matchCmd.Flags().String("overlay", "", "write a side-by-side PNG with the matches drawn")
	matchCmd.Flags().Bool("progress", false, "show per-image view progress on stderr")
}

var matchBindings = []flagBinding{
	{"output.format", "format"},
	{"output.file", "output"},
	{"output.overlay", "overlay"},
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd, matchBindings...)
	if err != nil {
		return err
	}
	background, _ := cmd.Flags().GetString("background")

	paths := []string{args[0], args[1]}
	if background != "" {
		paths = append(paths, background)
	}
	imgs, err := loadImages(paths)
	if err != nil {
		return err
	}
	var bg image.Image
	if len(imgs) == 3 {
		bg = imgs[2]
	}

	pl, err := newPipeline(cmd, cfg)
	if err != nil {
		return err
	}

	sw := common.StartStopwatch()
	res, err := pl.Match(commandContext(cmd), imgs[0], imgs[1], bg)
	if err != nil {
		return fmt.Errorf("matching failed: %w", err)
	}

	slog.Info("Matching finished",
		"image1", args[0], "image2", args[1],
		"raw_matches", res.Raw, "matches", len(res.Matches),
		"mode", res.Mode.String(), "filter", string(res.Filter),
		"model", res.Model != nil, "duration", sw.Elapsed().String())

	out, err := pipeline.Format(res, cfg.Output.Format)
	if err != nil {
		return err
	}
	if err := writeOutput(cmd.OutOrStdout(), cfg.Output.File, out); err != nil {
		return err
	}

	if cfg.Output.Overlay != "" {
		if err := saveOverlay(cfg.Output.Overlay, imgs[0], imgs[1], res); err != nil {
			return err
		}
		slog.Info("Overlay written", "path", cfg.Output.Overlay)
	}
	return nil
}

// commandContext returns the command's context, or a background context
// when RunE is invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// loadImages decodes every path in order.
func loadImages(paths []string) ([]image.Image, error) {
	imgs := make([]image.Image, len(paths))
	for i, p := range paths {
		img, meta, err := imageio.LoadImage(p)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", p, err)
		}
		slog.Debug("Loaded image", "path", p, "width", meta.Width, "height", meta.Height, "format", meta.Format)
		imgs[i] = img
	}
	return imgs, nil
}

// newPipeline builds the pipeline for cfg, with a progress bar on stderr
// when --progress is set.
func newPipeline(cmd *cobra.Command, cfg *config.Config) (*pipeline.Pipeline, error) {
	pcfg, err := cfg.ToPipelineConfig()
	if err != nil {
		return nil, err
	}
	var progress func(name string) pipeline.ProgressCallback
	if show, _ := cmd.Flags().GetBool("progress"); show {
		progress = func(name string) pipeline.ProgressCallback {
			return pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), name)
		}
	}
	pl, err := pipeline.New(pcfg, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return pl, nil
}

// writeOutput writes content to path, or to w when path is empty.
func writeOutput(w io.Writer, path, content string) error {
	if path == "" {
		_, err := io.WriteString(w, content)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

func saveOverlay(path string, a, b image.Image, res *pipeline.MatchResult) error {
	ov := pipeline.RenderMatches(a, b, res.Matches)
	if ov == nil {
		return errors.New("failed to render overlay")
	}
	if err := imaging.Save(ov, path); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	return nil
}

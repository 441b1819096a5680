package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/imas/internal/pipeline"
)

// detectCmd represents the detect command.
var detectCmd = &cobra.Command{
	Use:   "detect IMAGE",
	Short: "Compute the generalized keypoints of one image",
	Long: `Run the view plan over one image and aggregate the keypoints of all views
into generalized keypoints.

The text format prints one line per generalized keypoint with its position
and member count; json includes the full member lists with descriptors.

Examples:
  imas detect scene.png
  imas detect scene.png --format json --output scene.json
  imas detect scene.png --family brief --max-tilt 4`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	addPipelineFlags(detectCmd)
	detectCmd.Flags().StringP("format", "f", pipeline.FormatText, "output format: text, json")
	detectCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	detectCmd.Flags().Bool("progress", false, "show view progress on stderr")
}

var detectBindings = []flagBinding{
	{"output.format", "format"},
	{"output.file", "output"},
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd, detectBindings...)
	if err != nil {
		return err
	}
	format := strings.ToLower(cfg.Output.Format)
	if format != pipeline.FormatText && format != pipeline.FormatJSON {
		return fmt.Errorf("unsupported format for detect: %s", cfg.Output.Format)
	}

	imgs, err := loadImages(args)
	if err != nil {
		return err
	}
	pl, err := newPipeline(cmd, cfg)
	if err != nil {
		return err
	}

	det, err := pl.Detect(commandContext(cmd), filepath.Base(args[0]), imgs[0])
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}
	slog.Info("Detection finished",
		"image", args[0], "views", det.Views,
		"raw", det.Stats.Raw, "generalized", det.Stats.Generalized,
		"duration", det.Duration.String())

	var out string
	if format == pipeline.FormatJSON {
		out, err = pipeline.DetectionToJSON(det)
		out += "\n"
	} else {
		out, err = pipeline.DetectionToText(det)
	}
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), cfg.Output.File, out)
}

package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/imas/internal/batch"
	"github.com/MeKo-Tech/imas/internal/config"
	"github.com/MeKo-Tech/imas/internal/pipeline"
)

// batchCmd represents the batch command.
var batchCmd = &cobra.Command{
	Use:   "batch REFERENCE PATH...",
	Short: "Match one reference image against many images",
	Long: `Detect the generalized keypoints of REFERENCE once and match them against
every image named by PATH. Directories are scanned for supported images,
recursively with --recursive. The images are ranked by the number of matches
that survive the robust filter.

Examples:
  imas batch logo.png photos/
  imas batch logo.png photos/ --recursive --exclude "*_thumb.png"
  imas batch logo.png a.jpg b.jpg --format csv --output ranking.csv
  imas batch logo.png photos/ --overlay-dir overlays --parallel 4 --stats`,
	Args: cobra.MinimumNArgs(2),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	addPipelineFlags(batchCmd)

	// Output flags
	batchCmd.Flags().StringP("format", "f", pipeline.FormatText, "output format: text, json, csv")
	batchCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	batchCmd.Flags().String("overlay-dir", "", "directory to save one match overlay per image")
	batchCmd.Flags().StringP("background", "b", "", "background image for the a-contrario ratio test")

	// Parallel processing flags
	batchCmd.Flags().IntP("parallel", "j", 2, "number of image pairs matched at the same time")
	batchCmd.Flags().Bool("fail-fast", false, "stop at the first image that cannot be matched")

	// File discovery flags
	batchCmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
	batchCmd.Flags().StringSlice("include", []string{}, "file patterns to include (default: all supported images)")
	batchCmd.Flags().StringSlice("exclude", []string{}, "file patterns to exclude")

	// Progress and monitoring flags
	batchCmd.Flags().Bool("progress", false, "show progress bar on stderr")
	batchCmd.Flags().Bool("quiet", false, "suppress progress and status output")
	batchCmd.Flags().Bool("stats", false, "print processing statistics")
	batchCmd.Flags().Duration("progress-interval", 100*time.Millisecond, "progress update interval")
}

var batchBindings = []flagBinding{
	{"output.format", "format"},
	{"output.file", "output"},
}

// configToBatchConfig maps the resolved configuration and the batch-only
// flags onto a batch.Config.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) *batch.Config {
	batchConfig := &batch.Config{
		Format:     cfg.Output.Format,
		OutputFile: cfg.Output.File,
	}

	batchConfig.Background, _ = cmd.Flags().GetString("background")
	batchConfig.OverlayDir, _ = cmd.Flags().GetString("overlay-dir")
	batchConfig.Workers, _ = cmd.Flags().GetInt("parallel")
	batchConfig.FailFast, _ = cmd.Flags().GetBool("fail-fast")

	batchConfig.Recursive, _ = cmd.Flags().GetBool("recursive")
	batchConfig.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	batchConfig.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")

	batchConfig.ShowProgress, _ = cmd.Flags().GetBool("progress")
	batchConfig.Quiet, _ = cmd.Flags().GetBool("quiet")
	batchConfig.ProgressInterval, _ = cmd.Flags().GetDuration("progress-interval")

	return batchConfig
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd, batchBindings...)
	if err != nil {
		return err
	}
	batchConfig := configToBatchConfig(cfg, cmd)
	if batchConfig.Workers < 1 {
		return fmt.Errorf("invalid --parallel %d: must be at least 1", batchConfig.Workers)
	}

	pcfg, err := cfg.ToPipelineConfig()
	if err != nil {
		return err
	}
	pl, err := pipeline.New(pcfg, nil)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	result, err := batch.ProcessBatch(commandContext(cmd), pl, args[0], args[1:], batchConfig, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("batch matching failed: %w", err)
	}
	stats := result.Stats()
	slog.Info("Batch finished",
		"reference", args[0], "images", stats.Total, "matched", stats.Matched,
		"failed", stats.Failed, "duration", result.Duration.String())

	if err := result.SaveResults(cmd.OutOrStdout(), batchConfig.Format, batchConfig.OutputFile,
		batchConfig.Quiet); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	if showStats, _ := cmd.Flags().GetBool("stats"); showStats {
		result.PrintStats(cmd.ErrOrStderr(), batchConfig.Quiet)
	}
	return nil
}

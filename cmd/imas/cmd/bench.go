package cmd

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/imas/internal/benchmark"
)

// benchCmd represents the bench command.
var benchCmd = &cobra.Command{
	Use:   "bench IMAGE [IMAGE2]",
	Short: "Time detection and matching over a sweep of maximum tilts",
	Long: `Run detection on IMAGE, and matching against IMAGE2 when given, once per
maximum tilt of the sweep. Each result line reports the average time per
iteration, the keypoints or matches produced and the memory allocated.

Examples:
  imas bench scene.png
  imas bench a.png b.png --sweep 1,2,4,5.7 --iterations 3`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)
	addPipelineFlags(benchCmd)
	benchCmd.Flags().Float64Slice("sweep", []float64{1, 2, 4}, "maximum tilts to benchmark")
	benchCmd.Flags().IntP("iterations", "n", 1, "iterations per benchmark")
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	sweep, _ := cmd.Flags().GetFloat64Slice("sweep")
	if !cmd.Flags().Changed("sweep") {
		sweep = []float64{1, 2, 4}
	}
	iterations, _ := cmd.Flags().GetInt("iterations")
	if iterations < 1 {
		return errors.New("iterations must be at least 1")
	}

	imgs, err := loadImages(args)
	if err != nil {
		return err
	}
	pcfg, err := cfg.ToPipelineConfig()
	if err != nil {
		return err
	}

	suite, err := benchmark.NewPlanSweep(pcfg, sweep, imgs...)
	if err != nil {
		return err
	}
	results := suite.RunAll(commandContext(cmd), iterations)
	for _, r := range results {
		if r.Error != nil {
			slog.Error("Benchmark failed", "name", r.Name, "error", r.Error)
			continue
		}
		slog.Debug("Benchmark finished", "name", r.Name, "average", r.Average().String(), "items", r.Items)
	}
	suite.WriteResults(cmd.OutOrStdout())
	return nil
}

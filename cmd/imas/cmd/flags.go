package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/imas/internal/config"
	"github.com/MeKo-Tech/imas/internal/extractor"
)

// flagBinding ties a command line flag to its configuration key.
type flagBinding struct {
	key  string
	flag string
}

// pipelineBindings are shared by every command that builds a pipeline.
var pipelineBindings = []flagBinding{
	{"descriptor.family", "family"},
	{"descriptor.norm", "norm"},
	{"descriptor.ratio", "ratio"},
	{"aggregation.radius", "radius"},
	{"aggregation.ordered_merge", "ordered-merge"},
	{"plan.max_tilt", "max-tilt"},
	{"plan.tilt_step", "tilt-step"},
	{"plan.rotation_step", "rotation-step"},
	{"extractor.threshold", "threshold"},
	{"extractor.octaves", "octaves"},
	{"extractor.max_keypoints", "max-keypoints"},
	{"matching.min_matches", "min-matches"},
	{"matching.background_limit", "background-limit"},
	{"matching.seed", "seed"},
	{"filter.method", "filter"},
	{"filter.precision", "precision"},
	{"filter.threshold", "inlier-threshold"},
	{"filter.max_nfa", "max-nfa"},
	{"filter.max_iterations", "max-iterations"},
	{"filter.consensus_config", "consensus-config"},
	{"image.max_size", "max-size"},
	{"parallel.max_workers", "workers"},
}

// addPipelineFlags registers the detection, matching and filtering flags.
func addPipelineFlags(cmd *cobra.Command) {
	d := config.DefaultConfig()
	f := cmd.Flags()

	f.String("family", d.Descriptor.Family, fmt.Sprintf("descriptor family %v", extractor.FamilyNames()))
	f.String("norm", "", "descriptor distance l1 or l2 (default: family preset)")
	f.Float64("ratio", 0, "nearest neighbour ratio threshold (default: family preset)")
	f.Float64("radius", d.Aggregation.Radius, "aggregation radius in pixels")
	f.Bool("ordered-merge", d.Aggregation.OrderedMerge, "merge views in plan order")
	f.Float64("max-tilt", d.Plan.MaxTilt, "largest simulated tilt (1 disables simulation)")
	f.Float64("tilt-step", 0, "geometric tilt step (default: family covering radius)")
	f.Float64("rotation-step", d.Plan.RotationStep, "rotation sampling step in degrees at tilt 2")
	f.Float64Slice("tilts", nil, "explicit tilt list, overrides --max-tilt")
	f.Float32("threshold", d.Extractor.Threshold, "detector response threshold (0 for family default)")
	f.Int("octaves", d.Extractor.Octaves, "scale-space octaves (0 for automatic)")
	f.Int("max-keypoints", d.Extractor.MaxKeypoints, "keep at most this many keypoints per view (0 keeps all)")
	f.Int("min-matches", d.Matching.MinMatches, "report no matches below this count")
	f.Int("background-limit", d.Matching.BackgroundLimit, "subsample the background set to this size (0 keeps all)")
	f.Uint32("seed", d.Matching.Seed, "random seed for subsampling and robust fitting (0 for random)")
	f.String("filter", d.Filter.Method,
		"robust filter: none, orsa-homography, orsa-fundamental, usac-homography, usac-fundamental")
	f.Float64("precision", d.Filter.Precision, "ORSA precision bound in pixels (0 for automatic)")
	f.Float64("inlier-threshold", d.Filter.Threshold, "USAC inlier threshold in pixels")
	f.Float64("max-nfa", d.Filter.MaxNFA, "ORSA acceptance bound on log10 NFA")
	f.Int("max-iterations", d.Filter.MaxIterations, "robust fitting iteration budget")
	f.String("consensus-config", d.Filter.ConsensusConfig, "YAML file with USAC parameters")
	f.Int("max-size", d.Image.MaxSize, "downscale images whose longest side exceeds this (0 disables)")
	f.Int("workers", d.Parallel.MaxWorkers, "parallel view and matching workers")
}

// bindFlags binds the flags of cmd to viper. Commands share keys such as
// output.format, so binding happens when the command runs rather than at
// init, where the last registered command would win.
func bindFlags(cmd *cobra.Command, bindings []flagBinding) error {
	for _, b := range bindings {
		flag := cmd.Flags().Lookup(b.flag)
		if flag == nil {
			return fmt.Errorf("unknown flag %q", b.flag)
		}
		if err := viper.BindPFlag(b.key, flag); err != nil {
			return fmt.Errorf("bind %s: %w", b.flag, err)
		}
	}
	return nil
}

// commandConfig binds the pipeline flags plus extra and returns the
// resolved configuration.
func commandConfig(cmd *cobra.Command, extra ...flagBinding) (*config.Config, error) {
	if err := bindFlags(cmd, append(pipelineBindings, extra...)); err != nil {
		return nil, err
	}
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	// Slice flags do not round-trip through viper's string fallback.
	if cmd.Flags().Changed("tilts") {
		cfg.Plan.Tilts, _ = cmd.Flags().GetFloat64Slice("tilts")
	}
	return cfg, nil
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/imas/internal/testutil"
)

// pairFixture describes one generated image pair and the viewpoint change
// that relates its two images.
type pairFixture struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Image1      string  `json:"image1"`
	Image2      string  `json:"image2"`
	Background  string  `json:"background,omitempty"`
	Tilt        float64 `json:"tilt"`
	Rotation    float64 `json:"rotation"`
	MaxTilt     float64 `json:"max_tilt"`
}

var pairs = []struct {
	name     string
	seed     uint32
	tilt     float64
	rotation float64
	maxTilt  float64
}{
	{"identity", 3, 1, 0, 1},
	{"rotated", 5, 1, 30, 1},
	{"tilt2", 7, 2, 0, 4},
	{"tilt4_rotated", 9, 4, 45, 8},
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		outDir  = flag.String("out", "testdata", "output directory relative to the project root")
		width   = flag.Int("width", 320, "image width")
		height  = flag.Int("height", 240, "image height")
		shapes  = flag.Int("shapes", 120, "shapes per scene")
		verbose = flag.Bool("v", false, "Verbose output")
		help    = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate synthetic image pairs for imas testing.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s                   # Generate all pairs into testdata/\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -width 640 -v     # Larger scenes\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	root, err := testutil.GetProjectRoot()
	if err != nil {
		slog.Error("Failed to find project root", "error", err)
		os.Exit(1)
	}
	if err := os.Chdir(root); err != nil {
		slog.Error("Failed to change to project root", "error", err)
		os.Exit(1)
	}

	base := testutil.TextureConfig{Width: *width, Height: *height, Shapes: *shapes, Blur: 0.8}
	if err := generate(*outDir, base, *verbose); err != nil {
		slog.Error("Failed to generate test data", "error", err)
		os.Exit(1)
	}
	slog.Info("Test data generation completed successfully!", "dir", *outDir)
}

// generate writes every pair, a shared background scene and one fixture
// file per pair.
func generate(outDir string, base testutil.TextureConfig, verbose bool) error {
	imagesDir := filepath.Join(outDir, "images", "pairs")
	fixturesDir := filepath.Join(outDir, "fixtures")
	for _, dir := range []string{imagesDir, fixturesDir} {
		if err := testutil.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	bgCfg := base
	bgCfg.Seed = 1000
	bgPath := filepath.Join(imagesDir, "background.png")
	if err := testutil.WriteTexturePNG(bgCfg, bgPath); err != nil {
		return fmt.Errorf("failed to write background: %w", err)
	}

	for _, p := range pairs {
		cfg := base
		cfg.Seed = p.seed
		scene := testutil.GenerateTexture(cfg)

		first := filepath.Join(imagesDir, p.name+"_1.png")
		second := filepath.Join(imagesDir, p.name+"_2.png")
		if err := imaging.Save(scene, first); err != nil {
			return fmt.Errorf("failed to save %s: %w", first, err)
		}
		if err := imaging.Save(testutil.SimulateView(scene, p.tilt, p.rotation), second); err != nil {
			return fmt.Errorf("failed to save %s: %w", second, err)
		}

		fixture := pairFixture{
			Name:        p.name,
			Description: fmt.Sprintf("scene %d seen at tilt %.1f rotated by %.0f degrees", p.seed, p.tilt, p.rotation),
			Image1:      filepath.Join("images", "pairs", p.name+"_1.png"),
			Image2:      filepath.Join("images", "pairs", p.name+"_2.png"),
			Background:  filepath.Join("images", "pairs", "background.png"),
			Tilt:        p.tilt,
			Rotation:    p.rotation,
			MaxTilt:     p.maxTilt,
		}
		if err := saveFixture(fixture, fixturesDir); err != nil {
			return fmt.Errorf("failed to save fixture '%s': %w", p.name, err)
		}
		if verbose {
			slog.Info("Generated pair", "name", p.name, "tilt", p.tilt, "rotation", p.rotation)
		}
	}
	return nil
}

func saveFixture(fixture pairFixture, dir string) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fixture.Name+".json"), data, 0o600)
}

package support

import (
	"fmt"
	"path/filepath"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/imas/internal/testutil"
)

// aSyntheticScene renders a deterministic texture and registers it as {name}.
func (testCtx *TestContext) aSyntheticScene(name string, seed int) error {
	cfg := testutil.DefaultTextureConfig()
	cfg.Width, cfg.Height, cfg.Shapes, cfg.Seed = 240, 180, 90, uint32(seed) //nolint:gosec // small scenario seeds
	path := testCtx.TempPath(name + ".png")
	if err := testutil.WriteTexturePNG(cfg, path); err != nil {
		return fmt.Errorf("failed to write scene %s: %w", name, err)
	}
	testCtx.Images[name] = path
	return nil
}

// aViewOf simulates an oblique view of a registered scene.
func (testCtx *TestContext) aViewOf(name, source string, tilt, angle float64) error {
	src, ok := testCtx.Images[source]
	if !ok {
		return fmt.Errorf("unknown scene %q", source)
	}
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	path := testCtx.TempPath(name + ".png")
	if err := imaging.Save(testutil.SimulateView(img, tilt, angle), path); err != nil {
		return fmt.Errorf("failed to save view %s: %w", name, err)
	}
	testCtx.Images[name] = path
	return nil
}

// aFileThatIsNotAnImage registers a file with a .png extension and text content.
func (testCtx *TestContext) aFileThatIsNotAnImage(name string) error {
	path := filepath.Join(testCtx.TempDir, name+".png")
	if err := testCtx.aConfigFileWith(path, &godog.DocString{Content: "not an image"}); err != nil {
		return err
	}
	testCtx.Images[name] = path
	return nil
}

// theOverlayShouldBeWide checks the width of a written overlay image.
func (testCtx *TestContext) theOverlayShouldBeWide(filename string, width int) error {
	img, err := imaging.Open(testCtx.substituteCommandVariables(filename))
	if err != nil {
		return fmt.Errorf("failed to open overlay: %w", err)
	}
	if got := img.Bounds().Dx(); got != width {
		return fmt.Errorf("overlay width %d, want %d", got, width)
	}
	return nil
}

// RegisterImageSteps registers the synthetic image steps.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a synthetic scene "([^"]*)" with seed (\d+)$`, testCtx.aSyntheticScene)
	sc.Step(`^a view "([^"]*)" of "([^"]*)" at tilt ([0-9.]+) rotated by (-?[0-9.]+) degrees$`, testCtx.aViewOf)
	sc.Step(`^a file "([^"]*)" that is not an image$`, testCtx.aFileThatIsNotAnImage)
	sc.Step(`^the overlay "([^"]*)" should be (\d+) pixels wide$`, testCtx.theOverlayShouldBeWide)
}

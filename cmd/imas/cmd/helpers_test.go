package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/imas/internal/testutil"
)

// resetFlags restores every flag of cmd and its children. Cobra keeps flag
// values between Execute calls on the same command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// isolate points HOME and XDG_CONFIG_HOME at a fresh directory and makes it
// the working directory, so no user configuration leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Chdir(dir)
	return dir
}

// executeCommand runs the root command with args and returns stdout and
// stderr separately.
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeTexture renders a deterministic synthetic scene into dir.
func writeTexture(t *testing.T, dir, name string, seed uint32) string {
	t.Helper()
	cfg := testutil.DefaultTextureConfig()
	cfg.Width, cfg.Height, cfg.Shapes, cfg.Seed = 200, 150, 60, seed
	path := filepath.Join(dir, name)
	require.NoError(t, testutil.WriteTexturePNG(cfg, path))
	return path
}

// fastArgs keeps end-to-end runs to the native view only.
var fastArgs = []string{"--max-tilt", "1", "--filter", "none", "--workers", "2", "--seed", "1"}

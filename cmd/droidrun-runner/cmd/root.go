package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/droidrun-stack/droidrun-runner/internal/cli"
	"github.com/droidrun-stack/droidrun-runner/internal/config"
	runerrors "github.com/droidrun-stack/droidrun-runner/internal/errors"
	"github.com/droidrun-stack/droidrun-runner/internal/logging"
	"github.com/droidrun-stack/droidrun-runner/internal/status"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"

	// Global flags
	verbose    bool
	noColor    bool
	dataDir    string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "droidrun-runner",
	Short: "Run LLM-driven automation tasks on Android devices",
	Long: `droidrun-runner drives the droidrun CLI against a connected Android device.

The first task on a device installs the portal app (droidrun setup) and
records a marker so later tasks skip straight to execution. Task output is
streamed live; Ctrl-C stops the running tool.

State (history, API keys, templates, setup markers) lives in the data
directory, ~/.droidrun-gui by default. An optional config.toml in that
directory overrides the defaults.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCodeCancelled is the exit status of a run stopped by the user, matching
// the shell convention for SIGINT.
const ExitCodeCancelled = 130

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case runerrors.HasCode(err, runerrors.CodeCancelled):
		return ExitCodeCancelled
	default:
		return 1
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "data directory (default: ~/.droidrun-gui)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "extra config file applied after <data-dir>/config.toml")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("droidrun-runner {{.Version}}\n")
}

// loadConfig resolves configuration: defaults, then <data-dir>/config.toml,
// then --config.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if dataDir != "" {
		cfg.Paths.DataDir = dataDir
	}

	cfg, err := config.Merge(cfg, filepath.Join(cfg.DataDir(), "config.toml"))
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, runerrors.ReadFailed(configPath, err)
		}
		if cfg, err = config.Merge(cfg, configPath); err != nil {
			return nil, err
		}
	}

	if verbose {
		cfg.Logging.Level = config.LogLevelDebug
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. The returned close func is never nil.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	logger, closer, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log: %w", err)
	}
	return logger, func() { closeQuietly(closer) }, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		c.Close()
	}
}

// formatOptions disables color when asked to or when out is not a terminal.
func formatOptions(out io.Writer) status.FormatOptions {
	if noColor {
		return status.FormatOptions{NoColor: true}
	}
	f, ok := out.(*os.File)
	return status.FormatOptions{NoColor: !ok || !term.IsTerminal(int(f.Fd()))}
}

// confirmed reports whether a destructive action should go ahead.
// With assumeYes set no prompt is shown.
func confirmed(cmd *cobra.Command, prompt string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	return cli.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt, false)
}

// executableDir is the base for resolving a relative portal APK path.
func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

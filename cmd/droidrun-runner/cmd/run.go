package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/droidrun-stack/droidrun-runner/internal/config"
	"github.com/droidrun-stack/droidrun-runner/internal/credentials"
	runerrors "github.com/droidrun-stack/droidrun-runner/internal/errors"
	"github.com/droidrun-stack/droidrun-runner/internal/history"
	"github.com/droidrun-stack/droidrun-runner/internal/ledger"
	"github.com/droidrun-stack/droidrun-runner/internal/orchestrator"
	"github.com/droidrun-stack/droidrun-runner/internal/status"
	"github.com/droidrun-stack/droidrun-runner/internal/supervisor"
	"github.com/droidrun-stack/droidrun-runner/internal/templates"
	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run [task description]",
	Short: "Run an automation task on a device",
	Long: `Run a natural-language task on a device through the droidrun CLI.

The task is given as arguments or taken from a saved template with
--template (either "category/name" or a name in the common category).
If the device has never been set up, the portal app is installed first.

The provider's API key is read from the key store (see 'droidrun-runner key')
and passed to the tool as <PROVIDER>_API_KEY. Ctrl-C cancels the task.`,
	Example: `  droidrun-runner run --device emulator-5554 "open settings and check the android version"
  droidrun-runner run -D emulator-5554 --provider openai --model gpt-4o --steps 20 "turn on wifi"
  droidrun-runner run -D emulator-5554 --template check-battery`,
	RunE: runRun,
}

var (
	runDevice   string
	runProvider string
	runModel    string
	runSteps    int
	runTemplate string
)

func init() {
	runCmd.Flags().StringVarP(&runDevice, "device", "D", "", "device serial (required)")
	runCmd.Flags().StringVarP(&runProvider, "provider", "p", "", "LLM provider: openai, anthropic or gemini (default from config)")
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "model name (default depends on provider)")
	runCmd.Flags().IntVarP(&runSteps, "steps", "s", 0, "maximum number of agent steps (default from config)")
	runCmd.Flags().StringVarP(&runTemplate, "template", "t", "", "use a saved task template instead of a description")
	runCmd.MarkFlagRequired("device")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	req, err := buildRequest(ctx, cfg, args)
	if err != nil {
		return err
	}

	orch, err := newOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	// Ctrl-C cancels the task; the outcome is still reported.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nCancelling task...")
			orch.Cancel()
		case <-done:
		}
	}()

	out := cmd.OutOrStdout()
	started := time.Now()
	outcome, err := orch.Execute(ctx, req, func(e types.Event) {
		printEvent(out, e)
	})
	if err != nil {
		return err
	}

	return reportOutcome(out, outcome, time.Since(started))
}

// reportOutcome prints a finished or cancelled outcome. Failed and cancelled
// runs also return an error so the process exit status tells them apart.
func reportOutcome(out io.Writer, outcome types.Outcome, elapsed time.Duration) error {
	if outcome.State == types.RunStateFailed {
		return fmt.Errorf("task failed: %s", outcome.Message)
	}
	fmt.Fprintf(out, "\n%s\n", status.FormatOutcome(outcome, elapsed, formatOptions(out)))
	if outcome.State == types.RunStateCancelled {
		return runerrors.Cancelled()
	}
	return nil
}

// buildRequest merges flags, template and config defaults into a request.
func buildRequest(ctx context.Context, cfg *config.Config, args []string) (types.TaskRequest, error) {
	task := strings.TrimSpace(strings.Join(args, " "))
	if runTemplate != "" {
		if task != "" {
			return types.TaskRequest{}, fmt.Errorf("give either a task description or --template, not both")
		}
		t, err := templates.NewStore(cfg.TemplatesFile()).Find(ctx, runTemplate)
		if err != nil {
			return types.TaskRequest{}, err
		}
		task = t.Description
	}
	if task == "" {
		return types.TaskRequest{}, fmt.Errorf("task description required (pass it as arguments or use --template)")
	}

	providerName := runProvider
	if providerName == "" {
		providerName = cfg.Defaults.Provider
	}
	provider, err := types.ParseProvider(providerName)
	if err != nil {
		return types.TaskRequest{}, err
	}

	model := runModel
	if model == "" && strings.EqualFold(providerName, cfg.Defaults.Provider) {
		model = cfg.Defaults.Model
	}
	steps := runSteps
	if steps == 0 {
		steps = cfg.Defaults.Steps
	}

	return types.TaskRequest{
		Task:     task,
		Provider: provider,
		Model:    model,
		Device:   runDevice,
		Steps:    steps,
	}.WithDefaults(), nil
}

// newOrchestrator wires the stores and supervisor described by cfg.
func newOrchestrator(cfg *config.Config, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	markers, err := ledger.NewFileStore(cfg.DataDir())
	if err != nil {
		return nil, fmt.Errorf("opening setup markers: %w", err)
	}

	commands := orchestrator.CommandBuilder{
		CLIPath:   cfg.Tool.CLIPath,
		PortalAPK: cfg.PortalAPKPath(executableDir()),
	}
	return orchestrator.New(cfg,
		commands,
		supervisor.New(cfg.Supervisor.StopGracePeriod, cfg.Supervisor.TaskTimeout, logger),
		ledger.New(markers, logger),
		credentials.NewStore(cfg.CredentialsFile()),
		history.NewStore(cfg.HistoryFile()),
		logger,
	), nil
}

func printEvent(w io.Writer, e types.Event) {
	switch e.Kind {
	case types.EventNotice:
		fmt.Fprintf(w, "[%s] %s\n", e.Phase, e.Text)
	case types.EventOutput:
		io.WriteString(w, e.Text)
	}
}

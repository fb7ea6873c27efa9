// Package orchestrator drives one automation task at a time: it provisions
// the device if needed, runs the external tool and reports a single outcome.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/droidrun-stack/droidrun-runner/internal/config"
	runerrors "github.com/droidrun-stack/droidrun-runner/internal/errors"
	"github.com/droidrun-stack/droidrun-runner/internal/ledger"
	"github.com/droidrun-stack/droidrun-runner/internal/logging"
	"github.com/droidrun-stack/droidrun-runner/internal/supervisor"
	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

// ProcessRunner runs one external command to completion.
type ProcessRunner interface {
	// Run streams output chunks to sink and returns once the process exits.
	// Cancelling ctx requests a stop.
	Run(ctx context.Context, cmd supervisor.Command, sink func(chunk string)) (supervisor.ExitResult, error)
}

// SetupLedger provisions a device at most once.
type SetupLedger interface {
	Ensure(ctx context.Context, device string, setup ledger.SetupAction) (ledger.SetupStatus, error)
}

// CredentialSource looks up provider API keys.
type CredentialSource interface {
	Credential(ctx context.Context, provider string) (string, bool, error)
}

// HistoryRecorder receives a record of every finished run.
type HistoryRecorder interface {
	Append(ctx context.Context, entry types.HistoryEntry) error
}

// Orchestrator runs at most one task at a time.
type Orchestrator struct {
	cfg      *config.Config
	commands CommandBuilder
	runner   ProcessRunner
	ledger   SetupLedger
	creds    CredentialSource
	history  HistoryRecorder
	logger   *slog.Logger

	now func() time.Time

	mu      sync.Mutex
	state   types.RunState
	current *Run
}

// New creates an Orchestrator. creds and history may be nil.
func New(cfg *config.Config, commands CommandBuilder, runner ProcessRunner, setup SetupLedger, creds CredentialSource, history HistoryRecorder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		commands: commands,
		runner:   runner,
		ledger:   setup,
		creds:    creds,
		history:  history,
		logger:   logger,
		now:      time.Now,
		state:    types.RunStateIdle,
	}
}

// State returns the current run state.
func (o *Orchestrator) State() types.RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start validates req and launches it on a worker goroutine. It returns a
// TASK_001 error without side effects if a task is already active. ctx bounds
// the whole run: cancelling it has the same effect as Cancel.
func (o *Orchestrator) Start(ctx context.Context, req types.TaskRequest) (*Run, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, runerrors.TaskInvalid(err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != types.RunStateIdle {
		return nil, runerrors.TaskActive(string(o.state))
	}

	run := newRun(uuid.NewString(), req, o.cfg.Events.Buffer, o.now)
	runCtx, cancel := context.WithCancel(ctx)
	run.cancel = cancel

	o.current = run
	o.transitionLocked(types.RunStateSettingUp)

	go o.execute(runCtx, run)
	return run, nil
}

// Cancel asks the active run to stop and returns immediately.
// It is a no-op when no run is active.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil || !o.state.IsActive() {
		return
	}
	o.logger.Info("cancel requested", "run_id", o.current.ID, "state", o.state)
	o.current.cancel()
}

// Execute starts req, hands every event to onEvent and returns the outcome.
func (o *Orchestrator) Execute(ctx context.Context, req types.TaskRequest, onEvent func(types.Event)) (types.Outcome, error) {
	run, err := o.Start(ctx, req)
	if err != nil {
		return types.Outcome{}, err
	}
	for e := range run.Events() {
		if onEvent != nil {
			onEvent(e)
		}
	}
	return run.Wait(context.WithoutCancel(ctx))
}

func (o *Orchestrator) transition(next types.RunState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitionLocked(next)
}

func (o *Orchestrator) transitionLocked(next types.RunState) {
	if !o.state.CanTransitionTo(next) {
		// Only reachable through a programming error in this package.
		panic(fmt.Sprintf("invalid run state transition %s -> %s", o.state, next))
	}
	o.logger.Debug("run state", "from", o.state, "to", next)
	o.state = next
}

// execute is the worker goroutine for one run.
func (o *Orchestrator) execute(ctx context.Context, run *Run) {
	defer run.cancel()
	logger := logging.ForRun(o.logger, run.ID, run.Request.Device)

	outcome := o.perform(ctx, run, logger)
	o.transition(outcome.State)
	logger.Info("task finished", "state", outcome.State, "success", outcome.Success)

	if o.history != nil {
		entry := types.NewHistoryEntry(run.ID, run.Request, outcome, o.now())
		if err := o.history.Append(context.WithoutCancel(ctx), entry); err != nil {
			logger.Warn("recording history failed", "error", err)
		}
	}

	run.finish(outcome)

	o.mu.Lock()
	o.transitionLocked(types.RunStateIdle)
	o.current = nil
	o.mu.Unlock()
	close(run.done)
}

// perform runs setup and the main command and maps the result to an outcome.
func (o *Orchestrator) perform(ctx context.Context, run *Run, logger *slog.Logger) types.Outcome {
	req := run.Request
	env := o.credentialEnv(ctx, req.Provider, logger)

	status, err := o.ledger.Ensure(ctx, req.Device, func(ctx context.Context) (supervisor.ExitResult, error) {
		cmd := o.commands.Setup(req.Device)
		cmd.Env = env
		run.notice(types.PhaseSetup, "first run on device "+req.Device+", installing portal: "+cmd.String())
		return o.runner.Run(ctx, cmd, run.sink(types.PhaseSetup))
	})
	if ctx.Err() != nil {
		return cancelledOutcome()
	}
	if err != nil {
		logger.Warn("setup failed", "error", err)
		return failedOutcome(err)
	}
	logger.Debug("setup satisfied", "status", status)

	o.transition(types.RunStateRunning)
	if ctx.Err() != nil {
		return cancelledOutcome()
	}

	cmd := o.commands.Task(req)
	cmd.Env = env
	run.notice(types.PhaseMain, "executing: "+cmd.String())
	res, err := o.runner.Run(ctx, cmd, run.sink(types.PhaseMain))

	switch {
	case ctx.Err() != nil:
		return cancelledOutcome()
	case err != nil:
		logger.Warn("task launch failed", "error", err)
		return failedOutcome(err)
	case res.TimedOut:
		out := failedOutcome(runerrors.ExecutionFailed(res.ExitCode, res.Output))
		out.Message = fmt.Sprintf("timed out after %s: %s", o.cfg.Supervisor.TaskTimeout, out.Message)
		return out
	case !res.Success():
		return failedOutcome(runerrors.ExecutionFailed(res.ExitCode, res.Output))
	}

	return types.Outcome{
		Success:   true,
		Message:   "done",
		StepsUsed: req.Steps,
		State:     types.RunStateFinished,
	}
}

// credentialEnv returns the environment overlay carrying the provider's key.
// A missing key is not an error here; the tool reports it itself.
func (o *Orchestrator) credentialEnv(ctx context.Context, provider types.Provider, logger *slog.Logger) map[string]string {
	env := make(map[string]string)
	if o.creds == nil {
		return env
	}
	key, ok, err := o.creds.Credential(ctx, string(provider))
	if err != nil {
		logger.Warn("reading credential failed", "provider", provider, "error", err)
		return env
	}
	if !ok {
		logger.Debug("no credential for provider", "provider", provider)
		return env
	}
	env[provider.CredentialEnv()] = key
	return env
}

func failedOutcome(err error) types.Outcome {
	return types.Outcome{
		Success: false,
		Message: runerrors.Diagnostic(err),
		State:   types.RunStateFailed,
		Code:    runerrors.Code(err),
	}
}

func cancelledOutcome() types.Outcome {
	err := runerrors.Cancelled()
	return types.Outcome{
		Success: false,
		Message: err.Message,
		State:   types.RunStateCancelled,
		Code:    err.Code,
	}
}

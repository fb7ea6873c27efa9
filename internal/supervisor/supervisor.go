// Package supervisor launches one external process at a time, streams its
// combined output and supports cooperative stop requests.
package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	runerrors "github.com/droidrun-stack/droidrun-runner/internal/errors"
)

// Command is the argument vector and environment overlay for one child process.
type Command struct {
	Path string
	Args []string
	// Env is laid over the ambient environment for the child only.
	Env map[string]string
	Dir string
}

// String renders the command line for display. Environment values are not included.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quoteArg(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"'\\$") {
		return strconv.Quote(s)
	}
	return s
}

// ExitResult describes how a child process ended.
type ExitResult struct {
	// ExitCode is the process exit code, -1 if it was killed by a signal
	// or never started.
	ExitCode int
	// TimedOut is set when the supervisor's timeout stopped the process.
	TimedOut bool
	// Stopped is set when a stop was requested before the process exited.
	Stopped bool
	// Output is the combined stdout and stderr text.
	Output string
}

// Success returns true if the process exited with code 0.
func (r ExitResult) Success() bool {
	return r.ExitCode == 0
}

// Supervisor starts child processes.
type Supervisor struct {
	// GracePeriod is how long a child may take to exit after SIGTERM
	// before it is killed. Zero kills immediately.
	GracePeriod time.Duration

	// Timeout stops a child that runs longer than this. Zero disables it.
	Timeout time.Duration

	logger *slog.Logger
}

// New creates a Supervisor.
func New(grace, timeout time.Duration, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		GracePeriod: grace,
		Timeout:     timeout,
		logger:      logger,
	}
}

// Start spawns the command. A spawn failure (e.g. executable not found) is
// returned as a LAUNCH_001 error. The caller must drain Output until it is
// closed, otherwise the child blocks on writes.
func (s *Supervisor) Start(c Command) (*Process, error) {
	if c.Path == "" {
		return nil, runerrors.LaunchFailed("<empty>", fmt.Errorf("command path is empty"))
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(os.Environ(), c.Env)
	configureProcessGroup(cmd)

	p := &Process{
		cmd:   cmd,
		grace: s.GracePeriod,
		out:   make(chan string, 64),
		done:  make(chan struct{}),
	}
	w := &chunkWriter{p: p}
	cmd.Stdout = w
	cmd.Stderr = w

	// Bound how long Wait blocks on pipes held open by orphaned grandchildren.
	cmd.WaitDelay = max(s.GracePeriod, time.Second)

	if err := cmd.Start(); err != nil {
		return nil, runerrors.LaunchFailed(c.Path, err)
	}
	s.logger.Debug("process started", "path", c.Path, "pid", cmd.Process.Pid)

	if s.Timeout > 0 {
		p.timeoutTimer = time.AfterFunc(s.Timeout, func() {
			p.timedOut.Store(true)
			s.logger.Warn("process timed out", "pid", cmd.Process.Pid, "timeout", s.Timeout)
			p.RequestStop()
		})
	}

	go p.waitLoop(s.logger)
	return p, nil
}

// Run starts the command, forwards every output chunk to sink in arrival
// order and waits for the process to exit. Cancelling ctx requests a stop.
// If ctx is already done the command is not started.
func (s *Supervisor) Run(ctx context.Context, c Command, sink func(chunk string)) (ExitResult, error) {
	if err := ctx.Err(); err != nil {
		return ExitResult{ExitCode: -1, Stopped: true}, err
	}

	p, err := s.Start(c)
	if err != nil {
		return ExitResult{ExitCode: -1}, err
	}

	stop := context.AfterFunc(ctx, p.RequestStop)
	defer stop()

	for chunk := range p.Output() {
		if sink != nil {
			sink(chunk)
		}
	}
	return p.Wait()
}

// Process is a running child started by a Supervisor.
// It is safe for concurrent use.
type Process struct {
	cmd   *exec.Cmd
	grace time.Duration

	out  chan string
	done chan struct{}

	mu           sync.Mutex
	buf          bytes.Buffer
	killTimer    *time.Timer
	timeoutTimer *time.Timer
	result       ExitResult
	err          error

	stopOnce sync.Once
	stopped  atomic.Bool
	timedOut atomic.Bool
}

// PID returns the process ID.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Output returns the ordered stream of combined output chunks.
// The channel is closed once the process has exited and all output was read.
func (p *Process) Output() <-chan string {
	return p.out
}

// Done returns a channel that is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits.
func (p *Process) Wait() (ExitResult, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.err
}

// RequestStop asks the process to terminate with SIGTERM and kills it if it
// is still alive after the grace period. It returns immediately, may be
// called from any goroutine, and only the first call has an effect.
func (p *Process) RequestStop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		select {
		case <-p.done:
			return
		default:
		}

		terminateProcess(p.cmd)

		p.mu.Lock()
		defer p.mu.Unlock()
		p.killTimer = time.AfterFunc(p.grace, func() {
			select {
			case <-p.done:
			default:
				killProcess(p.cmd)
			}
		})
	})
}

func (p *Process) waitLoop(logger *slog.Logger) {
	err := p.cmd.Wait()

	exitCode := 0
	var waitErr error
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		case errors.Is(err, exec.ErrWaitDelay) && p.cmd.ProcessState != nil:
			// The child exited but something still held its output open.
			exitCode = p.cmd.ProcessState.ExitCode()
		default:
			exitCode = -1
			waitErr = fmt.Errorf("waiting for process: %w", err)
		}
	}

	p.mu.Lock()
	if p.killTimer != nil {
		p.killTimer.Stop()
	}
	if p.timeoutTimer != nil {
		p.timeoutTimer.Stop()
	}
	p.result = ExitResult{
		ExitCode: exitCode,
		TimedOut: p.timedOut.Load(),
		Stopped:  p.stopped.Load(),
		Output:   p.buf.String(),
	}
	p.err = waitErr
	p.mu.Unlock()

	logger.Debug("process exited", "pid", p.cmd.Process.Pid, "exit_code", exitCode)

	// Wait has returned, so no writer can still be running.
	close(p.out)
	close(p.done)
}

// chunkWriter receives both stdout and stderr. Interleaving between the two
// is whatever order the copy goroutines deliver in.
type chunkWriter struct {
	p *Process
}

func (w *chunkWriter) Write(b []byte) (int, error) {
	chunk := string(b)
	w.p.mu.Lock()
	w.p.buf.WriteString(chunk)
	w.p.mu.Unlock()
	w.p.out <- chunk
	return len(b), nil
}

// mergeEnv lays overrides over base, replacing existing keys.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		env = append(env, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

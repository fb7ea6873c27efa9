package supervisor

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	runerrors "github.com/droidrun-stack/droidrun-runner/internal/errors"
	"github.com/droidrun-stack/droidrun-runner/internal/logging"
)

func newTestSupervisor(grace, timeout time.Duration) *Supervisor {
	return New(grace, timeout, logging.NewForTest())
}

func shell(script string) Command {
	return Command{Path: "/bin/sh", Args: []string{"-c", script}}
}

func TestRun_StreamsCombinedOutput(t *testing.T) {
	s := newTestSupervisor(time.Second, 0)

	var chunks []string
	res, err := s.Run(context.Background(), shell("echo out-line; echo err-line >&2"), func(c string) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success() {
		t.Errorf("expected exit code 0, got %d", res.ExitCode)
	}

	joined := strings.Join(chunks, "")
	if !strings.Contains(joined, "out-line") || !strings.Contains(joined, "err-line") {
		t.Errorf("streamed output missing lines: %q", joined)
	}
	if res.Output != joined {
		t.Errorf("captured output %q differs from streamed %q", res.Output, joined)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	s := newTestSupervisor(time.Second, 0)

	res, err := s.Run(context.Background(), shell("echo device offline >&2; exit 3"), nil)
	if err != nil {
		t.Fatalf("non-zero exit should not be an error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if strings.TrimSpace(res.Output) != "device offline" {
		t.Errorf("Output = %q, want device offline", res.Output)
	}
	if res.Stopped || res.TimedOut {
		t.Errorf("unexpected flags: %+v", res)
	}
}

func TestStart_LaunchError(t *testing.T) {
	s := newTestSupervisor(time.Second, 0)

	_, err := s.Start(Command{Path: "/nonexistent/droidrun"})
	if err == nil {
		t.Fatal("expected launch error")
	}
	if !runerrors.HasCode(err, runerrors.CodeLaunchFailed) {
		t.Errorf("error code = %q, want %s", runerrors.Code(err), runerrors.CodeLaunchFailed)
	}

	_, err = s.Run(context.Background(), Command{}, nil)
	if !runerrors.HasCode(err, runerrors.CodeLaunchFailed) {
		t.Errorf("empty path: error = %v, want launch error", err)
	}
}

func TestRun_EnvOverlayScopedToChild(t *testing.T) {
	const key = "DROIDRUN_RUNNER_TEST_API_KEY"
	s := newTestSupervisor(time.Second, 0)

	cmd := shell("echo \"$" + key + "\"")
	cmd.Env = map[string]string{key: "secret-value"}

	res, err := s.Run(context.Background(), cmd, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(res.Output) != "secret-value" {
		t.Errorf("child saw %q, want secret-value", res.Output)
	}
	if _, ok := os.LookupEnv(key); ok {
		t.Errorf("%s leaked into parent environment", key)
	}
}

func TestMergeEnv(t *testing.T) {
	base := []string{"PATH=/bin", "OPENAI_API_KEY=old", "HOME=/root"}
	got := mergeEnv(base, map[string]string{"OPENAI_API_KEY": "new", "ANDROID": "1"})

	want := []string{"PATH=/bin", "HOME=/root", "ANDROID=1", "OPENAI_API_KEY=new"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("mergeEnv = %v, want %v", got, want)
	}

	if same := mergeEnv(base, nil); len(same) != len(base) {
		t.Errorf("mergeEnv with no overrides changed base: %v", same)
	}
}

func TestStart_OutputIsIncremental(t *testing.T) {
	s := newTestSupervisor(time.Second, 0)

	p, err := s.Start(shell("echo first; sleep 1; echo second"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	first := <-p.Output()
	if !strings.Contains(first, "first") {
		t.Fatalf("first chunk = %q, want first", first)
	}
	select {
	case <-p.Done():
		t.Error("first chunk should arrive before the process exits")
	default:
	}

	for range p.Output() {
	}
	res, err := p.Wait()
	if err != nil || res.ExitCode != 0 {
		t.Errorf("Wait = %+v, %v", res, err)
	}
}

func TestRequestStop_TerminatesAndIsIdempotent(t *testing.T) {
	s := newTestSupervisor(2*time.Second, 0)

	p, err := s.Start(shell("echo ready; sleep 30"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-p.Output() // ready

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.RequestStop()
		}()
	}
	wg.Wait()

	go func() {
		for range p.Output() {
		}
	}()

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after stop request")
	}

	res, _ := p.Wait()
	if !res.Stopped {
		t.Error("Stopped should be set")
	}
	if res.Success() {
		t.Error("stopped process should not report success")
	}

	// After exit a further stop request is harmless.
	p.RequestStop()
}

func TestRequestStop_EscalatesAfterGracePeriod(t *testing.T) {
	s := newTestSupervisor(200*time.Millisecond, 0)

	// SIGTERM is ignored by the shell and inherited by sleep.
	p, err := s.Start(shell("trap '' TERM; echo ready; sleep 30"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-p.Output()

	start := time.Now()
	p.RequestStop()
	go func() {
		for range p.Output() {
		}
	}()

	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process survived escalation to SIGKILL")
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("killed after %v, before the grace period", elapsed)
	}
	res, _ := p.Wait()
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1 for a killed process", res.ExitCode)
	}
}

func TestRun_Timeout(t *testing.T) {
	s := newTestSupervisor(time.Second, 200*time.Millisecond)

	res, err := s.Run(context.Background(), shell("sleep 30"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TimedOut {
		t.Error("TimedOut should be set")
	}
	if res.Success() {
		t.Error("timed out process should not report success")
	}
}

func TestRun_ContextCancelStopsProcess(t *testing.T) {
	s := newTestSupervisor(time.Second, 0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan ExitResult, 1)
	go func() {
		res, _ := s.Run(ctx, shell("echo started; sleep 30"), func(string) { cancel() })
		done <- res
	}()

	select {
	case res := <-done:
		if !res.Stopped {
			t.Errorf("Stopped should be set: %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	s := newTestSupervisor(time.Second, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.Run(ctx, shell("echo should-not-run"), nil)
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if res.Output != "" {
		t.Errorf("command should not have run, output %q", res.Output)
	}
}

func TestCommand_String(t *testing.T) {
	c := Command{Path: "droidrun", Args: []string{"open settings", "--device", "emulator-5554", "--steps", "10"}}
	want := `droidrun "open settings" --device emulator-5554 --steps 10`
	if got := c.String(); got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
}

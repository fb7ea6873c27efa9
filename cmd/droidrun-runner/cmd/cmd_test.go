package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/droidrun-stack/droidrun-runner/internal/config"
	runerrors "github.com/droidrun-stack/droidrun-runner/internal/errors"
	"github.com/droidrun-stack/droidrun-runner/internal/history"
	"github.com/droidrun-stack/droidrun-runner/internal/testutil"
	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

const testDevice = "emulator-5554"

// useDataDir points the global flags at a fresh data dir and resets
// command flags when the test ends.
func useDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dataDir, configPath, verbose, noColor = dir, "", false, true
	historyYes, historyStats, keyDeleteYes = false, false, false
	runDevice, runProvider, runModel, runSteps, runTemplate = "", "", "", 0, ""
	historyLimit = 20
	t.Cleanup(func() {
		dataDir, configPath, verbose = "", "", false
		runDevice, runProvider, runModel, runSteps, runTemplate = "", "", "", 0, ""
	})
	return dir
}

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// toolConfig points the runner at a fake droidrun tool.
func toolConfig(tool *testutil.FakeTool) string {
	return fmt.Sprintf(`
[tool]
cli_path = %q
portal_apk = "/opt/portal.apk"

[supervisor]
stop_grace_period = "1s"

[logging]
level = "error"
`, tool.Path)
}

func call(t *testing.T, c *cobra.Command, fn func(*cobra.Command, []string) error, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetErr(&buf)
	defer func() {
		c.SetOut(nil)
		c.SetErr(nil)
	}()
	err := fn(c, args)
	return buf.String(), err
}

func TestRootCmdFlags(t *testing.T) {
	for _, name := range []string{"verbose", "data-dir", "config"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("--%s flag not found", name)
		}
	}
	for _, name := range []string{"device", "provider", "model", "steps", "template"} {
		if runCmd.Flags().Lookup(name) == nil {
			t.Errorf("run --%s flag not found", name)
		}
	}
}

func TestRootCmdSubcommands(t *testing.T) {
	want := []string{"run", "history", "key", "template", "setup", "providers"}
	for _, name := range want {
		found := false
		for _, sub := range rootCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected %q to be a subcommand", name)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	dir := useDataDir(t)
	writeConfig(t, dir, "[defaults]\nprovider = \"OpenAI\"\nsteps = 7\n")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.DataDir() != dir {
		t.Errorf("DataDir() = %q, want %q", cfg.DataDir(), dir)
	}
	if cfg.Defaults.Steps != 7 {
		t.Errorf("Defaults.Steps = %d, want 7", cfg.Defaults.Steps)
	}

	extra := filepath.Join(t.TempDir(), "extra.toml")
	if err := os.WriteFile(extra, []byte("[defaults]\nsteps = 9\n"), 0644); err != nil {
		t.Fatal(err)
	}
	configPath = extra
	verbose = true
	cfg, err = loadConfig()
	if err != nil {
		t.Fatalf("loadConfig with --config: %v", err)
	}
	if cfg.Defaults.Steps != 9 {
		t.Errorf("--config not applied: steps = %d", cfg.Defaults.Steps)
	}
	if cfg.Logging.Level != config.LogLevelDebug {
		t.Errorf("--verbose not applied: level = %s", cfg.Logging.Level)
	}

	configPath = filepath.Join(t.TempDir(), "missing.toml")
	if _, err := loadConfig(); !runerrors.HasCode(err, runerrors.CodeIOFileNotFound) {
		t.Errorf("loadConfig() error = %v, want %s for missing --config file", err, runerrors.CodeIOFileNotFound)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := useDataDir(t)
	writeConfig(t, dir, "[defaults]\nprovider = \"mistral\"\n")

	if _, err := loadConfig(); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("loadConfig() error = %v, want invalid config", err)
	}
	if _, err := loadConfig(); !runerrors.HasCode(err, runerrors.CodeConfigInvalidValue) {
		t.Errorf("loadConfig() error = %v, want %s", err, runerrors.CodeConfigInvalidValue)
	}
}

func TestBuildRequest(t *testing.T) {
	useDataDir(t)
	cfg := config.Default()
	cfg.Paths.DataDir = dataDir
	ctx := context.Background()

	runDevice = testDevice
	req, err := buildRequest(ctx, cfg, []string{"open", "settings"})
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	want := types.TaskRequest{
		Task:     "open settings",
		Provider: types.ProviderGemini,
		Model:    types.ProviderGemini.DefaultModel(),
		Device:   testDevice,
		Steps:    types.DefaultSteps,
	}
	if req != want {
		t.Errorf("buildRequest() = %+v, want %+v", req, want)
	}

	// The configured model only applies to the configured provider.
	cfg.Defaults.Model = "gemini-pro"
	runProvider = "anthropic"
	req, err = buildRequest(ctx, cfg, []string{"x"})
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.Model != types.ProviderAnthropic.DefaultModel() {
		t.Errorf("Model = %q, want anthropic default", req.Model)
	}

	runProvider = "nope"
	if _, err := buildRequest(ctx, cfg, []string{"x"}); err == nil {
		t.Error("expected error for unknown provider")
	}

	runProvider = ""
	if _, err := buildRequest(ctx, cfg, nil); err == nil {
		t.Error("expected error for empty task")
	}

	runTemplate = "check-battery"
	if _, err := buildRequest(ctx, cfg, []string{"x"}); err == nil {
		t.Error("expected error for task plus template")
	}
	req, err = buildRequest(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("buildRequest with template: %v", err)
	}
	if !strings.Contains(req.Task, "battery") {
		t.Errorf("template task = %q", req.Task)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	dir := useDataDir(t)
	tool := testutil.NewFakeTool(t)
	writeConfig(t, dir, toolConfig(tool))

	if _, err := call(t, keySetCmd, runKeySet, "OpenAI", "sk-secret-1234"); err != nil {
		t.Fatalf("key set: %v", err)
	}

	runDevice, runProvider, runSteps = testDevice, "openai", 10
	out, err := call(t, runCmd, runRun, "open", "settings")
	if err != nil {
		t.Fatalf("runRun: %v\n%s", err, out)
	}
	for _, want := range []string{"[setup]", "portal installed", "[main]", "step 1", "Task finished: done (10 steps in "} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "sk-secret-1234") {
		t.Error("credential leaked into output")
	}

	calls := tool.Invocations(t)
	if len(calls) != 2 {
		t.Fatalf("invocations = %v", calls)
	}
	if !strings.Contains(calls[1], "OPENAI_API_KEY=sk-secret-1234") {
		t.Errorf("key not passed to tool: %q", calls[1])
	}
	if !strings.HasPrefix(calls[0], "setup --path=/opt/portal.apk --device "+testDevice) {
		t.Errorf("setup invocation = %q", calls[0])
	}

	out, err = call(t, setupStatusCmd, runSetupStatus, testDevice)
	if err != nil {
		t.Fatalf("setup status: %v", err)
	}
	if !strings.Contains(out, testDevice+": set up") {
		t.Errorf("setup status output = %q", out)
	}

	out, err = call(t, historyCmd, runHistory)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, testDevice) || !strings.Contains(out, "open settings") || !strings.Contains(out, "✓ finished") {
		t.Errorf("history output = %q", out)
	}

	historyStats = true
	out, err = call(t, historyCmd, runHistory)
	historyStats = false
	if err != nil {
		t.Fatalf("history --stats: %v", err)
	}
	if !strings.Contains(out, "Runs:      1") || !strings.Contains(out, testDevice+": 1/1 ok") {
		t.Errorf("history stats output = %q", out)
	}

	// Second run skips setup.
	if _, err := call(t, runCmd, runRun, "again"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := tool.SetupInvocations(t); len(got) != 1 {
		t.Errorf("setup invocations = %d, want 1", len(got))
	}
}

func TestRun_FailureReturnsError(t *testing.T) {
	dir := useDataDir(t)
	tool := testutil.NewFakeTool(t)
	tool.MainOutput = "model not found"
	tool.MainExit = 2
	tool.Write(t)
	writeConfig(t, dir, toolConfig(tool))

	runDevice = testDevice
	_, err := call(t, runCmd, runRun, "open settings")
	if err == nil {
		t.Fatal("expected error for failing task")
	}
	if !strings.Contains(err.Error(), "task failed: model not found") {
		t.Errorf("error = %v", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	entries, err := history.NewStore(cfg.HistoryFile()).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Success {
		t.Errorf("history = %+v, want one failed entry", entries)
	}
}

func TestRun_MissingDevice(t *testing.T) {
	dir := useDataDir(t)
	writeConfig(t, dir, "[logging]\nlevel = \"error\"\n")

	if _, err := call(t, runCmd, runRun, "open settings"); err == nil {
		t.Error("expected error without --device")
	}
}

func TestKeyCommands(t *testing.T) {
	useDataDir(t)

	if _, err := call(t, keySetCmd, runKeySet, "mistral", "k"); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := call(t, keySetCmd, runKeySet, "anthropic", "sk-ant-abcdef"); err != nil {
		t.Fatalf("key set: %v", err)
	}

	out, err := call(t, keyListCmd, runKeyList)
	if err != nil {
		t.Fatalf("key list: %v", err)
	}
	if strings.Contains(out, "sk-ant-abcdef") {
		t.Error("key list printed an unmasked key")
	}
	if !strings.Contains(out, "cdef") || !strings.Contains(out, "ANTHROPIC_API_KEY") {
		t.Errorf("key list output = %q", out)
	}
	if !strings.Contains(out, "(not set)") {
		t.Errorf("unset providers not shown: %q", out)
	}

	keyDeleteCmd.SetIn(strings.NewReader("n\n"))
	out, err = call(t, keyDeleteCmd, runKeyDelete, "Anthropic")
	keyDeleteCmd.SetIn(nil)
	if err != nil {
		t.Fatalf("key delete (declined): %v", err)
	}
	if !strings.Contains(out, "Delete the anthropic key?") {
		t.Errorf("no confirmation prompt: %q", out)
	}
	out, _ = call(t, keyListCmd, runKeyList)
	if !strings.Contains(out, "cdef") {
		t.Errorf("declined delete removed the key: %q", out)
	}

	keyDeleteYes = true
	if _, err := call(t, keyDeleteCmd, runKeyDelete, "Anthropic"); err != nil {
		t.Fatalf("key delete: %v", err)
	}
	out, _ = call(t, keyListCmd, runKeyList)
	if strings.Contains(out, "cdef") {
		t.Errorf("key still listed after delete: %q", out)
	}
}

func TestTemplateCommands(t *testing.T) {
	useDataDir(t)

	out, err := call(t, templateListCmd, runTemplateList)
	if err != nil {
		t.Fatalf("template list: %v", err)
	}
	if !strings.Contains(out, "check-battery") {
		t.Errorf("default templates missing: %q", out)
	}

	if _, err := call(t, templateAddCmd, runTemplateAdd, "social", "open-feed", "open", "the", "feed"); err != nil {
		t.Fatalf("template add: %v", err)
	}
	out, _ = call(t, templateListCmd, runTemplateList)
	if !strings.Contains(out, "open the feed") {
		t.Errorf("added template missing: %q", out)
	}

	if _, err := call(t, templateRemoveCmd, runTemplateRemove, "social", "open-feed"); err != nil {
		t.Fatalf("template remove: %v", err)
	}
	if _, err := call(t, templateRemoveCmd, runTemplateRemove, "social", "open-feed"); err == nil {
		t.Error("expected error removing a missing template")
	}
}

func TestHistoryEmptyAndClear(t *testing.T) {
	useDataDir(t)

	out, err := call(t, historyCmd, runHistory)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No task history") {
		t.Errorf("history output = %q", out)
	}

	historyYes = true
	out, err = call(t, historyClearCmd, runHistoryClear)
	if err != nil {
		t.Fatalf("history clear: %v", err)
	}
	if !strings.Contains(out, "History cleared") {
		t.Errorf("history clear output = %q", out)
	}
}

func TestSetupStatus_NotSetUp(t *testing.T) {
	useDataDir(t)

	out, err := call(t, setupStatusCmd, runSetupStatus, "serial-9")
	if err != nil {
		t.Fatalf("setup status: %v", err)
	}
	if !strings.Contains(out, "not set up") {
		t.Errorf("setup status output = %q", out)
	}
}

func TestProviders(t *testing.T) {
	out, err := call(t, providersCmd, runProviders)
	if err != nil {
		t.Fatalf("providers: %v", err)
	}
	for _, p := range types.Providers() {
		if !strings.Contains(out, p.DefaultModel()) {
			t.Errorf("providers output missing %s default model: %q", p, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("line one\nline two", 80); got != "line one line two" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("truncate() = %q", got)
	}
	// Wide characters take two cells each.
	if got := truncate("打开设置应用", 7); got != "打开..." {
		t.Errorf("truncate(wide) = %q", got)
	}
}

func TestFormatOptions(t *testing.T) {
	noColor = false
	defer func() { noColor = false }()

	var buf bytes.Buffer
	if !formatOptions(&buf).NoColor {
		t.Error("color enabled for a non-terminal writer")
	}
	noColor = true
	if !formatOptions(os.Stdout).NoColor {
		t.Error("--no-color ignored")
	}
}

func TestReportOutcome(t *testing.T) {
	useDataDir(t)

	tests := []struct {
		name     string
		outcome  types.Outcome
		wantOut  string
		wantExit int
	}{
		{"finished", types.Outcome{Success: true, Message: "done", StepsUsed: 10, State: types.RunStateFinished}, "Task finished: done", 0},
		{"cancelled", types.Outcome{Message: "cancelled", State: types.RunStateCancelled, Code: runerrors.CodeCancelled}, "cancelled", ExitCodeCancelled},
		{"failed", types.Outcome{Message: "device offline", State: types.RunStateFailed, Code: runerrors.CodeExecutionFailed}, "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := reportOutcome(&buf, tt.outcome, 3*time.Second)
			if got := ExitCode(err); got != tt.wantExit {
				t.Errorf("ExitCode(%v) = %d, want %d", err, got, tt.wantExit)
			}
			if tt.wantOut != "" && !strings.Contains(buf.String(), tt.wantOut) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tt.wantOut)
			}
		})
	}
}

package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// FakeTool is a shell script standing in for the droidrun CLI.
//
// Every invocation appends one line to the invocation log:
//
//	<args> | OPENAI_API_KEY=<v> ANTHROPIC_API_KEY=<v> GEMINI_API_KEY=<v>
//
// The setup subcommand prints SetupOutput to stderr and exits with
// SetupExit. Anything else prints MainOutput to stdout, sleeps MainSleep
// seconds if set and exits with MainExit.
type FakeTool struct {
	Dir     string
	Path    string
	LogPath string

	SetupOutput string
	SetupExit   int

	MainOutput string
	MainSleep  int
	MainExit   int
}

// NewFakeTool writes a succeeding fake tool into a temp dir.
func NewFakeTool(t *testing.T) *FakeTool {
	t.Helper()
	dir := t.TempDir()
	f := &FakeTool{
		Dir:         dir,
		Path:        filepath.Join(dir, "droidrun"),
		LogPath:     filepath.Join(dir, "invocations.log"),
		SetupOutput: "portal installed",
		MainOutput:  "step 1: opened settings",
	}
	f.Write(t)
	return f
}

// Write regenerates the script from the current fields.
func (f *FakeTool) Write(t *testing.T) {
	t.Helper()

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "echo \"$* | OPENAI_API_KEY=${OPENAI_API_KEY:-} ANTHROPIC_API_KEY=${ANTHROPIC_API_KEY:-} GEMINI_API_KEY=${GEMINI_API_KEY:-}\" >> %s\n", shellQuote(f.LogPath))
	b.WriteString("if [ \"$1\" = \"setup\" ]; then\n")
	if f.SetupOutput != "" {
		fmt.Fprintf(&b, "  printf '%%s\\n' %s >&2\n", shellQuote(f.SetupOutput))
	}
	fmt.Fprintf(&b, "  exit %d\nfi\n", f.SetupExit)
	if f.MainOutput != "" {
		fmt.Fprintf(&b, "printf '%%s\\n' %s\n", shellQuote(f.MainOutput))
	}
	if f.MainSleep > 0 {
		fmt.Fprintf(&b, "sleep %d\n", f.MainSleep)
	}
	fmt.Fprintf(&b, "exit %d\n", f.MainExit)

	if err := os.WriteFile(f.Path, []byte(b.String()), 0755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
}

// Invocations returns the logged invocation lines in order.
func (f *FakeTool) Invocations(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.LogPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read invocation log: %v", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// SetupInvocations returns only the setup invocations.
func (f *FakeTool) SetupInvocations(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, line := range f.Invocations(t) {
		if strings.HasPrefix(line, "setup ") {
			out = append(out, line)
		}
	}
	return out
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

package status

import (
	"strings"
	"testing"
	"time"

	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

func TestNewHistorySummary(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []types.HistoryEntry{
		{Device: "a", Task: "t1", Timestamp: base, Success: true, State: types.RunStateFinished},
		{Device: "b", Task: "t2", Timestamp: base.Add(time.Minute), Success: false, State: types.RunStateCancelled},
		{Device: "a", Task: "t3", Timestamp: base.Add(2 * time.Minute), Success: false},
		{Device: "a", Task: "t4", Timestamp: base.Add(3 * time.Minute), Success: true},
	}

	s := NewHistorySummary(entries)
	if s.Total != 4 || s.Succeeded != 2 || s.Failed != 1 || s.Cancelled != 1 {
		t.Errorf("counts = %+v", s)
	}
	if got := s.SuccessRate(); got != 0.5 {
		t.Errorf("SuccessRate() = %v, want 0.5", got)
	}
	if len(s.Devices) != 2 {
		t.Fatalf("Devices = %+v", s.Devices)
	}
	a := s.Devices[0]
	if a.Device != "a" || a.Runs != 3 || a.Succeeded != 2 || a.LastTask != "t4" {
		t.Errorf("device a = %+v", a)
	}
}

func TestNewHistorySummary_Empty(t *testing.T) {
	s := NewHistorySummary(nil)
	if s.Total != 0 || s.SuccessRate() != 0 || len(s.Devices) != 0 {
		t.Errorf("empty summary = %+v", s)
	}
	if got := FormatHistorySummary(s, FormatOptions{NoColor: true}); got != "Runs:      0\n" {
		t.Errorf("FormatHistorySummary(empty) = %q", got)
	}
}

func TestEntryState(t *testing.T) {
	tests := []struct {
		entry types.HistoryEntry
		want  types.RunState
	}{
		{types.HistoryEntry{Success: true}, types.RunStateFinished},
		{types.HistoryEntry{Success: false}, types.RunStateFailed},
		{types.HistoryEntry{State: types.RunStateCancelled}, types.RunStateCancelled},
		{types.HistoryEntry{State: types.RunStateRunning}, types.RunStateFailed},
	}
	for _, tt := range tests {
		if got := EntryState(tt.entry); got != tt.want {
			t.Errorf("EntryState(%+v) = %s, want %s", tt.entry, got, tt.want)
		}
	}
}

func TestFormatOutcome(t *testing.T) {
	opts := FormatOptions{NoColor: true}

	got := FormatOutcome(types.Outcome{Success: true, Message: "done", StepsUsed: 10, State: types.RunStateFinished}, 12*time.Second, opts)
	if got != "✓ Task finished: done (10 steps in 12s)" {
		t.Errorf("finished = %q", got)
	}

	got = FormatOutcome(types.Outcome{Message: "cancelled", State: types.RunStateCancelled}, 90*time.Second, opts)
	if got != "■ Task cancelled after 1m30s" {
		t.Errorf("cancelled = %q", got)
	}

	got = FormatOutcome(types.Outcome{Message: "device offline", State: types.RunStateFailed}, time.Second, opts)
	if got != "✗ Task failed after 1s: device offline" {
		t.Errorf("failed = %q", got)
	}
}

func TestFormatState_Color(t *testing.T) {
	colored := FormatState(types.RunStateFailed, FormatOptions{})
	if !strings.HasPrefix(colored, "\033[31m") || !strings.HasSuffix(colored, "\033[0m") {
		t.Errorf("colored state = %q", colored)
	}
	if plain := FormatState(types.RunStateFailed, FormatOptions{NoColor: true}); plain != "✗" {
		t.Errorf("plain state = %q", plain)
	}
}

func TestGetStatusIcon(t *testing.T) {
	tests := []struct {
		state types.RunState
		want  string
	}{
		{types.RunStateIdle, "○"},
		{types.RunStateSettingUp, "◐"},
		{types.RunStateRunning, "●"},
		{types.RunStateFinished, "✓"},
		{types.RunStateFailed, "✗"},
		{types.RunStateCancelled, "■"},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := getStatusIcon(tt.state); got != tt.want {
				t.Errorf("expected icon %s for state %s, got %s", tt.want, tt.state, got)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m30s"},
		{3700 * time.Second, "1h1m"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatDuration(tt.duration); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

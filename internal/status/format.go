package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

// FormatOptions controls output formatting.
type FormatOptions struct {
	NoColor bool
}

// FormatOutcome renders the final line of a run.
func FormatOutcome(out types.Outcome, elapsed time.Duration, opts FormatOptions) string {
	icon := FormatState(out.State, opts)
	switch out.State {
	case types.RunStateFinished:
		return fmt.Sprintf("%s Task finished: %s (%d steps in %s)", icon, out.Message, out.StepsUsed, formatDuration(elapsed))
	case types.RunStateCancelled:
		return fmt.Sprintf("%s Task cancelled after %s", icon, formatDuration(elapsed))
	default:
		return fmt.Sprintf("%s Task failed after %s: %s", icon, formatDuration(elapsed), out.Message)
	}
}

// FormatState renders a colored status icon for state.
func FormatState(state types.RunState, opts FormatOptions) string {
	return getStatusColor(state, opts.NoColor) + getStatusIcon(state) + resetColor(opts.NoColor)
}

// FormatHistorySummary formats aggregate history statistics.
func FormatHistorySummary(summary *HistorySummary, opts FormatOptions) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Runs:      %d\n", summary.Total)
	if summary.Total == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "Succeeded: %s%d%s (%.0f%%)\n",
		getColor("green", opts.NoColor), summary.Succeeded, resetColor(opts.NoColor), summary.SuccessRate()*100)
	fmt.Fprintf(&b, "Failed:    %s%d%s\n", getColor("red", opts.NoColor), summary.Failed, resetColor(opts.NoColor))
	fmt.Fprintf(&b, "Cancelled: %d\n", summary.Cancelled)

	b.WriteString("\nDevices:\n")
	for _, d := range summary.Devices {
		fmt.Fprintf(&b, "  %s: %d/%d ok, last %s\n", d.Device, d.Succeeded, d.Runs, formatTime(d.LastRun))
	}
	return b.String()
}

// Formatting helpers

func getStatusIcon(state types.RunState) string {
	switch state {
	case types.RunStateSettingUp:
		return "◐"
	case types.RunStateRunning:
		return "●"
	case types.RunStateFinished:
		return "✓"
	case types.RunStateFailed:
		return "✗"
	case types.RunStateCancelled:
		return "■"
	case types.RunStateIdle:
		return "○"
	default:
		return "?"
	}
}

func getStatusColor(state types.RunState, noColor bool) string {
	if noColor {
		return ""
	}

	switch state {
	case types.RunStateSettingUp:
		return "\033[36m" // Cyan
	case types.RunStateRunning:
		return "\033[33m" // Yellow
	case types.RunStateFinished:
		return "\033[32m" // Green
	case types.RunStateFailed:
		return "\033[31m" // Red
	case types.RunStateCancelled, types.RunStateIdle:
		return "\033[90m" // Gray
	default:
		return ""
	}
}

func getColor(name string, noColor bool) string {
	if noColor {
		return ""
	}

	switch name {
	case "red":
		return "\033[31m"
	case "green":
		return "\033[32m"
	default:
		return ""
	}
}

func resetColor(noColor bool) string {
	if noColor {
		return ""
	}
	return "\033[0m"
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

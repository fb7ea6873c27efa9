package status

import (
	"sort"
	"time"

	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

// HistorySummary aggregates recorded runs for display.
type HistorySummary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	Devices   []DeviceStats `json:"devices,omitempty"`
}

// DeviceStats contains per-device run counts.
type DeviceStats struct {
	Device    string    `json:"device"`
	Runs      int       `json:"runs"`
	Succeeded int       `json:"succeeded"`
	LastRun   time.Time `json:"last_run"`
	LastTask  string    `json:"last_task"`
}

// SuccessRate returns the fraction of successful runs, 0 when empty.
func (s *HistorySummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total)
}

// NewHistorySummary computes a summary from history entries.
// Devices are ordered by most recent run first.
func NewHistorySummary(entries []types.HistoryEntry) *HistorySummary {
	summary := &HistorySummary{Total: len(entries)}
	byDevice := make(map[string]*DeviceStats)

	for _, e := range entries {
		switch EntryState(e) {
		case types.RunStateFinished:
			summary.Succeeded++
		case types.RunStateCancelled:
			summary.Cancelled++
		default:
			summary.Failed++
		}

		d, ok := byDevice[e.Device]
		if !ok {
			d = &DeviceStats{Device: e.Device}
			byDevice[e.Device] = d
		}
		d.Runs++
		if e.Success {
			d.Succeeded++
		}
		if !e.Timestamp.Before(d.LastRun) {
			d.LastRun = e.Timestamp
			d.LastTask = e.Task
		}
	}

	for _, d := range byDevice {
		summary.Devices = append(summary.Devices, *d)
	}
	sort.Slice(summary.Devices, func(i, j int) bool {
		if summary.Devices[i].LastRun.Equal(summary.Devices[j].LastRun) {
			return summary.Devices[i].Device < summary.Devices[j].Device
		}
		return summary.Devices[i].LastRun.After(summary.Devices[j].LastRun)
	})
	return summary
}

// EntryState returns the terminal state of a history entry. Entries
// written before the state was recorded are classified by Success.
func EntryState(e types.HistoryEntry) types.RunState {
	if e.State.IsTerminal() {
		return e.State
	}
	if e.Success {
		return types.RunStateFinished
	}
	return types.RunStateFailed
}

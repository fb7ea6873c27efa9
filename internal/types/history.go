package types

import "time"

// HistoryEntry records the result of one finished run.
type HistoryEntry struct {
	RunID     string    `yaml:"run_id,omitempty"`
	Timestamp time.Time `yaml:"timestamp"`
	Task      string    `yaml:"task"`
	Model     string    `yaml:"model"`
	Device    string    `yaml:"device"`
	Success   bool      `yaml:"success"`
	State     RunState  `yaml:"state,omitempty"`
	Message   string    `yaml:"message"`
	StepsUsed int       `yaml:"steps"`
}

// NewHistoryEntry builds a history entry from a request and its outcome.
func NewHistoryEntry(runID string, req TaskRequest, out Outcome, at time.Time) HistoryEntry {
	return HistoryEntry{
		RunID:     runID,
		Timestamp: at,
		Task:      req.Task,
		Model:     req.Model,
		Device:    req.Device,
		Success:   out.Success,
		State:     out.State,
		Message:   out.Message,
		StepsUsed: out.StepsUsed,
	}
}

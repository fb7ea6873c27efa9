package types

// RunState is the lifecycle state of an orchestrator.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateSettingUp RunState = "setting_up"
	RunStateRunning   RunState = "running"
	RunStateFinished  RunState = "finished"
	RunStateCancelled RunState = "cancelled"
	RunStateFailed    RunState = "failed"
)

// Valid returns true if this is a recognized run state.
func (s RunState) Valid() bool {
	switch s {
	case RunStateIdle, RunStateSettingUp, RunStateRunning,
		RunStateFinished, RunStateCancelled, RunStateFailed:
		return true
	}
	return false
}

// IsTerminal returns true if this state is final (finished, cancelled, or failed).
func (s RunState) IsTerminal() bool {
	return s == RunStateFinished || s == RunStateCancelled || s == RunStateFailed
}

// IsActive returns true while a run owns the orchestrator.
func (s RunState) IsActive() bool {
	return s == RunStateSettingUp || s == RunStateRunning
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s RunState) CanTransitionTo(next RunState) bool {
	switch s {
	case RunStateIdle:
		return next == RunStateSettingUp
	case RunStateSettingUp:
		return next == RunStateRunning || next == RunStateFailed || next == RunStateCancelled
	case RunStateRunning:
		return next == RunStateFinished || next == RunStateFailed || next == RunStateCancelled
	case RunStateFinished, RunStateCancelled, RunStateFailed:
		return next == RunStateIdle
	}
	return false
}

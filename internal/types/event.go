package types

import "time"

// Phase tags which process an event belongs to.
type Phase string

const (
	PhaseSetup Phase = "setup"
	PhaseMain  Phase = "main"
)

// EventKind distinguishes the payload carried by an Event.
type EventKind string

const (
	// EventOutput carries an opaque chunk of the child's combined output.
	EventOutput EventKind = "output"
	// EventNotice carries a message produced by the runner itself.
	EventNotice EventKind = "notice"
	// EventOutcome is the terminal event of a run. Exactly one is sent.
	EventOutcome EventKind = "outcome"
)

// Event is one item of a run's ordered event stream.
type Event struct {
	RunID   string    `json:"run_id"`
	Seq     int       `json:"seq"`
	Phase   Phase     `json:"phase,omitempty"`
	Kind    EventKind `json:"kind"`
	Text    string    `json:"text,omitempty"`
	Outcome *Outcome  `json:"outcome,omitempty"`
	Time    time.Time `json:"time"`
}

// Outcome is the terminal record of a run.
type Outcome struct {
	Success   bool     `json:"success" yaml:"success"`
	Message   string   `json:"message" yaml:"message"`
	StepsUsed int      `json:"steps_used" yaml:"steps_used"`
	State     RunState `json:"state" yaml:"state"`
	// Code is the error code for failed or cancelled runs.
	Code string `json:"code,omitempty" yaml:"code,omitempty"`
}

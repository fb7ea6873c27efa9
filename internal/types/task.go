package types

import (
	"fmt"
	"strings"
)

// DefaultSteps is the step budget used when a request does not set one.
const DefaultSteps = 15

// TaskRequest describes one automation task. It is not modified once a run starts.
type TaskRequest struct {
	Task     string   `json:"task" yaml:"task"`
	Provider Provider `json:"provider" yaml:"provider"`
	Model    string   `json:"model" yaml:"model"`
	Device   string   `json:"device" yaml:"device"`
	Steps    int      `json:"steps" yaml:"steps"`
}

// WithDefaults returns a copy with the step budget and model filled in.
func (r TaskRequest) WithDefaults() TaskRequest {
	if r.Steps == 0 {
		r.Steps = DefaultSteps
	}
	if r.Model == "" {
		r.Model = r.Provider.DefaultModel()
	}
	return r
}

// Validate checks that the request can be handed to the external tool.
func (r TaskRequest) Validate() error {
	if strings.TrimSpace(r.Task) == "" {
		return fmt.Errorf("task description is required")
	}
	if !r.Provider.Valid() {
		return fmt.Errorf("invalid provider: %q", r.Provider)
	}
	if r.Model == "" {
		return fmt.Errorf("model is required")
	}
	if r.Device == "" {
		return fmt.Errorf("device is required")
	}
	if r.Steps <= 0 {
		return fmt.Errorf("step budget must be positive, got %d", r.Steps)
	}
	return nil
}

package orchestrator

import (
	"strconv"

	"github.com/droidrun-stack/droidrun-runner/internal/supervisor"
	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

// CommandBuilder produces invocations of the external automation tool.
type CommandBuilder struct {
	// CLIPath is the tool executable.
	CLIPath string
	// PortalAPK is the provisioning artifact installed by setup.
	PortalAPK string
}

// Setup returns the one-time provisioning command for device.
func (b CommandBuilder) Setup(device string) supervisor.Command {
	return supervisor.Command{
		Path: b.CLIPath,
		Args: []string{"setup", "--path=" + b.PortalAPK, "--device", device},
	}
}

// Task returns the main command for req.
func (b CommandBuilder) Task(req types.TaskRequest) supervisor.Command {
	return supervisor.Command{
		Path: b.CLIPath,
		Args: []string{
			req.Task,
			"--device", req.Device,
			"--provider", string(req.Provider),
			"--model", req.Model,
			"--steps", strconv.Itoa(req.Steps),
		},
	}
}

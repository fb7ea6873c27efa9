//go:build windows

package supervisor

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) {}

// Windows has no SIGTERM; a stop request kills the child directly.
func terminateProcess(cmd *exec.Cmd) {
	killProcess(cmd)
}

func killProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

package testutil

import (
	"testing"
	"time"

	"github.com/droidrun-stack/droidrun-runner/internal/config"
	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

// NewTestConfig returns a config rooted in a temp data dir with a short
// stop grace period.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Supervisor.StopGracePeriod = 500 * time.Millisecond
	cfg.Logging.Level = config.LogLevelDebug
	return cfg
}

// NewTestRequest returns a valid request for device.
func NewTestRequest(device string) types.TaskRequest {
	return types.TaskRequest{
		Task:     "open settings",
		Provider: types.ProviderOpenAI,
		Model:    "gpt-4o",
		Device:   device,
		Steps:    10,
	}
}

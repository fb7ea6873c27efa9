package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	runerrors "github.com/droidrun-stack/droidrun-runner/internal/errors"
	"github.com/droidrun-stack/droidrun-runner/internal/types"
)

// LogLevel specifies the logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat specifies the log output format.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// DefaultDataDirName is the directory under $HOME holding runner state.
const DefaultDataDirName = ".droidrun-gui"

// PathsConfig holds path configuration.
type PathsConfig struct {
	// DataDir holds setup markers, history, credentials and templates.
	// A leading "~/" is expanded to the user's home directory.
	DataDir string `toml:"data_dir"`
}

// ToolConfig describes the external automation tool.
type ToolConfig struct {
	CLIPath   string `toml:"cli_path"`
	PortalAPK string `toml:"portal_apk"` // Provisioning artifact installed by setup
}

// DefaultsConfig holds default values for task requests.
type DefaultsConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	Steps    int    `toml:"steps"`
}

// SupervisorConfig holds child-process supervision settings.
type SupervisorConfig struct {
	// StopGracePeriod is how long a stopped child may take to exit after
	// SIGTERM before it is killed.
	StopGracePeriod time.Duration `toml:"stop_grace_period"`
	// TaskTimeout bounds a whole process run. Zero disables it.
	TaskTimeout time.Duration `toml:"task_timeout"`
}

// EventsConfig holds event stream settings.
type EventsConfig struct {
	Buffer int `toml:"buffer"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  LogLevel  `toml:"level"`
	Format LogFormat `toml:"format"`
	File   string    `toml:"file"`
}

// Config is the main configuration struct for the runner.
type Config struct {
	Version    string           `toml:"version"`
	Paths      PathsConfig      `toml:"paths"`
	Tool       ToolConfig       `toml:"tool"`
	Defaults   DefaultsConfig   `toml:"defaults"`
	Supervisor SupervisorConfig `toml:"supervisor"`
	Events     EventsConfig     `toml:"events"`
	Logging    LoggingConfig    `toml:"logging"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: "1",
		Paths: PathsConfig{
			DataDir: "~/" + DefaultDataDirName,
		},
		Tool: ToolConfig{
			CLIPath:   "droidrun",
			PortalAPK: "resources/droidrun-portal-v0.1.1.apk",
		},
		Defaults: DefaultsConfig{
			Provider: string(types.ProviderGemini),
			Model:    "",
			Steps:    types.DefaultSteps,
		},
		Supervisor: SupervisorConfig{
			StopGracePeriod: 5 * time.Second,
			TaskTimeout:     0,
		},
		Events: EventsConfig{
			Buffer: 256,
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
			File:   "",
		},
	}
}

// Load loads configuration from file, merging with defaults.
func Load(path string) (*Config, error) {
	return Merge(Default(), path)
}

// Merge decodes the file at path over cfg. A missing file leaves cfg unchanged.
func Merge(cfg *Config, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use what we have if no config file
		}
		return nil, runerrors.ReadFailed(path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from the standard location in a data directory.
// Applies in order: defaults -> <dir>/config.toml. The data directory itself is
// pinned to dir unless the file overrides it.
func LoadFromDir(dir string) (*Config, error) {
	cfg := Default()
	cfg.Paths.DataDir = dir
	return Merge(cfg, filepath.Join(dir, "config.toml"))
}

// Validate checks that the configuration is valid. Failures are CONFIG_001 for
// a missing field and CONFIG_002 for an unusable value.
func (c *Config) Validate() error {
	if c.Version == "" {
		return runerrors.ConfigMissingField("version")
	}
	if c.Paths.DataDir == "" {
		return runerrors.ConfigMissingField("paths.data_dir")
	}
	if c.Tool.CLIPath == "" {
		return runerrors.ConfigMissingField("tool.cli_path")
	}
	if _, err := types.ParseProvider(c.Defaults.Provider); err != nil {
		return runerrors.ConfigInvalidValue("defaults.provider", c.Defaults.Provider, err.Error())
	}
	if c.Defaults.Steps <= 0 {
		return runerrors.ConfigInvalidValue("defaults.steps", c.Defaults.Steps, "must be positive")
	}
	if c.Supervisor.StopGracePeriod < 0 {
		return runerrors.ConfigInvalidValue("supervisor.stop_grace_period", c.Supervisor.StopGracePeriod.String(), "must not be negative")
	}
	if c.Supervisor.TaskTimeout < 0 {
		return runerrors.ConfigInvalidValue("supervisor.task_timeout", c.Supervisor.TaskTimeout.String(), "must not be negative")
	}
	if c.Events.Buffer < 0 {
		return runerrors.ConfigInvalidValue("events.buffer", c.Events.Buffer, "must not be negative")
	}
	return nil
}

// DataDir returns the absolute data directory path.
func (c *Config) DataDir() string {
	return expandHome(c.Paths.DataDir)
}

// HistoryFile returns the path of the run history file.
func (c *Config) HistoryFile() string {
	return filepath.Join(c.DataDir(), "history.yaml")
}

// CredentialsFile returns the path of the provider credential file.
func (c *Config) CredentialsFile() string {
	return filepath.Join(c.DataDir(), "apikeys.json")
}

// TemplatesFile returns the path of the task template file.
func (c *Config) TemplatesFile() string {
	return filepath.Join(c.DataDir(), "templates.yaml")
}

// LogFile returns the absolute log file path, or "" when file logging is off.
func (c *Config) LogFile() string {
	if c.Logging.File == "" {
		return ""
	}
	p := expandHome(c.Logging.File)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir(), p)
}

// PortalAPKPath returns the absolute provisioning artifact path.
// Relative paths are resolved against baseDir, normally the executable's directory.
func (c *Config) PortalAPKPath(baseDir string) string {
	p := expandHome(c.Tool.PortalAPK)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

package config

import (
	"net/url"
	"os"
	"path/filepath"
	"time"

	"payagent/internal/errors"
)

// Config is the resolved client configuration.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Polling   PollingConfig   `yaml:"polling"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
	Datadog   DatadogConfig   `yaml:"datadog"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// APIConfig describes the remote payment-assistant service.
type APIConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	FeedPath string        `yaml:"feed_path"`
	Username string        `yaml:"username"`
	// Password is only read from PAYAGENT_PASSWORD, never from a file.
	Password string `yaml:"-"`
}

// PollingConfig holds the queue reconciliation cadence.
type PollingConfig struct {
	QueueInterval    time.Duration `yaml:"queue_interval"`
	AdaptiveInterval time.Duration `yaml:"adaptive_interval"`
	AdaptiveMaxTicks int           `yaml:"adaptive_max_ticks"`
}

// MonitorConfig holds the live monitor cadence and PIN bounds.
type MonitorConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Grace        time.Duration `yaml:"grace"`
	PINMinLength int           `yaml:"pin_min_length"`
	PINMaxLength int           `yaml:"pin_max_length"`
}

// SessionConfig controls where the durable credential lives.
type SessionConfig struct {
	StateDir string `yaml:"state_dir"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DatadogConfig enables forwarding of lifecycle events as Datadog logs.
type DatadogConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	IntakeURL string `yaml:"intake_url"`
	Service   string `yaml:"service"`
	Source    string `yaml:"source"`
	APIKey    string `yaml:"-"`
	AppKey    string `yaml:"-"`
}

// SimulatorConfig configures `payagent sim`.
type SimulatorConfig struct {
	Addr      string        `yaml:"addr"`
	AgentStep time.Duration `yaml:"agent_step"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	PIN       string        `yaml:"pin"`
}

// Validate checks the values the engine relies on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Configuration("api.base_url must be an absolute URL").
			WithContext("base_url", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return errors.Configuration("api.timeout must be positive")
	}
	if c.Polling.QueueInterval <= 0 || c.Polling.AdaptiveInterval <= 0 {
		return errors.Configuration("polling intervals must be positive")
	}
	if c.Polling.AdaptiveMaxTicks < 0 {
		return errors.Configuration("polling.adaptive_max_ticks must not be negative")
	}
	if c.Monitor.Interval <= 0 {
		return errors.Configuration("monitor.interval must be positive")
	}
	if c.Monitor.Grace < 0 {
		return errors.Configuration("monitor.grace must not be negative")
	}
	if c.Monitor.PINMinLength <= 0 || c.Monitor.PINMaxLength < c.Monitor.PINMinLength {
		return errors.Configuration("monitor PIN length bounds are invalid").
			WithContext("min", c.Monitor.PINMinLength).
			WithContext("max", c.Monitor.PINMaxLength)
	}
	if c.Datadog.Enabled && c.Datadog.APIKey == "" {
		return errors.Configuration("datadog.enabled requires DD_API_KEY")
	}
	return nil
}

// StateDir returns the directory holding the session database and logs.
func (c *Config) StateDir() string {
	if c.Session.StateDir != "" {
		return c.Session.StateDir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".payagent")
	}
	return ".payagent"
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var loadEnvOnce sync.Once

// LoadEnv loads variables from a .env file in the working directory, if present.
// Variables already set in the process environment win.
func LoadEnv() error {
	var loadErr error
	loadEnvOnce.Do(func() {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			loadErr = fmt.Errorf("error loading .env file: %w", err)
		}
	})
	return loadErr
}

// Get retrieves an environment variable with a default value
func Get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBool retrieves an environment variable as a boolean
func GetBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetInt retrieves an environment variable as an integer
func GetInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDuration retrieves an environment variable as a time.Duration
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Require checks that required environment variables are set
func Require(keys ...string) error {
	var missing []string
	for _, key := range keys {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

// applyEnv overlays PAYAGENT_* and DD_* variables on cfg.
func applyEnv(cfg *Config) {
	cfg.API.BaseURL = Get("PAYAGENT_BASE_URL", cfg.API.BaseURL)
	cfg.API.Timeout = GetDuration("PAYAGENT_TIMEOUT", cfg.API.Timeout)
	cfg.API.Username = Get("PAYAGENT_USERNAME", cfg.API.Username)
	cfg.API.Password = Get("PAYAGENT_PASSWORD", cfg.API.Password)

	cfg.Polling.QueueInterval = GetDuration("PAYAGENT_QUEUE_INTERVAL", cfg.Polling.QueueInterval)
	cfg.Polling.AdaptiveInterval = GetDuration("PAYAGENT_ADAPTIVE_INTERVAL", cfg.Polling.AdaptiveInterval)
	cfg.Polling.AdaptiveMaxTicks = GetInt("PAYAGENT_ADAPTIVE_MAX_TICKS", cfg.Polling.AdaptiveMaxTicks)

	cfg.Monitor.Interval = GetDuration("PAYAGENT_MONITOR_INTERVAL", cfg.Monitor.Interval)
	cfg.Monitor.Grace = GetDuration("PAYAGENT_MONITOR_GRACE", cfg.Monitor.Grace)

	cfg.Session.StateDir = Get("PAYAGENT_HOME", cfg.Session.StateDir)
	cfg.Log.Level = Get("PAYAGENT_LOG_LEVEL", cfg.Log.Level)

	cfg.Datadog.Enabled = GetBool("PAYAGENT_DATADOG", cfg.Datadog.Enabled)
	cfg.Datadog.BaseURL = Get("DATADOG_BASE_URL", cfg.Datadog.BaseURL)
	cfg.Datadog.IntakeURL = Get("DATADOG_INTAKE_URL", cfg.Datadog.IntakeURL)
	cfg.Datadog.APIKey = Get("DD_API_KEY", cfg.Datadog.APIKey)
	cfg.Datadog.AppKey = Get("DD_APPLICATION_KEY", cfg.Datadog.AppKey)

	cfg.Simulator.Addr = Get("PAYAGENT_SIM_ADDR", cfg.Simulator.Addr)
	cfg.Simulator.AgentStep = GetDuration("PAYAGENT_SIM_AGENT_STEP", cfg.Simulator.AgentStep)
}

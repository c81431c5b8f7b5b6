package config

import (
	"embed"
	"os"
	"path/filepath"

	"payagent/internal/errors"
	"payagent/internal/logging"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var configFS embed.FS

// ConfigLoader builds a Config from embedded defaults, an optional user file
// and the environment, in that order.
type ConfigLoader struct {
	logger *logging.Logger
}

// NewConfigLoader creates a new configuration loader
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{
		logger: logging.NewDefaultLogger("config"),
	}
}

// LoadDefaults parses the embedded defaults.yaml
func (cl *ConfigLoader) LoadDefaults() (*Config, error) {
	data, err := configFS.ReadFile("defaults.yaml")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfiguration,
			"failed to read embedded defaults")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfiguration,
			"failed to parse defaults YAML")
	}
	return &cfg, nil
}

// Load resolves the full configuration. path may be empty, in which case
// config.yaml inside the state directory is used when it exists.
func (cl *ConfigLoader) Load(path string) (*Config, error) {
	if err := LoadEnv(); err != nil {
		cl.logger.Warn("%v", err)
	}

	cfg, err := cl.LoadDefaults()
	if err != nil {
		return nil, err
	}
	// PAYAGENT_HOME decides where to look for the user file.
	cfg.Session.StateDir = Get("PAYAGENT_HOME", cfg.Session.StateDir)

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.StateDir(), "config.yaml")
	}
	if err := cl.overlayFile(cfg, path, explicit); err != nil {
		return nil, err
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cl *ConfigLoader) overlayFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			cl.logger.Debug("No user config at %s, using defaults", path)
			return nil
		}
		return errors.Wrap(err, errors.ErrorTypeConfiguration, "failed to read config file").
			WithContext("path", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfiguration, "failed to parse config file").
			WithContext("path", path)
	}
	cl.logger.Debug("Loaded user config from %s", path)
	return nil
}

// Load is a shorthand for NewConfigLoader().Load(path).
func Load(path string) (*Config, error) {
	return NewConfigLoader().Load(path)
}

package common

import (
	"fmt"

	"payagent/internal/config"
	"payagent/internal/logging"
)

type Context struct {
	BinaryName string
	Config     *config.Config
}

// NewContext loads the configuration (PAYAGENT_CONFIG names an explicit file)
// and applies the log level before any component is built.
func NewContext(binaryName string) (*Context, error) {
	cfg, err := config.Load(config.Get("PAYAGENT_CONFIG", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logging.SetLevel(level)

	return &Context{
		BinaryName: binaryName,
		Config:     cfg,
	}, nil
}

func (c *Context) GetPrefix() string {
	return "[" + c.BinaryName + "] "
}

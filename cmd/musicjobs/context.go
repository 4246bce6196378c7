package main

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/dripdrop/musicjobs/internal/config"
	"github.com/dripdrop/musicjobs/internal/logging"
)

type commandContext struct {
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	logger     *slog.Logger
	configErr  error
}

func newCommandContext(logLevelFlag *string) *commandContext {
	return &commandContext{logLevelFlag: logLevelFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Server.LogLevel = strings.TrimSpace(*c.logLevelFlag)
		}

		logger, err := logging.New(logging.Options{
			Level:  cfg.Server.LogLevel,
			Format: cfg.Server.LogFormat,
			Output: os.Stderr,
		})
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) loggerValue() *slog.Logger {
	if _, err := c.ensureConfig(); err != nil {
		return logging.NewNop()
	}
	return c.logger
}

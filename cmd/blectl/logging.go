package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dennisblokland/btleplug-c/internal/config"
)

// loadConfig resolves the effective configuration for a command run: the
// config file (if any) layered under the command-line flags, which take
// precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if _, err := logrus.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
		}
		cfg.LogLevel = level
	}
	return cfg, nil
}

// configureLogger creates a logger for a command run. Without an explicit
// --log-level or config file the logger stays essentially silent so command
// output is not interleaved with log lines.
func configureLogger(cmd *cobra.Command) (*logrus.Logger, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger := cfg.NewLogger()

	levelFlag, _ := cmd.Flags().GetString("log-level")
	configFlag, _ := cmd.Flags().GetString("config")
	if levelFlag == "" && configFlag == "" {
		logger.SetLevel(logrus.PanicLevel)
	}
	return logger, cfg, nil
}

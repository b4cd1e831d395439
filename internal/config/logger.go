package config

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

func setupLogging(config *Config) error {
	level, err := logrus.ParseLevel(config.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", config.Logging.Level, err)
	}
	logrus.SetLevel(level)

	switch config.Logging.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format: %s", config.Logging.Format)
	}

	return nil
}

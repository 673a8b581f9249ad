// Package logger provides a wrapper around logrus for structured logging.
package logger

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a new configured logger instance. Output is JSON for
// log aggregation; set STRATOPT_LOG_FORMAT=text for readable local runs.
func NewLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logger.Warnf("Invalid log level '%s', defaulting to info", logLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("STRATOPT_LOG_FORMAT") == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	}

	return logger
}

package utils

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogConfig selects the logger level and output format
type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format  string `mapstructure:"format" yaml:"format"` // text or json
	Verbose bool   `mapstructure:"verbose" yaml:"verbose"`
}

// NewLogger builds a logrus logger writing to stderr
func NewLogger(cfg LogConfig) *logrus.Logger {
	return NewLoggerTo(os.Stderr, cfg)
}

// NewLoggerTo builds a logrus logger writing to w
func NewLoggerTo(w io.Writer, cfg LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	switch strings.ToLower(cfg.Level) {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		if cfg.Verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}
	}
	return logger
}

// Discard returns a logger that drops everything; used as the default for
// library types constructed without WithLogger.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

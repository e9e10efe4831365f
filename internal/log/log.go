// Package log provides the process-wide structured logger backed by logrus.
package log

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"firestige.xyz/ferry/internal/config"
)

// Logger is the logging surface used across ferry. Level "trace" is accepted
// in configuration and behaves like debug.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger
)

const (
	defaultPattern    = "%time [%level] %field %msg%n"
	defaultTimeFormat = "2006-01-02 15:04:05.000"
)

// GetLogger returns the global logger. Before Init it is an info-level
// text logger on stderr.
func GetLogger() Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		base := logrus.New()
		base.SetOutput(os.Stderr)
		base.SetLevel(logrus.InfoLevel)
		logger = &logrusAdapter{entry: logrus.NewEntry(base)}
	}
	return logger
}

// Init replaces the global logger according to cfg.
func Init(cfg config.LogConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

// New builds a logger without touching the global one.
func New(cfg config.LogConfig) (Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	base := logrus.New()
	base.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timeFormat(cfg)})
	case "text", "":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: timeFormat(cfg)})
	case "pattern":
		pattern := cfg.Pattern
		if pattern == "" {
			pattern = defaultPattern
		}
		base.SetFormatter(&formatter{pattern: pattern, time: timeFormat(cfg)})
		base.SetReportCaller(strings.Contains(pattern, "%caller") || strings.Contains(pattern, "%func"))
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be json, text or pattern)", cfg.Format)
	}

	// stdout is reserved for the file sink's "-" path
	out := NewMultiWriter().Add(os.Stderr)
	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("file output requires 'path' field")
		}
		out.AddFileAppender(cfg.File)
	}
	base.SetOutput(out)

	return &logrusAdapter{entry: logrus.NewEntry(base)}, nil
}

func timeFormat(cfg config.LogConfig) string {
	if cfg.TimeFormat != "" {
		return cfg.TimeFormat
	}
	return defaultTimeFormat
}

func parseLevel(s string) (logrus.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return logrus.TraceLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown level: %s", s)
	}
}

// Package logging builds the CLI logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/git-pkgs/updatecheck/internal/config"
)

// New creates a logger from cfg. When the log file cannot be opened the
// logger falls back to stderr and records a logger_fallback warning.
func New(cfg config.LogConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	output, outErr := buildOutput(cfg)

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(output)
	logger.SetFormatter(formatter(cfg.Format))

	if outErr != nil {
		logger.WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   cfg.File,
		}).Warn(outErr.Error())
	}

	return logger, nil
}

func formatter(format string) logrus.Formatter {
	if strings.EqualFold(format, "json") {
		return &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	}
	return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339}
}

// buildOutput returns stderr unless a log file is configured.
func buildOutput(cfg config.LogConfig) (io.Writer, error) {
	if cfg.File == "" {
		return os.Stderr, nil
	}

	dir := filepath.Dir(cfg.File)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return os.Stderr, fmt.Errorf("creating log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, nil
}

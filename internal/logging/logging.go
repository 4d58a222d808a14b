// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package logging configures the process-wide logger, with optional file
// rotation.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig holds log file rotation settings.
type FileConfig struct {
	Path       string // Log file path
	MaxSizeMB  int    // Max size in MB before rotation
	MaxBackups int    // Number of old files to keep
	MaxAgeDays int    // Max age in days
	Compress   bool   // Compress old files
}

// DefaultFileConfig returns sensible rotation defaults for a log path.
func DefaultFileConfig(path string) FileConfig {
	return FileConfig{
		Path:       path,
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 7,
		Compress:   true,
	}
}

// NewRotatingWriter creates a log writer with rotation support.
func NewRotatingWriter(cfg FileConfig) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

// Setup configures the standard logrus logger. An empty logFile logs to
// stderr only; otherwise log lines are duplicated into a rotating file.
// Unknown levels fall back to info. Returns the configured logger.
func Setup(level, logFile string) *logrus.Logger {
	log := logrus.StandardLogger()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if logFile != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, NewRotatingWriter(DefaultFileConfig(logFile))))
	} else {
		log.SetOutput(os.Stderr)
	}
	return log
}

// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for JyotiFlow components.
//
// The logger is built on Go's standard library slog package. Output is
// JSON when stderr is redirected (services, containers) and human-readable
// text when stderr is an interactive terminal. An optional log directory
// enables file logging alongside stderr.
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("session created", "session_id", sessionID)
//	logger.Error("generation failed", "error", err)
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Callers must
// ensure passwords, tokens, and API keys are never logged:
//
//	// BAD: logs sensitive data
//	logger.Info("auth", "token", token)
//
//	// GOOD: log metadata only
//	logger.Info("auth", "token_present", token != "")
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a config string to a Level. Unknown values map to Info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config controls logger construction.
type Config struct {
	// Level is the minimum level emitted.
	Level Level

	// Service tags every record and names the log file.
	Service string

	// LogDir, when non-empty, enables file logging. The directory is
	// created if missing. Files are named {service}_{date}.log.
	LogDir string

	// ForceJSON emits JSON even on a TTY. Used by services that always
	// ship logs to a collector.
	ForceJSON bool
}

// Logger wraps slog.Logger with an optional file sink.
type Logger struct {
	*slog.Logger

	mu   sync.Mutex
	file *os.File
}

// Default returns a stderr-only logger at Info level.
func Default() *Logger {
	l, _ := New(Config{Level: LevelInfo, Service: "jyotiflow"})
	return l
}

// New builds a Logger from config. File-sink setup failures are returned
// but leave a usable stderr logger in place.
func New(cfg Config) (*Logger, error) {
	if cfg.Service == "" {
		cfg.Service = "jyotiflow"
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}

	var w io.Writer = os.Stderr
	var file *os.File
	var fileErr error

	if cfg.LogDir != "" {
		file, fileErr = openLogFile(cfg.LogDir, cfg.Service)
		if file != nil {
			w = io.MultiWriter(os.Stderr, file)
		}
	}

	var handler slog.Handler
	if cfg.ForceJSON || !isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := &Logger{
		Logger: slog.New(handler).With("service", cfg.Service),
		file:   file,
	}
	return logger, fileErr
}

// SetAsDefault installs this logger as the process-wide slog default so
// packages that log via the slog top-level functions share the sink.
func (l *Logger) SetAsDefault() {
	slog.SetDefault(l.Logger)
}

// Close flushes and closes the file sink, if any. Safe to call on a
// stderr-only logger and safe to call twice.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func openLogFile(dir, service string) (*os.File, error) {
	expanded, err := expandHome(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(expanded, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(expanded, name),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func expandHome(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

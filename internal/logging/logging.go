// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the structured logger shared by every component.
//
// The TUI owns the terminal, so in TUI mode logs go to a file. Headless
// commands log to stderr, in colour only when stderr is a terminal.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Mode selects where logs go.
type Mode int

const (
	// ModeHeadless writes to stderr.
	ModeHeadless Mode = iota
	// ModeTUI writes to a file so the screen stays clean.
	ModeTUI
)

// Options configures Setup.
type Options struct {
	Mode  Mode
	Level string
	// File is the log file for ModeTUI.
	File string
	// Stderr overrides os.Stderr for ModeHeadless.
	Stderr io.Writer
}

// ParseLevel converts a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns a tint-formatted logger writing to w.
func New(w io.Writer, level slog.Leveler, color bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !color,
	}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Setup builds the process logger and installs it as the slog default. The
// returned close function flushes and closes the log file, if any.
func Setup(opts Options) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		logger  *slog.Logger
		closeFn = func() error { return nil }
	)
	switch opts.Mode {
	case ModeTUI:
		f, err := openLogFile(opts.File)
		if err != nil {
			return nil, nil, err
		}
		logger = New(f, level, false)
		closeFn = f.Close

	default:
		w := opts.Stderr
		color := false
		if w == nil {
			w = os.Stderr
			color = isTerminal(os.Stderr) && os.Getenv("NO_COLOR") == ""
		}
		logger = New(w, level, color)
	}

	slog.SetDefault(logger)
	return logger, closeFn, nil
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("no log file configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

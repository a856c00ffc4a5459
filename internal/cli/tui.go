// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/anchorchat/internal/config"
	"github.com/jeranaias/anchorchat/internal/logging"
	"github.com/jeranaias/anchorchat/internal/ui/chat"
	"github.com/jeranaias/anchorchat/internal/ui/styles"
)

// runTUI opens the full-screen chat and blocks until the user quits.
func runTUI(ctx context.Context, a *app) error {
	if !IsTTY() || !IsStdoutTTY() {
		return &UsageError{
			Reason:  "the chat UI needs an interactive terminal",
			Example: `anchorchat replay "What is a scroll anchor?"`,
		}
	}

	logFile := a.cfg.Logging.File
	if logFile == "" {
		p, err := config.DefaultLogPath()
		if err != nil {
			return &ConfigError{Err: err}
		}
		logFile = p
	}
	logger, closeLog, err := logging.Setup(logging.Options{
		Mode:  logging.ModeTUI,
		Level: a.cfg.Logging.Level,
		File:  logFile,
	})
	if err != nil {
		return &ConfigError{Path: logFile, Err: err}
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := chat.New(chat.Options{
		Config: a.cfg,
		Theme:  styles.NewTheme(a.cfg.UI.Theme),
		Logger: logger,
	})
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	m.Program().SetSender(p.Send)

	if _, err := os.Stat(a.cfgPath); err == nil {
		if err := chat.WatchConfig(ctx, a.cfgPath, p.Send); err != nil {
			logger.Warn("config hot reload disabled", "path", a.cfgPath, "error", err)
		}
	}

	logger.Info("chat started", "session", m.Session().ID(), "config", a.cfgPath)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("chat UI: %w", err)
	}
	logger.Info("chat ended", "session", m.Session().ID())
	return nil
}

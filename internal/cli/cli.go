// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/anchorchat/internal/config"
	"github.com/jeranaias/anchorchat/internal/logging"
)

// =============================================================================
// APPLICATION STATE
// =============================================================================

// app carries what the persistent pre-run resolved for every subcommand.
type app struct {
	build BuildInfo

	configFlag string
	logLevel   string
	noColor    bool

	// cfgPath is the config file in effect, whether or not it exists.
	cfgPath string
	cfg     *config.Config
}

// headlessLogger builds the stderr logger used by the chat and replay
// commands. They log warnings and up unless --log-level asks for more, so
// transcripts stay readable.
func (a *app) headlessLogger(stderr io.Writer) (*slog.Logger, error) {
	level := "warn"
	if a.logLevel != "" {
		level = a.logLevel
	}
	opts := logging.Options{Mode: logging.ModeHeadless, Level: level}
	if stderr != os.Stderr {
		opts.Stderr = stderr
	}
	logger, _, err := logging.Setup(opts)
	if err != nil {
		return nil, &UsageError{Reason: err.Error(), Example: "anchorchat --log-level debug replay hello"}
	}
	return logger, nil
}

// loadConfig resolves --config, loads the file and applies --log-level.
func (a *app) loadConfig() error {
	path := a.configFlag
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return &ConfigError{Err: err}
		}
		a.cfgPath = p
		cfg, err := config.Load()
		if err != nil {
			return &ConfigError{Path: p, Err: err}
		}
		a.cfg = cfg
	} else {
		a.cfgPath = path
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			return &ConfigError{Path: path, Err: err}
		}
		a.cfg = cfg
	}

	if a.logLevel != "" {
		if _, err := logging.ParseLevel(a.logLevel); err != nil {
			return &UsageError{Reason: err.Error(), Example: "anchorchat --log-level debug"}
		}
		a.cfg.Logging.Level = a.logLevel
	}
	config.SetGlobal(a.cfg)
	return nil
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// BuildInfo is stamped into the binary at build time.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// NewRootCommand builds the anchorchat command tree.
func NewRootCommand(build BuildInfo) *cobra.Command {
	a := &app{build: build}

	root := &cobra.Command{
		Use:   "anchorchat",
		Short: "Terminal chat that keeps your question pinned while the reply streams",
		Long: `anchorchat is a terminal chat client for a simulated streaming responder.

Run without a subcommand to open the full-screen chat. The question you just
asked scrolls to the top of the view and stays there while the reply arrives
below it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.noColor {
				ForceColorsEnabled(false)
			}
			configureColors()
			return a.loadConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), a)
		},
	}

	root.PersistentFlags().StringVarP(&a.configFlag, "config", "c", "", "config file (default ~/.anchorchat/config.toml)")
	root.PersistentFlags().StringVarP(&a.logLevel, "log-level", "l", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output (same as NO_COLOR=1)")

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Reason: err.Error(), Example: cmd.UseLine()}
	})

	root.AddCommand(
		chatCmd(a),
		replayCmd(a),
		configCmd(a),
		versionCmd(a),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, build BuildInfo) int {
	root := NewRootCommand(build)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, DimStyle.Render("interrupted"))
		return ExitGeneralError
	}
	DisplayError(os.Stderr, err)
	return GetExitCode(err)
}

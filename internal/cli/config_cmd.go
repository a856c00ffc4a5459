// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/anchorchat/internal/config"
)

// =============================================================================
// CONFIG COMMAND
// =============================================================================

func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration",
		Long: `Print the effective configuration as TOML, including defaults and
environment overrides. Subcommands read and write single keys.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), a.cfg.String())
			return err
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), a.cfgPath)
				return err
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List every config key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(config.GetAllKeys(), "\n"))
				return err
			},
		},
		&cobra.Command{
			Use:   "get KEY",
			Short: "Print one effective config value",
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) != 1 {
					return &UsageError{Reason: "config get takes one key", Example: "anchorchat config get ui.theme"}
				}
				v, err := a.cfg.Get(args[0])
				if err != nil {
					return &UsageError{Reason: err.Error(), Example: "anchorchat config keys"}
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
				return err
			},
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Change one value in the config file",
			Long: `Set one key in the config file and save it. Environment overrides are
not written back. A running chat picks the change up on its own.`,
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) != 2 {
					return &UsageError{Reason: "config set takes a key and a value", Example: "anchorchat config set typewriter.interval_ms 35"}
				}
				if err := setConfigValue(a.cfgPath, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", SuccessStyle.Render("Saved"), args[0], args[1])
				return nil
			},
		},
	)
	return cmd
}

// setConfigValue rewrites path with key changed. The file's own values are
// the base so environment overrides stay out of it.
func setConfigValue(path, key, value string) error {
	cfg := config.Default()
	if err := config.LoadTOML(cfg, path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &ConfigError{Path: path, Err: err}
	}

	if err := cfg.Set(key, value); err != nil {
		return &UsageError{Reason: err.Error(), Example: "anchorchat config keys"}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &CommandError{Command: "config", Action: "set", Err: err}
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return &CommandError{Command: "config", Action: "set", Err: err}
	}
	return nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for anchorchat.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - SourceConfig: Timing of the simulated response source
//   - TypewriterConfig: Reveal cadence
//   - AnchorConfig: Scroll anchoring fallback and footer sizing
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (ANCHORCHAT_*)
//   - ~/.anchorchat/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Follow edits while running:
//
//	config.Watch(ctx, path, 0, func(cfg *config.Config, err error) { ... })
package config

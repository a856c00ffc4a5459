// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"github.com/jeranaias/anchorchat/internal/config"
	"github.com/jeranaias/anchorchat/internal/source"
)

// OptionsFromConfig fills the reveal and anchor settings from cfg. The
// caller still sets Sched, Source, Viewport and Logger.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		cfg = config.Default()
	}
	return Options{
		Reveal:         cfg.Typewriter.Enabled,
		TypeInterval:   cfg.TypeInterval(),
		AnchorFallback: cfg.AnchorFallback(),
	}
}

// MockConfig maps the [source] section onto the simulated responder.
func MockConfig(cfg *config.Config) source.MockConfig {
	if cfg == nil {
		cfg = config.Default()
	}
	minDelay, maxDelay := cfg.FragmentDelays()
	return source.MockConfig{
		Response:  cfg.Source.Response,
		Thinking:  cfg.Thinking(),
		MinDelay:  minDelay,
		MaxDelay:  maxDelay,
		FailAfter: cfg.Source.FailAfter,
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfig_ConcurrentAccess tests that Global() and SetGlobal() can be
// safely called concurrently.
// Run with: go test -race -v ./internal/config/
func TestConfig_ConcurrentAccess(t *testing.T) {
	ResetGlobalForTesting()
	t.Setenv("HOME", t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()
			c := Default()
			c.UI.Theme = "light"
			SetGlobal(c)
		}()

		go func() {
			defer wg.Done()
			if cfg := Global(); cfg == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}

func TestConfig_GlobalInitialization(t *testing.T) {
	ResetGlobalForTesting()
	t.Setenv("HOME", t.TempDir())

	cfg := Global()
	require.NotNil(t, cfg)
	assert.Same(t, cfg, Global(), "Global() must return the same instance")
}

func TestConfig_SetGlobalOverwrites(t *testing.T) {
	ResetGlobalForTesting()
	t.Setenv("HOME", t.TempDir())

	c := Default()
	c.Logging.Level = "debug"
	SetGlobal(c)
	assert.Equal(t, "debug", Global().Logging.Level)
}

// =============================================================================
// DEFAULTS AND VALIDATION
// =============================================================================

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	if cfg.Source.ThinkingMs != 1500 {
		t.Errorf("ThinkingMs = %d, want 1500", cfg.Source.ThinkingMs)
	}
	if cfg.Source.MinDelayMs != 500 || cfg.Source.MaxDelayMs != 1500 {
		t.Errorf("delays = %d..%d, want 500..1500", cfg.Source.MinDelayMs, cfg.Source.MaxDelayMs)
	}
	if !cfg.Typewriter.Enabled || cfg.TypeInterval() != 20*time.Millisecond {
		t.Errorf("typewriter = %+v, want enabled at 20ms", cfg.Typewriter)
	}
	if cfg.AnchorFallback() != 50*time.Millisecond {
		t.Errorf("AnchorFallback = %v, want 50ms", cfg.AnchorFallback())
	}
	if cfg.Anchor.FooterRatio != 0.8 {
		t.Errorf("FooterRatio = %g, want 0.8", cfg.Anchor.FooterRatio)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative thinking", func(c *Config) { c.Source.ThinkingMs = -1 }, "source.thinking_ms"},
		{"max below min", func(c *Config) { c.Source.MaxDelayMs = 100 }, "source.max_delay_ms"},
		{"negative fail_after", func(c *Config) { c.Source.FailAfter = -2 }, "source.fail_after"},
		{"zero interval", func(c *Config) { c.Typewriter.IntervalMs = 0 }, "typewriter.interval_ms"},
		{"huge interval", func(c *Config) { c.Typewriter.IntervalMs = 5000 }, "typewriter.interval_ms"},
		{"zero fallback", func(c *Config) { c.Anchor.FallbackMs = 0 }, "anchor.fallback_ms"},
		{"ratio above one", func(c *Config) { c.Anchor.FooterRatio = 1.5 }, "anchor.footer_ratio"},
		{"unknown theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
		{"unknown level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs))
			require.Len(t, verrs, 1)
			assert.Equal(t, tc.field, verrs[0].Field)
		})
	}
}

func TestValidateErrors_Error(t *testing.T) {
	errs := ValidateErrors{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}
	assert.Equal(t, "a: bad; b: worse", errs.Error())
	assert.Equal(t, "no validation errors", ValidateErrors{}.Error())
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	assert.Equal(t, 20, cfg.Typewriter.IntervalMs)
	assert.Equal(t, 50, cfg.Anchor.FallbackMs)
	assert.Equal(t, "dark", cfg.UI.Theme)
	assert.Equal(t, "info", cfg.Logging.Level)
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

func TestConfig_ApplyEnvOverrides(t *testing.T) {
	t.Setenv("ANCHORCHAT_TYPEWRITER_MS", "35")
	t.Setenv("ANCHORCHAT_THEME", "LIGHT")
	t.Setenv("ANCHORCHAT_LOG_LEVEL", "debug")
	t.Setenv("ANCHORCHAT_FAIL_AFTER", "2")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.True(t, cfg.Typewriter.Enabled)
	assert.Equal(t, 35, cfg.Typewriter.IntervalMs)
	assert.Equal(t, "light", cfg.UI.Theme)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Source.FailAfter)
}

func TestConfig_EnvZeroDisablesTypewriter(t *testing.T) {
	t.Setenv("ANCHORCHAT_TYPEWRITER_MS", "0")
	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.False(t, cfg.Typewriter.Enabled)
	assert.Equal(t, 20, cfg.Typewriter.IntervalMs, "interval keeps a valid value")
}

func TestConfig_EnvIgnoresGarbage(t *testing.T) {
	t.Setenv("ANCHORCHAT_TYPEWRITER_MS", "fast")
	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, 20, cfg.Typewriter.IntervalMs)
}

// =============================================================================
// FILES
// =============================================================================

func TestConfig_LoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[source]
thinking_ms = 10
response = "one\n\ntwo"

[typewriter]
interval_ms = 5

[ui]
theme = "light"
`), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Source.ThinkingMs)
	assert.Equal(t, "one\n\ntwo", cfg.Source.Response)
	assert.Equal(t, 5, cfg.Typewriter.IntervalMs)
	assert.True(t, cfg.Typewriter.Enabled, "absent keys keep defaults")
	assert.Equal(t, 500, cfg.Source.MinDelayMs)
	assert.Equal(t, "light", cfg.UI.Theme)
}

func TestConfig_LoadFromPathRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ui]\nthem = \"dark\"\n"), 0644))

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ui.them")
}

func TestConfig_LoadFromPathInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[anchor]\nfooter_ratio = 3.0\n"), 0644))

	_, err := LoadFromPath(path)
	var verrs ValidateErrors
	assert.True(t, errors.As(err, &verrs))
}

func TestConfig_LoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Source, cfg.Source)
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.UI.Markdown = true
	cfg.Anchor.FooterRatio = 0.5

	require.NoError(t, SaveTOML(cfg, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# anchorchat configuration file"))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

// =============================================================================
// GET / SET
// =============================================================================

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("typewriter.interval_ms")
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	require.NoError(t, cfg.Set("typewriter.interval_ms", "40"))
	assert.Equal(t, 40, cfg.Typewriter.IntervalMs)

	require.NoError(t, cfg.Set("ui.markdown", "yes"))
	assert.True(t, cfg.UI.Markdown)

	require.NoError(t, cfg.Set("anchor.footer_ratio", 0.6))
	assert.Equal(t, 0.6, cfg.Anchor.FooterRatio)

	_, err = cfg.Get("ui.nope")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("ui.theme.deeper", "x"))
	assert.Error(t, cfg.Set("typewriter.interval_ms", "soon"))
	_, err = cfg.Get("")
	assert.Error(t, err)
}

func TestGetAllKeys_Resolve(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
}

func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.UI.Theme = "light"
	assert.Equal(t, "dark", cfg.UI.Theme)
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, SaveTOML(Default(), path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, 20*time.Millisecond, func(cfg *Config, err error) {
		if err == nil {
			got <- cfg
		}
	}))

	cfg := Default()
	cfg.Typewriter.IntervalMs = 99
	require.NoError(t, SaveTOML(cfg, path))

	select {
	case c := <-got:
		assert.Equal(t, 99, c.Typewriter.IntervalMs)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "absent", "config.toml"), 0, func(*Config, error) {})
	assert.Error(t, err)
}

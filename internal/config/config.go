// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for anchorchat.
//
// Configuration is read from ~/.anchorchat/config.toml when present, with
// built-in defaults for every missing value and environment variable
// overrides applied last.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/anchorchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete anchorchat configuration.
type Config struct {
	Source     SourceConfig     `toml:"source" json:"source"`
	Typewriter TypewriterConfig `toml:"typewriter" json:"typewriter"`
	Anchor     AnchorConfig     `toml:"anchor" json:"anchor"`
	UI         UIConfig         `toml:"ui" json:"ui"`
	Logging    LoggingConfig    `toml:"logging" json:"logging"`
}

// SourceConfig controls the simulated response source.
type SourceConfig struct {
	// ThinkingMs is the delay before the first fragment.
	ThinkingMs int `toml:"thinking_ms" json:"thinking_ms"`
	// MinDelayMs and MaxDelayMs bound the pause between fragments.
	MinDelayMs int `toml:"min_delay_ms" json:"min_delay_ms"`
	MaxDelayMs int `toml:"max_delay_ms" json:"max_delay_ms"`
	// FailAfter injects a stream failure after this many fragments (0 = off).
	FailAfter int `toml:"fail_after" json:"fail_after"`
	// Response overrides the built-in reply. Paragraphs become fragments.
	Response string `toml:"response" json:"response"`
}

// TypewriterConfig controls character-by-character reveal.
type TypewriterConfig struct {
	Enabled    bool `toml:"enabled" json:"enabled"`
	IntervalMs int  `toml:"interval_ms" json:"interval_ms"`
}

// AnchorConfig controls scroll anchoring.
type AnchorConfig struct {
	// FallbackMs is how long a pending anchor waits for a layout pass.
	FallbackMs int `toml:"fallback_ms" json:"fallback_ms"`
	// FooterRatio caps the footer spacer as a fraction of viewport height.
	FooterRatio float64 `toml:"footer_ratio" json:"footer_ratio"`
}

// UIConfig contains terminal presentation preferences.
type UIConfig struct {
	Theme     string `toml:"theme" json:"theme"` // "dark", "light", "auto"
	Markdown  bool   `toml:"markdown" json:"markdown"`
	ShowStats bool   `toml:"show_stats" json:"show_stats"`
}

// LoggingConfig controls the structured log output.
type LoggingConfig struct {
	Level string `toml:"level" json:"level"` // debug, info, warn, error
	// File receives logs in TUI mode. Empty selects ~/.anchorchat/anchorchat.log.
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a new Config with sensible default values.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			ThinkingMs: 1500,
			MinDelayMs: 500,
			MaxDelayMs: 1500,
		},
		Typewriter: TypewriterConfig{
			Enabled:    true,
			IntervalMs: 20,
		},
		Anchor: AnchorConfig{
			FallbackMs:  50,
			FooterRatio: 0.8,
		},
		UI: UIConfig{
			Theme:     "dark",
			Markdown:  false,
			ShowStats: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Thinking returns the source thinking delay.
func (c *Config) Thinking() time.Duration {
	return time.Duration(c.Source.ThinkingMs) * time.Millisecond
}

// FragmentDelays returns the bounds of the inter-fragment delay.
func (c *Config) FragmentDelays() (minDelay, maxDelay time.Duration) {
	return time.Duration(c.Source.MinDelayMs) * time.Millisecond,
		time.Duration(c.Source.MaxDelayMs) * time.Millisecond
}

// TypeInterval returns the typewriter cadence.
func (c *Config) TypeInterval() time.Duration {
	return time.Duration(c.Typewriter.IntervalMs) * time.Millisecond
}

// AnchorFallback returns the anchor fallback delay.
func (c *Config) AnchorFallback() time.Duration {
	return time.Duration(c.Anchor.FallbackMs) * time.Millisecond
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the anchorchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".anchorchat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultLogPath returns the log file used when logging.file is empty.
func DefaultLogPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "anchorchat.log"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back to
// defaults when the file does not exist. Environment overrides are applied
// last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep the
// values already in cfg.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes the configuration atomically to path.
func SaveTOML(cfg *Config, path string) error {
	data, err := cfg.EncodeTOML()
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// EncodeTOML renders the configuration with a header comment.
func (c *Config) EncodeTOML() ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# anchorchat configuration file")
	fmt.Fprintln(&buf, "# Changes are picked up while anchorchat is running.")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validThemes    = []string{"dark", "light", "auto"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Source timing
	if c.Source.ThinkingMs < 0 {
		errs = append(errs, ValidationError{Field: "source.thinking_ms", Message: "must not be negative"})
	}
	if c.Source.MinDelayMs < 0 {
		errs = append(errs, ValidationError{Field: "source.min_delay_ms", Message: "must not be negative"})
	}
	if c.Source.MaxDelayMs < c.Source.MinDelayMs {
		errs = append(errs, ValidationError{
			Field:   "source.max_delay_ms",
			Message: fmt.Sprintf("must be >= min_delay_ms (%d), got %d", c.Source.MinDelayMs, c.Source.MaxDelayMs),
		})
	}
	if c.Source.FailAfter < 0 {
		errs = append(errs, ValidationError{Field: "source.fail_after", Message: "must not be negative"})
	}

	// Typewriter
	if c.Typewriter.IntervalMs <= 0 || c.Typewriter.IntervalMs > 1000 {
		errs = append(errs, ValidationError{
			Field:   "typewriter.interval_ms",
			Message: fmt.Sprintf("must be between 1 and 1000, got %d", c.Typewriter.IntervalMs),
		})
	}

	// Anchor
	if c.Anchor.FallbackMs <= 0 {
		errs = append(errs, ValidationError{Field: "anchor.fallback_ms", Message: "must be positive"})
	}
	if c.Anchor.FooterRatio < 0 || c.Anchor.FooterRatio > 1 {
		errs = append(errs, ValidationError{
			Field:   "anchor.footer_ratio",
			Message: fmt.Sprintf("must be between 0 and 1, got %g", c.Anchor.FooterRatio),
		})
	}

	// UI
	if !contains(validThemes, c.UI.Theme) {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("must be one of %v, got %q", validThemes, c.UI.Theme),
		})
	}

	// Logging
	if !contains(validLogLevels, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, c.Logging.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that have no meaningful zero setting.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Typewriter.IntervalMs == 0 {
		c.Typewriter.IntervalMs = defaults.Typewriter.IntervalMs
	}
	if c.Anchor.FallbackMs == 0 {
		c.Anchor.FallbackMs = defaults.Anchor.FallbackMs
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - ANCHORCHAT_TYPEWRITER_MS: overrides typewriter.interval_ms; "0" disables the typewriter
//   - ANCHORCHAT_THEME: overrides ui.theme
//   - ANCHORCHAT_LOG_LEVEL: overrides logging.level
//   - ANCHORCHAT_FAIL_AFTER: overrides source.fail_after
func (c *Config) ApplyEnvOverrides() {
	if ms := os.Getenv("ANCHORCHAT_TYPEWRITER_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			if n == 0 {
				c.Typewriter.Enabled = false
			} else {
				c.Typewriter.Enabled = true
				c.Typewriter.IntervalMs = n
			}
		}
	}

	if theme := os.Getenv("ANCHORCHAT_THEME"); theme != "" {
		c.UI.Theme = strings.ToLower(theme)
	}

	if level := os.Getenv("ANCHORCHAT_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}

	if n := os.Getenv("ANCHORCHAT_FAIL_AFTER"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			c.Source.FailAfter = v
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "ui.theme").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g. "ui.theme").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks a dotted key through nested structs by toml tag.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
		if tag == name || strings.EqualFold(t.Field(i).Name, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"source.thinking_ms",
		"source.min_delay_ms",
		"source.max_delay_ms",
		"source.fail_after",
		"source.response",
		"typewriter.enabled",
		"typewriter.interval_ms",
		"anchor.fallback_ms",
		"anchor.footer_ratio",
		"ui.theme",
		"ui.markdown",
		"ui.show_stats",
		"logging.level",
		"logging.file",
	}
}

// Clone creates a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the TOML rendering of the config.
func (c *Config) String() string {
	data, err := c.EncodeTOML()
	if err != nil {
		return err.Error()
	}
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}

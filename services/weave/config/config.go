// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the weave server configuration from YAML.
//
// The default file is ~/.aleutian/weave.yaml. Missing keys keep their
// DefaultConfig values, so a file only needs the settings it changes:
//
//	store:
//	  backend: sqlite
//	palette:
//	  mode: fixed
//	  colors: ["#e6194b", "#3cb44b", "#4363d8"]
//
// Watch reloads the file on change for settings that can be applied to a
// running server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianWeave/pkg/logging"
	"github.com/AleutianAI/AleutianWeave/services/weave/layout"
	"github.com/AleutianAI/AleutianWeave/services/weave/palette"
	"github.com/AleutianAI/AleutianWeave/services/weave/telemetry"
	"github.com/AleutianAI/AleutianWeave/services/weave/triplestore"
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrConfigExists is returned by WriteDefault when the file exists.
	ErrConfigExists = errors.New("config file already exists")
)

var validate = validator.New()

// Config is the full weave configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Store     StoreConfig      `yaml:"store"`
	Layout    LayoutConfig     `yaml:"layout"`
	Palette   palette.Config   `yaml:"palette"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:8088".
	Addr string `yaml:"addr" validate:"required,hostname_port"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// QueueSize is how many mutations may wait for the engine worker.
	QueueSize int `yaml:"queue_size" validate:"gte=1"`
}

// StoreConfig selects and configures the triplet store backend.
type StoreConfig struct {
	Backend    string        `yaml:"backend" validate:"oneof=badger sqlite"`
	Dir        string        `yaml:"dir" validate:"required_unless=InMemory true"`
	InMemory   bool          `yaml:"in_memory"`
	SyncWrites bool          `yaml:"sync_writes"`
	GCInterval time.Duration `yaml:"gc_interval" validate:"gte=0"`
}

// LayoutConfig configures the layout adapter and its built-in solver.
type LayoutConfig struct {
	Passes       layout.Passes  `yaml:"passes"`
	MaxTicks     int            `yaml:"max_ticks" validate:"gte=1"`
	Convergence  float64        `yaml:"convergence" validate:"gt=0"`
	TickInterval time.Duration  `yaml:"tick_interval" validate:"gte=0"`
	FrameRate    float64        `yaml:"frame_rate" validate:"gte=0"`
	Solver       layout.Options `yaml:"solver"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	lc := layout.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8088",
			ShutdownTimeout: 10 * time.Second,
			QueueSize:       64,
		},
		Store: StoreConfig{
			Backend:    triplestore.BackendBadger,
			Dir:        "~/.aleutian/weave/data",
			SyncWrites: true,
			GCInterval: 10 * time.Minute,
		},
		Layout: LayoutConfig{
			Passes:       lc.Passes,
			MaxTicks:     lc.MaxTicks,
			Convergence:  lc.Convergence,
			TickInterval: lc.TickInterval,
			FrameRate:    lc.FrameRate,
			Solver:       layout.DefaultOptions(),
		},
		Palette:   palette.DefaultConfig(),
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// DefaultPath returns ~/.aleutian/weave.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".aleutian", "weave.yaml"), nil
}

// Load reads path over DefaultConfig and validates the result.
//
// Description:
//
//	An empty path means DefaultPath. A "~" prefix in path, Store.Dir, and
//	Logging.Dir is expanded to the home directory.
//
// Outputs:
//
//	Config - The loaded configuration.
//	error - Wraps fs.ErrNotExist when the file is missing, a YAML error,
//	    or ErrInvalidConfig.
func Load(path string) (Config, error) {
	path, err := resolve(path)
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.expand(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields DefaultConfig.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = DefaultConfig()
		if err := cfg.expand(); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	return cfg, err
}

// WriteDefault writes DefaultConfig to path, creating parent directories.
// An existing file is only replaced when overwrite is set.
func WriteDefault(path string, overwrite bool) (string, error) {
	path, err := resolve(path)
	if err != nil {
		return "", err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o644)
}

// Validate checks every section's constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// StoreOptions maps the store section onto triplestore.Open options.
func (c *Config) StoreOptions() triplestore.Options {
	return triplestore.Options{
		Backend:    c.Store.Backend,
		Dir:        c.Store.Dir,
		InMemory:   c.Store.InMemory,
		SyncWrites: c.Store.SyncWrites,
		GCInterval: c.Store.GCInterval,
		Instrument: true,
	}
}

// AdapterConfig maps the layout section onto layout.Config.
func (c *Config) AdapterConfig() layout.Config {
	return layout.Config{
		Passes:       c.Layout.Passes,
		MaxTicks:     c.Layout.MaxTicks,
		Convergence:  c.Layout.Convergence,
		TickInterval: c.Layout.TickInterval,
		FrameRate:    c.Layout.FrameRate,
	}
}

// LoggerConfig maps the logging section onto logging.Config.
func (c *Config) LoggerConfig(service string) logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.Config{
		Level:   level,
		LogDir:  c.Logging.Dir,
		Service: service,
		JSON:    c.Logging.JSON,
	}
}

func (c *Config) expand() error {
	for _, p := range []*string{&c.Store.Dir, &c.Logging.Dir} {
		expanded, err := expandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

func resolve(path string) (string, error) {
	if path == "" {
		return DefaultPath()
	}
	return expandHome(path)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

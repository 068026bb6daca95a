// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianWeave/pkg/logging"
	"github.com/AleutianAI/AleutianWeave/services/weave/palette"
)

func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "badger", cfg.Store.Backend)
	assert.Equal(t, palette.ModeHash, cfg.Palette.Mode)
}

func TestDefaultPath(t *testing.T) {
	home := withHome(t)
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".aleutian", "weave.yaml"), path)
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	home := withHome(t)

	path, err := WriteDefault("", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".aleutian", "weave.yaml"), path)

	got, err := Load("")
	require.NoError(t, err)

	want := DefaultConfig()
	want.Store.Dir = filepath.Join(home, ".aleutian", "weave", "data")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteDefault_Exists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weave.yaml")

	_, err := WriteDefault(path, false)
	require.NoError(t, err)

	_, err = WriteDefault(path, false)
	assert.ErrorIs(t, err, ErrConfigExists)

	_, err = WriteDefault(path, true)
	assert.NoError(t, err)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weave.yaml")
	writeFile(t, path, `
store:
  backend: sqlite
  dir: /var/lib/weave
palette:
  mode: fixed
  colors: ["#ff0000", "#00ff00"]
layout:
  tick_interval: 5ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/var/lib/weave", cfg.Store.Dir)
	assert.Equal(t, palette.ModeFixed, cfg.Palette.Mode)
	assert.Equal(t, []string{"#ff0000", "#00ff00"}, cfg.Palette.Colors)
	assert.Equal(t, 5*time.Millisecond, cfg.Layout.TickInterval)

	def := DefaultConfig()
	assert.Equal(t, def.Server, cfg.Server)
	assert.Equal(t, def.Layout.MaxTicks, cfg.Layout.MaxTicks)
	assert.Equal(t, def.Layout.Solver, cfg.Layout.Solver)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown backend", "store: {backend: mongo}", "Backend"},
		{"unknown palette mode", "palette: {mode: rainbow}", "Mode"},
		{"bad address", "server: {addr: nope}", "Addr"},
		{"zero max ticks", "layout: {max_ticks: 0}", "MaxTicks"},
		{"dir required on disk", "store: {dir: ''}", "Dir"},
		{"unknown log level", "logging: {level: loud}", "Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "weave.yaml")
			writeFile(t, path, tt.body)

			_, err := Load(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_InMemoryNeedsNoDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weave.yaml")
	writeFile(t, path, "store: {in_memory: true, dir: ''}")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Store.InMemory)
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weave.yaml")
	writeFile(t, path, "store: [not, a, map")

	_, err := Load(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	_, err := Load(path)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	home := withHome(t)
	cfg, err := LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".aleutian", "weave", "data"), cfg.Store.Dir)
}

func TestConfig_Mappings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.JSON = true
	cfg.Store.Backend = "sqlite"

	lc := cfg.LoggerConfig("weave")
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.True(t, lc.JSON)
	assert.Equal(t, "weave", lc.Service)

	so := cfg.StoreOptions()
	assert.Equal(t, "sqlite", so.Backend)
	assert.True(t, so.Instrument)

	ac := cfg.AdapterConfig()
	assert.Equal(t, cfg.Layout.MaxTicks, ac.MaxTicks)
	assert.Equal(t, cfg.Layout.Passes, ac.Passes)
	assert.Equal(t, cfg.Layout.FrameRate, ac.FrameRate)
}

func TestWatch_ReloadsValidChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weave.yaml")
	writeFile(t, path, "palette: {mode: hash}")

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan Config, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, path, 10*time.Millisecond, logging.Nop(), func(c Config) {
			reloaded <- c
		})
	}()

	// The watcher starts asynchronously; keep rewriting until it reports.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	invalidUntil := time.Now().Add(300 * time.Millisecond)
	var got Config
wait:
	for {
		select {
		case c := <-reloaded:
			// A reload racing a truncating write can see an empty file,
			// which is valid and yields defaults.
			if c.Palette.Mode == palette.ModeNone {
				got = c
				break wait
			}
		case <-tick.C:
			if time.Now().Before(invalidUntil) {
				writeFile(t, path, "palette: {mode: rainbow}")
			} else {
				writeFile(t, path, "palette: {mode: none}")
			}
		case <-deadline:
			cancel()
			t.Fatal("no reload observed")
		}
	}

	assert.Equal(t, palette.ModeNone, got.Palette.Mode)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "weave.yaml")
	err := Watch(context.Background(), path, 0, logging.Nop(), func(Config) {})
	assert.Error(t, err)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianWeave/pkg/logging"
	"github.com/AleutianAI/AleutianWeave/pkg/ux"
	"github.com/AleutianAI/AleutianWeave/services/weave/config"
	"github.com/AleutianAI/AleutianWeave/services/weave/engine"
	"github.com/AleutianAI/AleutianWeave/services/weave/graph"
	"github.com/AleutianAI/AleutianWeave/services/weave/layout"
	"github.com/AleutianAI/AleutianWeave/services/weave/palette"
	"github.com/AleutianAI/AleutianWeave/services/weave/triplestore"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	storeDir   string
	backend    string
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:           "weave",
		Short:         "Persist and lay out a graph of subject-predicate-object triplets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&o.configPath, "config", "", "config file (default ~/.aleutian/weave.yaml)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&o.storeDir, "store-dir", "", "override store.dir")
	root.PersistentFlags().StringVar(&o.backend, "backend", "", "override store.backend (badger, sqlite)")

	root.AddCommand(
		newServeCmd(o),
		newAddCmd(o),
		newListCmd(o),
		newRemoveCmd(o),
		newConfigCmd(o),
	)
	return root
}

// loadConfig reads the config file (defaults when absent) and applies the
// persistent flag overrides.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.storeDir != "" {
		cfg.Store.Dir = o.storeDir
	}
	if o.backend != "" {
		cfg.Store.Backend = o.backend
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// session is an engine over the configured store for one CLI command.
type session struct {
	engine  *engine.Engine
	store   triplestore.Store
	logger  *logging.Logger
	markers *layout.MarkerRegistry
}

// openSession opens the store, builds an engine without layout, and loads
// the stored graph so colors and node identity match a running server.
func openSession(ctx context.Context, cfg config.Config) (*session, error) {
	lc := cfg.LoggerConfig("weave-cli")
	lc.Quiet = lc.Level > logging.LevelDebug
	logger := logging.New(lc)

	opts := cfg.StoreOptions()
	opts.Logger = logger.Slog()
	opts.Instrument = false
	store, err := triplestore.Open(opts)
	if err != nil {
		logger.Close()
		return nil, err
	}

	pal, err := palette.New(cfg.Palette)
	if err != nil {
		store.Close()
		logger.Close()
		return nil, err
	}

	markers := layout.NewMarkerRegistry()
	eng := engine.New(graph.NewModel(), store,
		engine.WithPalette(pal),
		engine.WithMarkers(markers),
		engine.WithLogger(logger.Slog()))

	s := &session{engine: eng, store: store, logger: logger, markers: markers}
	if err := eng.Load(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	s.engine.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Warn("store close failed", slog.String("error", err.Error()))
	}
	s.logger.Close()
}

// output returns the ux writer for a command's stdout.
func output(cmd *cobra.Command) *ux.Output {
	return ux.New(cmd.OutOrStdout())
}

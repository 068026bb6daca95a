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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianWeave/pkg/logging"
	"github.com/AleutianAI/AleutianWeave/services/weave"
	"github.com/AleutianAI/AleutianWeave/services/weave/config"
	"github.com/AleutianAI/AleutianWeave/services/weave/engine"
	"github.com/AleutianAI/AleutianWeave/services/weave/graph"
	"github.com/AleutianAI/AleutianWeave/services/weave/layout"
	"github.com/AleutianAI/AleutianWeave/services/weave/palette"
	"github.com/AleutianAI/AleutianWeave/services/weave/telemetry"
	"github.com/AleutianAI/AleutianWeave/services/weave/triplestore"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	var (
		addr      string
		ephemeral bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and layout frame stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if ephemeral {
				cfg.Store.InMemory = true
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, o.configPath)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "override server.addr")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "keep the store in memory; nothing survives exit")
	return cmd
}

// serve wires store, engine, layout, and HTTP server and runs until ctx
// ends or the listener fails.
func serve(ctx context.Context, cfg config.Config, configPath string) error {
	logger := logging.New(cfg.LoggerConfig("weave"))
	defer logger.Close()
	log := logger.Slog()

	telCfg := cfg.Telemetry
	if telCfg.ServiceVersion == "" || telCfg.ServiceVersion == "dev" {
		telCfg.ServiceVersion = weave.ServiceVersion
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	metrics, err := telemetry.NewMetrics(otel.Meter("aleutian.weave.http"))
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	storeOpts := cfg.StoreOptions()
	storeOpts.Logger = log
	store, err := triplestore.Open(storeOpts)
	if err != nil {
		return err
	}
	defer store.Close()

	pal, err := palette.New(cfg.Palette)
	if err != nil {
		return fmt.Errorf("palette: %w", err)
	}

	model := graph.NewModel()
	markers := layout.NewMarkerRegistry()
	adapter, err := layout.NewAdapter(model, cfg.AdapterConfig(),
		layout.WithSolver(layout.NewForceSolver(cfg.Layout.Solver)),
		layout.WithLogger(log))
	if err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	defer adapter.Close()

	eng := engine.New(model, store,
		engine.WithLayout(adapter),
		engine.WithMarkers(markers),
		engine.WithPalette(pal),
		engine.WithLogger(log),
		engine.WithQueueSize(cfg.Server.QueueSize))
	defer eng.Close()

	if err := eng.Load(ctx); err != nil {
		return fmt.Errorf("load graph: %w", err)
	}

	handlers := weave.NewHandlers(eng,
		weave.WithFrames(adapter),
		weave.WithMarkers(markers),
		weave.WithMetrics(metrics),
		weave.WithLogger(log))
	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: weave.NewRouter(handlers, weave.RouterConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			Metrics:        metrics,
			MetricsHandler: telemetry.MetricsHandler(),
			Logger:         log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("weave listening",
			slog.String("addr", cfg.Server.Addr),
			slog.String("backend", cfg.Store.Backend),
			slog.Int("nodes", model.Stats().Nodes))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("weave shutting down")
		return srv.Shutdown(sctx)
	})
	if path, ok := watchablePath(configPath); ok {
		g.Go(func() error {
			return config.Watch(gctx, path, 0, log, func(next config.Config) {
				p, err := palette.New(next.Palette)
				if err != nil {
					log.Warn("palette change ignored", slog.String("error", err.Error()))
					return
				}
				eng.SetPalette(p)
				log.Info("palette updated for new predicate types", slog.String("mode", next.Palette.Mode))
			})
		})
	}
	return g.Wait()
}

// watchablePath resolves the config path and reports whether the file
// exists. Defaults in effect without a file are not watched.
func watchablePath(path string) (string, bool) {
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return "", false
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

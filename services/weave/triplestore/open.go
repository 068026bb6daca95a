// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package triplestore

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/AleutianAI/AleutianWeave/services/weave/storage/badger"
)

// Backend names accepted by Open.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Options selects and configures a backend.
type Options struct {
	// Backend is BackendBadger or BackendSQLite.
	Backend string

	// Dir is the data directory. Badger uses it directly; SQLite keeps
	// "triplets.db" inside it.
	Dir string

	// InMemory keeps the store in RAM.
	InMemory bool

	// SyncWrites fsyncs every badger commit.
	SyncWrites bool

	// GCInterval sets badger value log GC frequency. Zero disables it.
	GCInterval time.Duration

	// Instrument wraps the store with OpenTelemetry spans and metrics.
	Instrument bool

	Logger *slog.Logger
}

// Open builds the Store described by opts.
//
// Outputs:
//
//	Store - The opened store. Caller must call Close().
//	error - ErrUnknownBackend, or a wrapped backend open error.
func Open(opts Options) (Store, error) {
	var (
		store Store
		err   error
	)

	switch opts.Backend {
	case BackendBadger, "":
		cfg := badger.DefaultConfig()
		cfg.Path = opts.Dir
		cfg.InMemory = opts.InMemory
		cfg.SyncWrites = opts.SyncWrites && !opts.InMemory
		cfg.GCInterval = opts.GCInterval
		cfg.Logger = opts.Logger

		var db *badger.DB
		db, err = badger.Open(cfg)
		if err == nil {
			store = NewBadgerStore(db, opts.Logger)
		}
	case BackendSQLite:
		path := ":memory:"
		if !opts.InMemory {
			path = filepath.Join(opts.Dir, "triplets.db")
		}
		store, err = OpenSQLite(path, opts.Logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", opts.Backend, err)
	}

	if opts.Instrument {
		backend := opts.Backend
		if backend == "" {
			backend = BackendBadger
		}
		store = Instrument(store, backend)
	}
	return store, nil
}

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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianWeave/services/weave/storage/badger"
)

const keySep = "\x00"

// colorPrefix starts the key "color\x00<predicate>" holding a predicate's
// bound color.
const colorPrefix = "color" + keySep

func colorKey(predicate string) []byte {
	return []byte(colorPrefix + predicate)
}

// field positions inside an index order.
const (
	fieldSubject = iota
	fieldPredicate
	fieldObject
)

// index is one permutation of the triplet fields. Every triplet is written
// under all four indexes so each pattern shape has an index whose leading
// fields are exactly the bound ones.
type index struct {
	name  string
	order [3]int
}

var (
	indexSPO = index{"spo", [3]int{fieldSubject, fieldPredicate, fieldObject}}
	indexSOP = index{"sop", [3]int{fieldSubject, fieldObject, fieldPredicate}}
	indexPOS = index{"pos", [3]int{fieldPredicate, fieldObject, fieldSubject}}
	indexOSP = index{"osp", [3]int{fieldObject, fieldSubject, fieldPredicate}}

	allIndexes = []index{indexSPO, indexSOP, indexPOS, indexOSP}
)

// key encodes t as "<index>\x00<a>\x00<b>\x00<c>\x00".
func (ix index) key(t Triplet) []byte {
	fields := [3]string{t.Subject, t.Predicate, t.Object}
	var b strings.Builder
	b.WriteString(ix.name)
	b.WriteString(keySep)
	for _, f := range ix.order {
		b.WriteString(fields[f])
		b.WriteString(keySep)
	}
	return []byte(b.String())
}

// prefix encodes the leading bound fields of p in this index's order,
// stopping at the first wildcard.
func (ix index) prefix(p Pattern) []byte {
	fields := [3]string{p.Subject, p.Predicate, p.Object}
	var b strings.Builder
	b.WriteString(ix.name)
	b.WriteString(keySep)
	for _, f := range ix.order {
		if fields[f] == "" {
			break
		}
		b.WriteString(fields[f])
		b.WriteString(keySep)
	}
	return []byte(b.String())
}

// indexFor picks the index whose leading fields are the bound fields of p.
func indexFor(p Pattern) index {
	s, pr, o := p.Subject != "", p.Predicate != "", p.Object != ""
	switch {
	case s && o && !pr:
		return indexSOP
	case pr && !s:
		return indexPOS
	case o && !s && !pr:
		return indexOSP
	default:
		return indexSPO
	}
}

// BadgerStore is a Store backed by BadgerDB.
//
// Description:
//
//	Each triplet is written under four keys (spo, sop, pos, osp) in one
//	transaction. The value of every key is the JSON-encoded triplet, so a
//	scan never has to parse keys back into fields.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
	closed atomic.Bool
}

// NewBadgerStore wraps an open database. The store takes ownership of db and
// closes it on Close.
func NewBadgerStore(db *badger.DB, logger *slog.Logger) *BadgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, logger: logger.With(slog.String("store", "badger"))}
}

// Put writes t under every index.
func (s *BadgerStore) Put(ctx context.Context, t Triplet) error {
	return s.put(ctx, t, "")
}

// PutColored writes t and, in the same transaction, the color key for
// t.Predicate unless one is already stored.
func (s *BadgerStore) PutColored(ctx context.Context, t Triplet, color string) error {
	if err := validateColor(color); err != nil {
		return err
	}
	return s.put(ctx, t, color)
}

func (s *BadgerStore) put(ctx context.Context, t Triplet, color string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := t.Validate(); err != nil {
		return err
	}
	value, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t, err)
	}

	err = s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		for _, ix := range allIndexes {
			if err := txn.Set(ix.key(t), value); err != nil {
				return fmt.Errorf("set %s key: %w", ix.name, err)
			}
		}
		if color == "" {
			return nil
		}
		_, err := txn.Get(colorKey(t.Predicate))
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, dgbadger.ErrKeyNotFound):
			return fmt.Errorf("read color key: %w", err)
		}
		if err := txn.Set(colorKey(t.Predicate), []byte(color)); err != nil {
			return fmt.Errorf("set color key: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", t, err)
	}
	s.logger.Debug("triplet stored", slog.String("triplet", t.String()))
	return nil
}

// Colors returns every stored predicate color.
func (s *BadgerStore) Colors(ctx context.Context) (map[string]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	out := make(map[string]string)
	err := s.db.ScanPrefix(ctx, []byte(colorPrefix), func(key, value []byte) error {
		out[strings.TrimPrefix(string(key), colorPrefix)] = string(value)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("colors scan: %w", err)
	}
	return out, nil
}

// Del removes t from every index.
func (s *BadgerStore) Del(ctx context.Context, t Triplet) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := t.Validate(); err != nil {
		return err
	}

	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		for _, ix := range allIndexes {
			if err := txn.Delete(ix.key(t)); err != nil {
				return fmt.Errorf("delete %s key: %w", ix.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("del %s: %w", t, err)
	}
	s.logger.Debug("triplet deleted", slog.String("triplet", t.String()))
	return nil
}

// Get scans the index matching p's bound fields.
//
// Results come back in key order of the chosen index.
func (s *BadgerStore) Get(ctx context.Context, p Pattern) ([]Triplet, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	ix := indexFor(p)
	var out []Triplet
	err := s.db.ScanPrefix(ctx, ix.prefix(p), func(key, value []byte) error {
		var t Triplet
		if err := json.Unmarshal(value, &t); err != nil {
			return fmt.Errorf("%w: key %q: %v", ErrCorruptRecord, key, err)
		}
		if p.Matches(t) {
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get %s scan: %w", ix.name, err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package triplestore persists subject-predicate-object triplets in an
// embedded store and answers exact-match pattern queries over them.
//
// Two backends implement Store:
//
//   - BadgerStore keeps a hexastore-style set of index keys in BadgerDB so
//     any combination of bound fields is answered by a single prefix scan.
//   - SQLiteStore keeps one row per triplet in a SQLite table.
//
// Both have set semantics: putting the same triplet twice stores it once,
// and deleting a triplet that is not stored is not an error. Next to the
// triplets each backend records the first color bound to every predicate
// type, so a reopened graph draws predicates the way it did before.
//
// # Thread Safety
//
// All Store implementations are safe for concurrent use.
package triplestore

import (
	"context"
	"fmt"
	"strings"
)

// Triplet is the persisted unit of the graph: subject and object are node
// hashes, predicate is the predicate type.
type Triplet struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// String renders the triplet as "(subject predicate object)".
func (t Triplet) String() string {
	return fmt.Sprintf("(%s %s %s)", t.Subject, t.Predicate, t.Object)
}

// Validate checks that every field is present and free of NUL bytes.
//
// Outputs:
//
//	error - Wraps ErrInvalidTriplet naming the offending field, or nil.
func (t Triplet) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"subject", t.Subject},
		{"predicate", t.Predicate},
		{"object", t.Object},
	} {
		if f.value == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidTriplet, f.name)
		}
		if strings.IndexByte(f.value, 0) >= 0 {
			return fmt.Errorf("%w: %s contains a NUL byte", ErrInvalidTriplet, f.name)
		}
	}
	return nil
}

// Pattern selects triplets by exact match. An empty field is a wildcard, so
// the zero Pattern matches every stored triplet.
type Pattern struct {
	Subject   string `json:"subject,omitempty" form:"subject"`
	Predicate string `json:"predicate,omitempty" form:"predicate"`
	Object    string `json:"object,omitempty" form:"object"`
}

// Matches reports whether t satisfies every bound field of p.
func (p Pattern) Matches(t Triplet) bool {
	return (p.Subject == "" || p.Subject == t.Subject) &&
		(p.Predicate == "" || p.Predicate == t.Predicate) &&
		(p.Object == "" || p.Object == t.Object)
}

// Validate rejects patterns containing NUL bytes. Empty fields are allowed.
func (p Pattern) Validate() error {
	if strings.IndexByte(p.Subject+p.Predicate+p.Object, 0) >= 0 {
		return fmt.Errorf("%w: pattern contains a NUL byte", ErrInvalidPattern)
	}
	return nil
}

func validateColor(color string) error {
	if color == "" {
		return fmt.Errorf("%w: color is empty", ErrInvalidColor)
	}
	return nil
}

// Store is the triplet store contract used by the synchronization engine.
type Store interface {
	// Put stores t. Storing an existing triplet is a no-op.
	Put(ctx context.Context, t Triplet) error

	// PutColored stores t like Put and records color as the color of
	// t.Predicate if no color is recorded for it yet. Both writes commit
	// together.
	PutColored(ctx context.Context, t Triplet, color string) error

	// Colors returns the recorded color of every predicate type.
	Colors(ctx context.Context) (map[string]string, error)

	// Del removes t. Removing an absent triplet is a no-op.
	Del(ctx context.Context, t Triplet) error

	// Get returns every stored triplet matching p. Order is backend-defined
	// but stable for a given store state.
	Get(ctx context.Context, p Pattern) ([]Triplet, error)

	// Close releases the backend. Calls after Close return ErrClosed.
	Close() error
}

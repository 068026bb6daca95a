// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianWeave/services/weave/graph"
)

// Validation errors. Every one of them is returned wrapped together with
// ErrValidation, so errors.Is(err, ErrValidation) classifies the family.
var (
	// ErrValidation marks input rejected before any state change.
	ErrValidation = errors.New("validation failed")

	// ErrNilTriplet indicates no subject, predicate, or object was given.
	ErrNilTriplet = errors.New("triplet is undefined")

	// ErrIncompleteTriplet indicates one of subject, predicate, object is nil.
	ErrIncompleteTriplet = errors.New("triplet is missing subject, predicate, or object")

	// ErrMissingHash indicates a node without a hash.
	ErrMissingHash = errors.New("node hash is missing")

	// ErrMissingPredicateType indicates a predicate without a type.
	ErrMissingPredicateType = errors.New("predicate type is missing")

	// ErrInvalidField indicates a field the triplet store cannot encode.
	ErrInvalidField = errors.New("field contains a NUL byte")

	// ErrMissingColor indicates a new predicate type with no color and no
	// palette to supply one.
	ErrMissingColor = errors.New("new predicate type requires a color")
)

// Store errors. These abort the current operation and are never retried.
var (
	// ErrStoreWrite indicates the triplet store rejected a put.
	ErrStoreWrite = errors.New("triplet store write failed")

	// ErrStoreRead indicates the triplet store could not be queried.
	ErrStoreRead = errors.New("triplet store read failed")
)

// Not-found conditions. These are informational: the engine reports them
// but the graph is left consistent.
var (
	// ErrNothingToRemove indicates RemoveNode found no triplets for a hash.
	ErrNothingToRemove = errors.New("there was nothing to remove")

	// ErrNodeNotFound indicates RemoveNode deleted triplets for a hash the
	// model did not hold. It is the same value as graph.ErrNodeNotFound.
	ErrNodeNotFound = graph.ErrNodeNotFound
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("engine is closed")

func invalid(kind error, detail string) error {
	if detail == "" {
		return fmt.Errorf("%w: %w", ErrValidation, kind)
	}
	return fmt.Errorf("%w: %w: %s", ErrValidation, kind, detail)
}

// IsValidation reports whether err rejected input without side effects.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsStoreFailure reports whether err came from the triplet store.
func IsStoreFailure(err error) bool {
	return errors.Is(err, ErrStoreWrite) || errors.Is(err, ErrStoreRead)
}

// IsNotFound reports whether err is one of the informational not-found
// conditions of RemoveNode.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNothingToRemove) || errors.Is(err, ErrNodeNotFound)
}

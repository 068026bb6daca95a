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

import "errors"

// Sentinel errors for triplet store operations.
var (
	// ErrInvalidTriplet indicates a triplet with an empty or malformed field.
	ErrInvalidTriplet = errors.New("invalid triplet")

	// ErrInvalidColor indicates an empty predicate color.
	ErrInvalidColor = errors.New("invalid predicate color")

	// ErrInvalidPattern indicates a pattern that cannot be encoded as a query.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrClosed indicates the store was used after Close.
	ErrClosed = errors.New("triplet store is closed")

	// ErrUnknownBackend indicates an unsupported Options.Backend value.
	ErrUnknownBackend = errors.New("unknown triplet store backend")

	// ErrCorruptRecord indicates a stored value that could not be decoded.
	ErrCorruptRecord = errors.New("corrupt triplet record")
)

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package weave

import (
	"context"
	"errors"
	"net/http"

	"github.com/AleutianAI/AleutianWeave/services/weave/engine"
	"github.com/AleutianAI/AleutianWeave/services/weave/triplestore"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeInvalidTriplet  = "INVALID_TRIPLET"
	CodeInvalidNode     = "INVALID_NODE"
	CodeInvalidPattern  = "INVALID_PATTERN"
	CodeNothingToRemove = "NOTHING_TO_REMOVE"
	CodeStoreFailure    = "STORE_FAILURE"
	CodeUnavailable     = "UNAVAILABLE"
	CodeTimeout         = "TIMEOUT"
	CodeInternal        = "INTERNAL"
)

// classify maps an engine error to an HTTP status and error code.
// invalidCode is the code used for validation failures of this endpoint.
func classify(err error, invalidCode string) (int, string) {
	switch {
	case engine.IsValidation(err), errors.Is(err, triplestore.ErrInvalidPattern):
		return http.StatusBadRequest, invalidCode
	case errors.Is(err, engine.ErrNothingToRemove):
		return http.StatusNotFound, CodeNothingToRemove
	case engine.IsStoreFailure(err):
		return http.StatusInternalServerError, CodeStoreFailure
	case errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable, CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

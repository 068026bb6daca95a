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
	"strings"

	"github.com/go-playground/validator/v10"
)

// requestValidate is shared by every request type in this package.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("nonul", validateNoNUL)
}

// validateNoNUL rejects strings containing a NUL byte, which the triplet
// store uses as its key separator.
func validateNoNUL(fl validator.FieldLevel) bool {
	return strings.IndexByte(fl.Field().String(), 0) < 0
}

// TripletRequest is the flat form a UI submits: two node hashes, a
// predicate type, and an optional color for a new predicate type.
type TripletRequest struct {
	Subject   string `json:"subject" validate:"required,max=512,nonul"`
	Predicate string `json:"predicate" validate:"required,max=256,nonul"`
	Object    string `json:"object" validate:"required,max=512,nonul"`
	Color     string `json:"color,omitempty" validate:"omitempty,max=64"`
}

// Validate checks the request tags and maps the first failure onto the
// engine's validation errors.
//
// Outputs:
//
//	error - Wraps ErrValidation, or nil.
func (r *TripletRequest) Validate() error {
	err := requestValidate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalid(ErrIncompleteTriplet, err.Error())
	}

	fe := fieldErrs[0]
	detail := fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag())
	switch {
	case fe.Tag() == "nonul":
		return invalid(ErrInvalidField, detail)
	case fe.Field() == "Predicate" && fe.Tag() == "required":
		return invalid(ErrMissingPredicateType, detail)
	case fe.Tag() == "required":
		return invalid(ErrMissingHash, detail)
	default:
		return invalid(ErrIncompleteTriplet, detail)
	}
}

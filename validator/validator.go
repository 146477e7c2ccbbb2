// Package validator wraps github.com/go-playground/validator/v10 to check
// struct-tag-level constraints (required fields, string lengths) on decoded
// request bodies, before handlers apply C3A's own domain rules (identifier
// policy, password policy, per-factor checks).
package validator

import (
	"github.com/go-playground/validator/v10"
)

// Validator is a wrapper around the go-playground/validator package.
type Validator struct {
	validator *validator.Validate
}

// New creates a new Validator instance.
func New() *Validator {
	return &Validator{validator: validator.New()}
}

// Validate validates a struct using the validator package.
func (v *Validator) Validate(s interface{}) error {
	return v.validator.Struct(s)
}

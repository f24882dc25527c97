// Package common defines sentinel errors shared by the consent backend
// layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// repository specific errors
	ErrorNotFound = errors.New("not found")

	// service specific errors
	ErrorInternal   = errors.New("internal error")
	ErrorValidation = errors.New("validation error")
	ErrorConflict   = errors.New("conflict")
)

package model

import "errors"

var (
	// ErrValidation flags malformed or out-of-range input. It is raised at
	// construction time, before any simulation iteration runs.
	ErrValidation = errors.New("validation failed")
)

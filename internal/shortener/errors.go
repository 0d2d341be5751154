package shortener

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrCodeConflict        = errors.New("shortcode already exists")
	ErrAllocationExhausted = errors.New("shortcode allocation exhausted")
	ErrNotFound            = errors.New("shortcode does not exist")
	ErrExpired             = errors.New("shortcode has expired")
)

// IsConflict reports whether err is a uniqueness conflict on a code.
func IsConflict(err error) bool { return errors.Is(err, ErrCodeConflict) }

// IsNotFound reports whether err means the code was never allocated.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

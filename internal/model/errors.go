package model

import (
	"errors"
	"fmt"
)

// Auth and validation errors shared by every layer. Transport failures are
// reported as *hub.TransportError.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenExpired = fmt.Errorf("access token has expired: %w", ErrUnauthorized)

	ErrInvalidInput = errors.New("invalid input")
	ErrMissingToken = fmt.Errorf("missing access token: %w", ErrInvalidInput)
	ErrEmptyMessage = fmt.Errorf("message text is empty: %w", ErrInvalidInput)
)

// IsAuth reports whether err means the bearer token must be replaced.
func IsAuth(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsValidation reports whether err was raised before any network call.
func IsValidation(err error) bool { return errors.Is(err, ErrInvalidInput) }

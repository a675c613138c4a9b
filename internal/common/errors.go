// Package common defines shared constants and sentinel errors used across
// skydrive layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal        = errors.New("internal error")
	ErrorInvalidArgument = errors.New("invalid argument")

	// Access-control errors.
	ErrorForbidden    = errors.New("forbidden")
	ErrorUnauthorized = errors.New("unauthorized")

	// ErrorPasswordRequired signals that a share link is password-protected
	// and no password was supplied. Distinct from ErrorUnauthorized so the
	// caller can prompt instead of rejecting.
	ErrorPasswordRequired = errors.New("password required")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Package common contains shared constants and sentinel errors used across
// quietlog components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Entry Service boundary errors.
	ErrValidation  = errors.New("validation error")
	ErrEntryLocked = errors.New("entry is locked")

	// ErrAuthenticationFailed means the ciphertext failed AEAD verification:
	// tampered data or the wrong key. It must propagate to the caller and is
	// never converted to empty content.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// Sync/replica errors.
	ErrVersionConflict = errors.New("version conflict")

	// Auth errors.
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidToken        = errors.New("invalid token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

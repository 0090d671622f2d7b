package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrSessionExpired      = errors.New("session expired")
	ErrProviderUnavailable = errors.New("provider credentials not configured")
	ErrProviderFailure     = errors.New("provider failure")
)

package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnsupportedService = errors.New("unsupported service")
	ErrProviderFailure    = errors.New("provider failure")
	ErrNotConfigured      = errors.New("provider not configured")
	ErrAlreadyExists      = errors.New("already exists")
)

package client

import "errors"

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("snapshot not found")
	ErrUserExists   = errors.New("user already exists")

	// ErrLocalDataNotAvailable means no credentials are cached for offline login.
	ErrLocalDataNotAvailable = errors.New("no offline data, log in online first")
)

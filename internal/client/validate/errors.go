// Package validate checks untrusted backup payloads (cloud snapshots and
// imported files) before they may replace local data.
//
// Validation is schema-driven: each record kind has a list of known string
// fields with length caps, every other field is carried through untouched.
// Failures are reported as *Error, which matches ErrInvalidBackup.
package validate

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBackup = errors.New("invalid backup")
	// ErrInvalidRecord is returned for a single record checked before save.
	ErrInvalidRecord = errors.New("invalid record")
)

// Error pinpoints the first offending value, e.g. Path "clients.3.email".
type Error struct {
	Path   string
	Reason string

	kind error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Unwrap(), e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Unwrap(), e.Path, e.Reason)
}

func (e *Error) Unwrap() error {
	if e.kind != nil {
		return e.kind
	}
	return ErrInvalidBackup
}

func fail(path, format string, args ...any) *Error {
	return &Error{Path: path, Reason: fmt.Sprintf(format, args...)}
}

package errors

import (
	"errors"
)

// Sentinels shared across the gateway packages. Wrap them with
// github.com/pkg/errors to add the calling method.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidClient = errors.New("invalid client")

	// Upstream session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrRefreshFailed   = errors.New("upstream refresh failed")

	// Provider errors
	ErrUnknownProvider = errors.New("unknown identity provider")
)

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}


package oauthmodel

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth error codes returned in the "error" field of token and redirect responses.
const (
	ErrorInvalidRequest        = "invalid_request"
	ErrorInvalidGrant          = "invalid_grant"
	ErrorInvalidTarget         = "invalid_target"
	ErrorInvalidClient         = "invalid_client"
	ErrorInvalidToken          = "invalid_token"
	ErrorInvalidScope          = "invalid_scope"
	ErrorAccessDenied          = "access_denied"
	ErrorInsufficientScope     = "insufficient_scope"
	ErrorUnsupportedGrantType  = "unsupported_grant_type"
	ErrorInvalidRedirectURI    = "invalid_redirect_uri"
	ErrorInvalidClientMetadata = "invalid_client_metadata"
	ErrorServerError           = "server_error"
)

var (
	ErrInvalidCodeChallenge       = errors.New("invalid code challenge")
	ErrInvalidCodeChallengeMethod = errors.New("invalid code challenge method")
	ErrInvalidRedirectUri         = errors.New("invalid or no redirect uri")
	ErrInvalidState               = errors.New("invalid state")
)

// Error is an OAuth protocol error carrying the wire code, a human-readable
// description and the HTTP status the token endpoint answers with.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Status      int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// NewError creates an Error answering with 400 Bad Request.
func NewError(code, format string, args ...any) *Error {
	return &Error{
		Code:        code,
		Description: fmt.Sprintf(format, args...),
		Status:      http.StatusBadRequest,
	}
}

func InvalidRequest(format string, args ...any) *Error {
	return NewError(ErrorInvalidRequest, format, args...)
}

func InvalidGrant(format string, args ...any) *Error {
	return NewError(ErrorInvalidGrant, format, args...)
}

func InvalidTarget(format string, args ...any) *Error {
	return NewError(ErrorInvalidTarget, format, args...)
}

func InvalidScope(format string, args ...any) *Error {
	return NewError(ErrorInvalidScope, format, args...)
}

func UnsupportedGrantType(grantType GrantType) *Error {
	return NewError(ErrorUnsupportedGrantType, "grant type %q is not supported", grantType)
}

// AsError extracts an *Error from err, falling back to server_error.
func AsError(err error) *Error {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return &Error{
		Code:        ErrorServerError,
		Description: "internal server error",
		Status:      http.StatusInternalServerError,
	}
}

// IsCode reports whether err is an OAuth Error with the given code.
func IsCode(err error, code string) bool {
	var oauthErr *Error
	return errors.As(err, &oauthErr) && oauthErr.Code == code
}

package auth

import "errors"

// Service-level errors. Handlers map these to HTTP status codes with errors.Is.
var (
	// ErrEmailTaken is returned when registering with an email that exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password, so
	// a caller cannot probe which emails are registered.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned for a refresh token whose hash is unknown.
	ErrInvalidToken = errors.New("invalid refresh token")
	// ErrTokenRevoked is returned when a refresh token was already rotated or
	// logged out. Seeing this for a token the client believes is live is a
	// replay signal.
	ErrTokenRevoked = errors.New("refresh token revoked")
	// ErrTokenExpired is returned for a refresh token past its expiry.
	ErrTokenExpired = errors.New("refresh token expired")
	// ErrValidation is returned when a required request field is missing.
	ErrValidation = errors.New("missing required field")
)

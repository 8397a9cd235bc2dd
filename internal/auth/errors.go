package auth

import "errors"

var (
	// Codec failures. The auth gate never reports these to clients.
	ErrMalformed        = errors.New("auth: malformed token")
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	ErrExpired          = errors.New("auth: token expired")

	ErrMissingSecret = errors.New("auth: signing secret is required")
	ErrInvalidTTL    = errors.New("auth: token ttl must be positive")

	// Gate outcomes.
	ErrMissingToken    = errors.New("auth: missing bearer token")
	ErrUnauthorized    = errors.New("auth: not authorized")
	ErrForbidden       = errors.New("auth: forbidden")
	ErrMissingIdentity = errors.New("auth: no identity in request context")
)

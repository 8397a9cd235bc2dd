package ratelimit

import "errors"

var (
	ErrStoreUnavailable = errors.New("ratelimit: store unavailable")
	ErrKeyRequired      = errors.New("ratelimit: client key is required")
	ErrStoreRequired    = errors.New("ratelimit: store is required")
	ErrInvalidWindow    = errors.New("ratelimit: window must be positive")
	ErrInvalidMax       = errors.New("ratelimit: max requests must be positive")
	ErrInvalidPolicy    = errors.New("ratelimit: fail policy must be open or closed")
)

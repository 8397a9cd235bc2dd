package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload issued at login.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 access tokens. The secret is fixed at
// construction and never mutated, so a Codec is safe for concurrent use.
type Codec struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithLeeway tolerates clock skew when checking exp.
func WithLeeway(d time.Duration) CodecOption {
	return func(c *Codec) {
		if d > 0 {
			c.leeway = d
		}
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec builds a Codec for the given signing secret.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	c := &Codec{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode signs a token for id that expires ttl from now. It returns the
// token together with its absolute expiry.
func (c *Codec) Encode(id Identity, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, ErrInvalidTTL
	}
	if id.SubjectID == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", ErrMalformed)
	}
	if _, ok := ParseRole(string(id.Role)); !ok {
		return "", time.Time{}, fmt.Errorf("%w: unknown role %q", ErrMalformed, id.Role)
	}

	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.SubjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Decode verifies raw and returns the identity it carries. The signature is
// checked before any temporal claim, so a token signed with another secret
// always fails with ErrInvalidSignature.
func (c *Codec) Decode(raw string) (Identity, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	)
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return Identity{}, classify(err)
	}

	role, ok := ParseRole(string(claims.Role))
	if !ok || claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: incomplete claims", ErrMalformed)
	}
	return Identity{SubjectID: claims.Subject, Role: role}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

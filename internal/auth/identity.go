// Package auth holds the request gate primitives: the signed token codec,
// bearer extraction, identity propagation through context.Context and the
// role check run after authentication.
package auth

import (
	"context"
	"strings"
)

// Role is the authorization tier carried inside an access token.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleUser, RoleGuest:
		return r, true
	}
	return "", false
}

func (r Role) String() string { return string(r) }

// Identity is the authenticated subject of a single request. It only ever
// comes out of Codec.Decode.
type Identity struct {
	SubjectID string `json:"subject_id"`
	Role      Role   `json:"role"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by the auth gate, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

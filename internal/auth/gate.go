package auth

import (
	"fmt"
	"strings"
)

const bearerScheme = "bearer"

// ExtractBearer pulls the token out of an Authorization header value of the
// form "Bearer <token>". The scheme is matched case-insensitively.
func ExtractBearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Authenticate runs the auth gate over a raw Authorization header. It fails
// with ErrMissingToken or ErrUnauthorized; the codec error that caused an
// ErrUnauthorized is wrapped for server-side logging only.
func Authenticate(codec *Codec, header string) (Identity, error) {
	raw, err := ExtractBearer(header)
	if err != nil {
		return Identity{}, err
	}
	id, err := codec.Decode(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return id, nil
}

// RoleSet is an explicit allow-list of roles for a route.
type RoleSet map[Role]struct{}

// Roles builds a RoleSet.
func Roles(roles ...Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// Has reports whether r is in the set.
func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// Authorize is the role gate decision: nil when id's role is allowed,
// ErrForbidden otherwise.
func Authorize(id Identity, allowed RoleSet) error {
	if !allowed.Has(id.Role) {
		return ErrForbidden
	}
	return nil
}

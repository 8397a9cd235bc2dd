package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/support-desk/internal/auth"
)

// identityKey is the echo.Context key the auth gate stores the caller under.
const identityKey = "identity"

// Identity returns the caller attached by Authenticate. The request context
// is checked first; the echo store is a fallback for handlers mounted without
// a request rewrite.
func Identity(c echo.Context) (auth.Identity, bool) {
	if id, ok := auth.IdentityFrom(c.Request().Context()); ok {
		return id, true
	}
	id, ok := c.Get(identityKey).(auth.Identity)
	return id, ok
}

func setIdentity(c echo.Context, id auth.Identity) {
	c.SetRequest(c.Request().WithContext(auth.WithIdentity(c.Request().Context(), id)))
	c.Set(identityKey, id)
}

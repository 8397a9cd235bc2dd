package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/support-desk/internal/auth"
	"github.com/iliyamo/support-desk/internal/metrics"
)

const (
	msgNoToken       = "Not authorized, no token"
	msgNotAuthorized = "Not authorized"
)

// Authenticate verifies the Bearer token in the Authorization header and
// attaches the decoded identity to the request. Clients only ever see one of
// two generic 401 messages; the codec error is logged.
func Authenticate(codec *auth.Codec, log *zap.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := auth.Authenticate(codec, c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				reason := authReason(err)
				m.Reject(metrics.GateAuth, reason)
				log.Debug("auth gate rejected request",
					zap.String("request_id", requestID(c)),
					zap.String("reason", reason),
					zap.Error(err))
				if errors.Is(err, auth.ErrMissingToken) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"message": msgNoToken})
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": msgNotAuthorized})
			}
			setIdentity(c, id)
			return next(c)
		}
	}
}

func authReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "missing_token"
	case errors.Is(err, auth.ErrExpired):
		return "expired"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "malformed"
	}
}

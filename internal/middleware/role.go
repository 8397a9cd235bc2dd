package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/support-desk/internal/auth"
	"github.com/iliyamo/support-desk/internal/metrics"
)

// RequireRole lets the request through only when the authenticated caller's
// role is in allowed. It must be mounted after Authenticate; a request that
// reaches it without an identity is a routing bug and gets a 500.
func RequireRole(allowed auth.RoleSet, log *zap.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := Identity(c)
			if !ok {
				m.Reject(metrics.GateRole, "missing_identity")
				log.Error("role gate reached without identity",
					zap.String("request_id", requestID(c)),
					zap.String("route", c.Path()),
					zap.Error(auth.ErrMissingIdentity))
				return c.JSON(http.StatusInternalServerError, echo.Map{"message": msgInternal})
			}
			if err := auth.Authorize(id, allowed); err != nil {
				m.Reject(metrics.GateRole, "forbidden")
				log.Debug("role gate rejected request",
					zap.String("request_id", requestID(c)),
					zap.String("subject", id.SubjectID),
					zap.String("role", id.Role.String()))
				return c.JSON(http.StatusForbidden, echo.Map{"message": "Forbidden"})
			}
			return next(c)
		}
	}
}

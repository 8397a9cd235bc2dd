package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/support-desk/internal/metrics"
	"github.com/iliyamo/support-desk/internal/ratelimit"
)

const (
	msgTooManyRequests = "Too many requests, please try again later"
	msgUnavailable     = "Service temporarily unavailable"
)

// RateLimit applies limiter per client IP. Every answer carries the
// RateLimit-* headers; a rejected request gets 429 with Retry-After. When the
// store fails the limiter's fail policy decides: open passes the request on,
// closed answers 503.
func RateLimit(limiter *ratelimit.Limiter, log *zap.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			d, err := limiter.Allow(c.Request().Context(), ip)
			if err != nil {
				m.StoreError()
				log.Error("rate limit store failed",
					zap.String("request_id", requestID(c)),
					zap.String("client", ip),
					zap.String("policy", string(limiter.FailPolicy())),
					zap.Error(err))
				if !d.Allowed {
					m.Decision("unavailable")
					m.Reject(metrics.GateRateLimit, "store_unavailable")
					return c.JSON(http.StatusServiceUnavailable, echo.Map{"message": msgUnavailable})
				}
				m.Decision("fail_open")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("RateLimit-Reset", strconv.Itoa(ceilSeconds(d.ResetIn)))

			if !d.Allowed {
				secs := ceilSeconds(d.RetryAfter)
				m.Decision("limited")
				m.Reject(metrics.GateRateLimit, "limited")
				log.Info("rate limit exceeded",
					zap.String("request_id", requestID(c)),
					zap.String("client", ip),
					zap.Int("retry_after", secs))
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"message":     msgTooManyRequests,
					"retry_after": secs,
				})
			}
			m.Decision("allowed")
			return next(c)
		}
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

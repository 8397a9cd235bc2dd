package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const msgInternal = "Internal server error"

// RequestLogger writes one zap entry per request.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogRequestID: true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("request_id", v.RequestID),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			switch {
			case v.Error != nil:
				log.Error("request", append(fields, zap.Error(v.Error))...)
			case v.Status >= http.StatusInternalServerError:
				log.Error("request", fields...)
			default:
				log.Info("request", fields...)
			}
			return nil
		},
	})
}

// ErrorHandler renders every error returned from a handler as
// {"message": ...}, or as the map itself when an *echo.HTTPError carries an
// echo.Map. Errors that are not *echo.HTTPError are logged and shown
// to the client as a generic 500.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := msgInternal

		var body any
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code, msg = he.Code, ""
			switch m := he.Message.(type) {
			case string:
				msg = m
			case echo.Map:
				body = m
			}
			if msg == "" {
				msg = http.StatusText(code)
			}
		} else {
			log.Error("unhandled error",
				zap.String("request_id", requestID(c)),
				zap.String("route", c.Path()),
				zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			if body == nil {
				body = echo.Map{"message": msg}
			}
			err = c.JSON(code, body)
		}
		if err != nil {
			log.Error("write error response", zap.Error(err))
		}
	}
}

func requestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}

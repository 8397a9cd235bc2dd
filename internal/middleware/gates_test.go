package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/support-desk/internal/auth"
	"github.com/iliyamo/support-desk/internal/metrics"
	"github.com/iliyamo/support-desk/internal/ratelimit"
)

const testSecret = "test-secret"

type gateEnv struct {
	e     *echo.Echo
	codec *auth.Codec
}

func newGateEnv(t *testing.T) *gateEnv {
	t.Helper()
	codec, err := auth.NewCodec(testSecret)
	require.NoError(t, err)

	log := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(log)

	whoami := func(c echo.Context) error {
		id, ok := Identity(c)
		if !ok {
			return c.NoContent(http.StatusTeapot)
		}
		return c.JSON(http.StatusOK, id)
	}
	authn := Authenticate(codec, log, m)
	e.GET("/me", whoami, authn)
	e.GET("/admin", whoami, authn, RequireRole(auth.Roles(auth.RoleAdmin), log, m))
	e.GET("/tickets", whoami, authn, RequireRole(auth.Roles(auth.RoleAdmin, auth.RoleUser), log, m))
	e.GET("/miswired", whoami, RequireRole(auth.Roles(auth.RoleAdmin), log, m))

	return &gateEnv{e: e, codec: codec}
}

func (g *gateEnv) token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, _, err := g.codec.Encode(auth.Identity{SubjectID: "42", Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (g *gateEnv) do(method, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set(echo.HeaderAuthorization, authz)
	}
	rec := httptest.NewRecorder()
	g.e.ServeHTTP(rec, req)
	return rec
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Message
}

func TestAuthenticate(t *testing.T) {
	g := newGateEnv(t)

	t.Run("no header", func(t *testing.T) {
		rec := g.do(http.MethodGet, "/me", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Not authorized, no token", message(t, rec))
	})

	t.Run("wrong scheme", func(t *testing.T) {
		rec := g.do(http.MethodGet, "/me", "Basic abc")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Not authorized, no token", message(t, rec))
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := g.do(http.MethodGet, "/me", "Bearer not.a.jwt")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Not authorized", message(t, rec))
	})

	t.Run("expired token", func(t *testing.T) {
		past, err := auth.NewCodec(testSecret, auth.WithClock(func() time.Time {
			return time.Now().Add(-2 * time.Hour)
		}))
		require.NoError(t, err)
		tok, _, err := past.Encode(auth.Identity{SubjectID: "42", Role: auth.RoleUser}, time.Hour)
		require.NoError(t, err)

		rec := g.do(http.MethodGet, "/me", "Bearer "+tok)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Not authorized", message(t, rec))
	})

	t.Run("foreign secret", func(t *testing.T) {
		other, err := auth.NewCodec("other-secret")
		require.NoError(t, err)
		tok, _, err := other.Encode(auth.Identity{SubjectID: "42", Role: auth.RoleAdmin}, time.Hour)
		require.NoError(t, err)

		rec := g.do(http.MethodGet, "/me", "Bearer "+tok)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Not authorized", message(t, rec))
	})

	t.Run("valid token attaches identity", func(t *testing.T) {
		rec := g.do(http.MethodGet, "/me", "bearer "+g.token(t, auth.RoleUser))
		require.Equal(t, http.StatusOK, rec.Code)

		var id auth.Identity
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &id))
		assert.Equal(t, auth.Identity{SubjectID: "42", Role: auth.RoleUser}, id)
	})
}

func TestRequireRole(t *testing.T) {
	g := newGateEnv(t)

	tests := []struct {
		name string
		path string
		role auth.Role
		want int
	}{
		{"user on admin route", "/admin", auth.RoleUser, http.StatusForbidden},
		{"guest on admin route", "/admin", auth.RoleGuest, http.StatusForbidden},
		{"admin on admin route", "/admin", auth.RoleAdmin, http.StatusOK},
		{"user on shared route", "/tickets", auth.RoleUser, http.StatusOK},
		{"admin on shared route", "/tickets", auth.RoleAdmin, http.StatusOK},
		{"guest on shared route", "/tickets", auth.RoleGuest, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := g.do(http.MethodGet, tt.path, "Bearer "+g.token(t, tt.role))
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "Forbidden", message(t, rec))
			}
		})
	}

	t.Run("missing identity is a server error", func(t *testing.T) {
		rec := g.do(http.MethodGet, "/miswired", "Bearer "+g.token(t, auth.RoleAdmin))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal server error", message(t, rec))
	})
}

type brokenStore struct{}

func (brokenStore) Increment(context.Context, string, time.Time, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func newLimitedEcho(t *testing.T, store ratelimit.Store, policy ratelimit.FailPolicy, now time.Time) *echo.Echo {
	t.Helper()
	l, err := ratelimit.New(store, ratelimit.Config{
		Window:     15 * time.Minute,
		Max:        100,
		FailPolicy: policy,
		Prefix:     "rl:login",
	}, ratelimit.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	e := echo.New()
	e.POST("/login", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, RateLimit(l, zap.NewNop(), nil))
	return e
}

func login(e *echo.Echo, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = ip + ":5555"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 1, 0, 0, time.UTC)
	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	e := newLimitedEcho(t, store, ratelimit.FailClosed, now)

	for i := 1; i <= 100; i++ {
		rec := login(e, "10.0.0.1")
		require.Equal(t, http.StatusNoContent, rec.Code, "request %d", i)
		assert.Equal(t, "100", rec.Header().Get("RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(100-i), rec.Header().Get("RateLimit-Remaining"))
	}

	rec := login(e, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "840", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("RateLimit-Remaining"))

	var body struct {
		Message    string `json:"message"`
		RetryAfter int    `json:"retry_after"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Too many requests, please try again later", body.Message)
	assert.Equal(t, 840, body.RetryAfter)

	assert.Equal(t, http.StatusNoContent, login(e, "10.0.0.2").Code)
}

func TestRateLimit_StoreFailure(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("closed", func(t *testing.T) {
		rec := login(newLimitedEcho(t, brokenStore{}, ratelimit.FailClosed, now), "10.0.0.1")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "Service temporarily unavailable", message(t, rec))
	})

	t.Run("open", func(t *testing.T) {
		rec := login(newLimitedEcho(t, brokenStore{}, ratelimit.FailOpen, now), "10.0.0.1")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestErrorHandler(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zap.NewNop())
	e.GET("/missing", func(echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "Product not found")
	})
	e.GET("/boom", func(echo.Context) error {
		return errors.New("db exploded")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Product not found", message(t, rec))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", message(t, rec))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", message(t, rec))
}

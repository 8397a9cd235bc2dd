package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
)

// Check pings one dependency.
type Check func(ctx context.Context) error

// HealthHandler answers liveness and readiness checks.
type HealthHandler struct {
	Checks  map[string]Check
	Timeout time.Duration
}

// NewHealthHandler runs checks, keyed by dependency name, on each /readyz call.
func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{Checks: checks, Timeout: 2 * time.Second}
}

// Welcome is the API root.
func Welcome(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"message": "Welcome to the Support Desk API"})
}

// Health reports that the process is serving.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready runs every check and answers 503 if any of them fails.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.Checks[name](ctx); err != nil {
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
	}
	return c.JSON(status, echo.Map{"status": state, "checks": results})
}

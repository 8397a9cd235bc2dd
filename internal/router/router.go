// Package router registers the HTTP routes and the gates in front of them.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/support-desk/internal/auth"
	"github.com/iliyamo/support-desk/internal/handler"
)

// Gates are the middlewares shared by the API routes.
type Gates struct {
	Authenticate echo.MiddlewareFunc
	LoginLimit   echo.MiddlewareFunc
	Cache        echo.MiddlewareFunc
	RequireRole  func(auth.RoleSet) echo.MiddlewareFunc
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler, metrics http.Handler) {
	e.GET("/", handler.Welcome)
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", h.Ready)
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	e.GET("/metrics", echo.WrapHandler(metrics))
}

// RegisterUsers registers account routes under /api/users. Only login is
// rate limited; only /me requires a token.
func RegisterUsers(e *echo.Echo, a *handler.AuthHandler, g Gates) {
	u := e.Group("/api/users")
	u.POST("", a.Register)
	u.POST("/login", a.Login, g.LoginLimit)
	u.POST("/refresh", a.Refresh)
	u.POST("/logout", a.Logout)
	u.GET("/me", a.Me, g.Authenticate)
}

// RegisterProducts registers the product catalogue. Reads are public and the
// list is cached; writes are admin only.
func RegisterProducts(e *echo.Echo, p *handler.ProductHandler, g Gates) {
	pg := e.Group("/api/products")
	pg.GET("", p.List, g.Cache)
	pg.GET("/:id", p.Get)

	admin := []echo.MiddlewareFunc{g.Authenticate, g.RequireRole(auth.Roles(auth.RoleAdmin))}
	pg.POST("", p.Create, admin...)
	pg.PUT("/:id", p.Update, admin...)
	pg.DELETE("/:id", p.Delete, admin...)
}

// RegisterTickets registers ticket routes for admins and regular users.
func RegisterTickets(e *echo.Echo, t *handler.TicketHandler, g Gates) {
	tg := e.Group("/api/tickets", g.Authenticate, g.RequireRole(auth.Roles(auth.RoleAdmin, auth.RoleUser)))
	tg.GET("", t.List)
	tg.POST("", t.Create)
	tg.GET("/:id", t.Get)
	tg.PUT("/:id", t.Update)
	tg.DELETE("/:id", t.Delete)
}

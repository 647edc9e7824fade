package router

import (
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/portfolio-backend/internal/handler"
	"github.com/iliyamo/portfolio-backend/internal/middleware"
	"github.com/iliyamo/portfolio-backend/internal/openapi"
	"github.com/iliyamo/portfolio-backend/internal/token"
)

// RegisterRoutes registers the unauthenticated service endpoints.
func RegisterRoutes(e *echo.Echo, clock clockwork.Clock) {
	e.GET("/healthz", handler.Health)
	e.GET("/keep-alive", handler.KeepAlive(clock))
	e.GET("/v3/api-docs", openapi.Handler())
}

// RegisterAuth registers /api/auth and the Google sign-in endpoints. All of
// them pass through limiter.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limiter echo.MiddlewareFunc) {
	g := e.Group("/api/auth", limiter)
	g.POST("/register", a.Register)
	g.POST("/verify-otp", a.VerifyOtp)
	g.POST("/set-creds", a.SetCreds)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/check-token", a.CheckToken)

	e.GET("/login/google", a.GoogleRedirect, limiter)
	e.POST("/login/google/callback", a.GoogleCallback, limiter)
}

// RegisterPortfolios registers the public listing, served through cache,
// and the owner endpoints, which need an access token with ROLE_USER.
func RegisterPortfolios(e *echo.Echo, p *handler.PortfolioHandler, issuer *token.Issuer, cache echo.MiddlewareFunc) {
	e.GET("/api/portfolios/public", p.ListPublic, cache)

	g := e.Group("/api/portfolios",
		middleware.JWTAuth(issuer),
		middleware.RequireRole(token.RoleUser),
	)
	g.POST("", p.Create)
	g.GET("/my", p.ListMine)
	g.GET("/:id", p.Get)
	g.PUT("/:id", p.Update)
	g.DELETE("/:id", p.Delete)
	g.PATCH("/:id/visibility", p.ToggleVisibility)
}

package api

import (
	"storefront/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "X-Admin-Key"},
	}))
	e.Use(RequestLogger())

	// Shared download links attract double-clicks and reposts;
	// rate-limit redemption only.
	downloadLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	adminGate := AdminKey(cfg.AdminKeyHash)

	// Health
	e.GET("/health", handler.HandleHealth)

	// Storefront
	e.GET("/api/products", handler.HandleProducts)
	e.POST("/api/orders", handler.HandleCreateOrder)

	// Download redemption (rate-limited)
	e.GET("/api/download", handler.HandleDownload, downloadLimiter.Middleware())

	// Admin
	e.POST("/api/fulfill", handler.HandleFulfill, adminGate)
	e.GET("/api/orders", handler.HandleListOrders, adminGate)
	e.GET("/api/stats", handler.HandleStats, adminGate)

	return e
}

// Package router maps the HTTP surface onto handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/calebferro/slotbook/internal/config"
	"github.com/calebferro/slotbook/internal/handler"
	"github.com/calebferro/slotbook/internal/middleware"
	"github.com/calebferro/slotbook/internal/model"
)

// Handlers groups everything the router wires up.
type Handlers struct {
	Auth     *handler.AuthHandler
	Booking  *handler.BookingHandler
	Waitlist *handler.WaitlistHandler
	Browse   *handler.BrowseHandler
}

// Register wires all routes.  Public browse endpoints sit behind the
// response cache; every authenticated endpoint sits behind the rate
// limiter.  rdb may be nil, which disables both.
func Register(e *echo.Echo, h Handlers, cfg config.Config, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	// Unauthenticated auth operations.
	authGroup := e.Group("/v1/auth")
	authGroup.POST("/register", h.Auth.Register)
	authGroup.POST("/login", h.Auth.Login)

	// Public availability browsing, cached.
	pub := e.Group("/v1", cache)
	pub.GET("/offerings/:id", h.Browse.GetOffering)
	pub.GET("/offerings/:id/instances", h.Browse.ListInstances)

	// Everything below requires a valid access token.
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(cfg.JWTSecret))
	auth.Use(middleware.RequireRole(model.RoleGuest, model.RoleHost, model.RoleAdmin))
	auth.Use(limiter)

	auth.GET("/me", h.Auth.Me)

	auth.GET("/my-bookings", h.Booking.List)
	auth.GET("/bookings/:id", h.Booking.Get)
	auth.GET("/bookings/:id/modifications", h.Booking.History)
	auth.PATCH("/bookings/:id/party-size", h.Booking.ModifyPartySize)
	auth.PATCH("/bookings/:id/date", h.Booking.ChangeDate)
	auth.POST("/bookings/:id/cancel", h.Booking.Cancel)

	auth.POST("/waitlist", h.Waitlist.Join)
	auth.POST("/waitlist/claim", h.Waitlist.Claim)
}

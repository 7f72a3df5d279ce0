package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"parking-booking-backend/config"
	"parking-booking-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	if cfg.RequestIPHeader != "" {
		// Rate limiting and request logs key on this header instead of the proxy address.
		r.TrustedPlatform = cfg.RequestIPHeader
	}
	r.Use(gin.Recovery(), mw.RequestLogger(h.logger))

	// Initialize middleware
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter, mw.Invalidate(cacheStore))
	{
		// POST /api/commands
		api.POST("/commands", h.PostCommand)

		// GET /api/bookings
		api.GET("/bookings", h.GetBookings)

		// GET /api/members
		api.GET("/members", caching, h.GetMembers)

		// GET /api/runs?limit=N
		api.GET("/runs", caching, h.GetRuns)

		// GET /api/report
		api.GET("/report", h.GetReport)
	}

	return r
}

package api

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"line-status-backend/config"
	"line-status-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. Report endpoints are
// served through responses.
func NewRouter(h *Handler, cfg *config.ServerConfig, responses *mw.ResponseCache) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	caching := responses.Middleware()

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/lines", h.GetLines)
		api.GET("/lines/:line_id", h.GetLine)
		api.PUT("/lines/:line_id/status", h.PutLineStatus)
		api.POST("/lines/:line_id/activity", h.PostLineActivity)
		api.POST("/lines/:line_id/recompute", h.PostLineRecompute)

		api.GET("/stopped-time", h.GetStoppedTime)
		api.GET("/oee", caching, h.GetOEE)
		api.GET("/production/hourly", caching, h.GetHourlyProduction)
		api.GET("/reports/daily.xlsx", h.GetDailyReport)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}

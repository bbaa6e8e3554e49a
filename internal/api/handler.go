package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"line-status-backend/internal/oee"
	"line-status-backend/internal/status"
	"line-status-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	lines   *status.Controller
	reports *oee.Aggregator
	db      *gorm.DB
	webpush *webpush.Options
	now     func() time.Time
	log     *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(lines *status.Controller, reports *oee.Aggregator, db *gorm.DB, webpushOptions *webpush.Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		lines:   lines,
		reports: reports,
		db:      db,
		webpush: webpushOptions,
		now:     time.Now,
		log:     log,
	}
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// failure maps a domain or store error to a response.
func (h *Handler) failure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrLineNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "line not found"})
	case errors.Is(err, status.ErrInvalidStatus):
		badRequest(c, err.Error())
	case errors.Is(err, status.ErrNoActivitySource):
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	}
}

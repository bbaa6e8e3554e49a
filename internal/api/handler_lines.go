package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"line-status-backend/internal/activity"
	"line-status-backend/internal/model"
	"line-status-backend/internal/store"
)

// GetLines handles GET /api/lines. Shift boundaries are enforced first so
// no line reads as active outside a shift.
func (h *Handler) GetLines(c *gin.Context) {
	lines, err := h.lines.ListLines(c.Request.Context(), h.now())
	if err != nil {
		h.failure(c, err)
		return
	}
	c.JSON(http.StatusOK, lines)
}

// GetLine handles GET /api/lines/:line_id.
func (h *Handler) GetLine(c *gin.Context) {
	line, err := h.lines.GetLine(c.Request.Context(), c.Param("line_id"))
	if err != nil {
		h.failure(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

type putStatusRequest struct {
	Status model.LineStatus `json:"status" binding:"required"`
}

// PutLineStatus handles PUT /api/lines/:line_id/status.
func (h *Handler) PutLineStatus(c *gin.Context) {
	var req putStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	line, err := h.lines.RequestStatus(c.Request.Context(), c.Param("line_id"), req.Status, h.now())
	h.respondLine(c, line, err)
}

// PostLineActivity handles POST /api/lines/:line_id/activity, where the issue
// and task subsystems push the line's current snapshot.
func (h *Handler) PostLineActivity(c *gin.Context) {
	var snap activity.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		badRequest(c, "invalid request")
		return
	}

	line, err := h.lines.ApplyActivity(c.Request.Context(), c.Param("line_id"), snap, h.now())
	h.respondLine(c, line, err)
}

// PostLineRecompute handles POST /api/lines/:line_id/recompute.
func (h *Handler) PostLineRecompute(c *gin.Context) {
	line, err := h.lines.RecomputeFromActivity(c.Request.Context(), c.Param("line_id"), h.now())
	h.respondLine(c, line, err)
}

func (h *Handler) respondLine(c *gin.Context, line *model.Line, err error) {
	if err != nil {
		h.failure(c, err)
		return
	}
	if line == nil {
		h.failure(c, store.ErrLineNotFound)
		return
	}
	c.JSON(http.StatusOK, line)
}

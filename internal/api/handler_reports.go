package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"line-status-backend/internal/oee"
	"line-status-backend/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GetStoppedTime handles GET /api/stopped-time.
func (h *Handler) GetStoppedTime(c *gin.Context) {
	st, err := h.reports.TotalStoppedTime(c.Request.Context(), h.now())
	if err != nil {
		h.failure(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetOEE handles GET /api/oee.
func (h *Handler) GetOEE(c *gin.Context) {
	r, err := h.reports.OEE(c.Request.Context(), h.now())
	if err != nil {
		h.failure(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// GetHourlyProduction handles GET /api/production/hourly. Without line_id the
// series combines every line.
func (h *Handler) GetHourlyProduction(c *gin.Context) {
	series, err := h.reports.HourlyProduction(c.Request.Context(), c.Query("line_id"), h.now())
	if err != nil {
		h.failure(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// GetDailyReport handles GET /api/reports/daily.xlsx.
func (h *Handler) GetDailyReport(c *gin.Context) {
	ctx := c.Request.Context()
	now := h.now()

	r, err := h.reports.OEE(ctx, now)
	if err != nil {
		h.failure(c, err)
		return
	}

	combined, err := h.reports.HourlyProduction(ctx, "", now)
	if err != nil {
		h.failure(c, err)
		return
	}
	series := []oee.Series{combined}
	for _, l := range r.Lines {
		s, err := h.reports.HourlyProduction(ctx, l.LineID, now)
		if err != nil {
			h.failure(c, err)
			return
		}
		series = append(series, s)
	}

	data, err := report.DailyWorkbook(r, series)
	if err != nil {
		h.failure(c, err)
		return
	}

	filename := fmt.Sprintf("line-report-%s.xlsx", combined.Date)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

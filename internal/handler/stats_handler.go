package handler

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
	appErrors "github.com/asliddin-dev/edu-crm-api/pkg/errors"
	"github.com/asliddin-dev/edu-crm-api/pkg/response"
)

type statsService interface {
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	Weekly(ctx context.Context) (*models.WeeklyStats, error)
	Export(ctx context.Context, status models.Status, format string) ([]byte, string, error)
}

// StatsHandler serves aggregate counters and report exports.
type StatsHandler struct {
	stats statsService
}

// NewStatsHandler constructs StatsHandler.
func NewStatsHandler(stats statsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// CountByStatus godoc
// @Summary Registration counts per status
// @Tags stats
// @Produce json
// @Success 200 {object} response.Envelope{data=[]models.StatusCount}
// @Router /stats/statuses [get]
func (h *StatsHandler) CountByStatus(c *gin.Context) {
	counts, err := h.stats.CountByStatus(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, 200, counts, nil)
}

// Weekly godoc
// @Summary Weekly lifecycle movement
// @Tags stats
// @Produce json
// @Success 200 {object} response.Envelope{data=models.WeeklyStats}
// @Router /stats/weekly [get]
func (h *StatsHandler) Weekly(c *gin.Context) {
	stats, err := h.stats.Weekly(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, 200, stats, nil)
}

// Export godoc
// @Summary Export registrations in one status
// @Tags stats
// @Security BearerAuth
// @Produce text/csv
// @Produce application/pdf
// @Param status query string true "Status to export"
// @Param format query string true "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /stats/export [get]
func (h *StatsHandler) Export(c *gin.Context) {
	status, err := models.ParseStatus(c.Query("status"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown status"))
		return
	}
	format := c.DefaultQuery("format", "csv")

	data, contentType, exportErr := h.stats.Export(c.Request.Context(), status, format)
	if exportErr != nil {
		response.Error(c, exportErr)
		return
	}

	filename := fmt.Sprintf("registrations_%s.%s", status, format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(200, contentType, data)
}

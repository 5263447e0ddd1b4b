package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ontrak/internal/domain"
	"ontrak/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StatisticsHandler exposes the aggregation engine. Reports are best-effort:
// partial upstream failures still return 200 with a complete shape and
// diagnostic notes.
type StatisticsHandler struct {
	statisticsService service.StatisticsService
}

// NewStatisticsHandler creates a new StatisticsHandler.
func NewStatisticsHandler(statisticsService service.StatisticsService) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService}
}

// GetStatistics godoc
// @Summary Compute the statistics report
// @Description Variance/punctuality/ranking metrics over completed sessions, filtered by trainer, training, day, and date range.
// @Tags Statistics
// @Produce json
// @Security BearerAuth
// @Param trainer query string false "Trainer ID or 'all'"
// @Param training query string false "Training (template) ID or 'all'"
// @Param day query int false "Day number"
// @Param dateRange query string false "all | 7d | 30d | 90d"
// @Success 200 {object} domain.StatisticsReport
// @Failure 400 {object} gin.H "Malformed filter"
// @Router /statistics [get]
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	filter, ok := parseStatisticsFilter(c)
	if !ok {
		return
	}

	report, err := h.statisticsService.Report(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, service.ErrInvalidFilter) {
			abortWithError(c, http.StatusBadRequest, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to compute statistics.")
		}
		return
	}
	c.JSON(http.StatusOK, report)
}

// ExportCSV godoc
// @Summary Download the raw adherence rows as CSV
// @Tags Statistics
// @Produce text/csv
// @Security BearerAuth
// @Success 200 {string} string "CSV body"
// @Failure 400 {object} gin.H "Malformed filter"
// @Router /statistics/export [get]
func (h *StatisticsHandler) ExportCSV(c *gin.Context) {
	filter, ok := parseStatisticsFilter(c)
	if !ok {
		return
	}

	body, _, err := h.statisticsService.ExportCSV(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, service.ErrInvalidFilter) {
			abortWithError(c, http.StatusBadRequest, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to export statistics.")
		}
		return
	}

	c.Header("Content-Disposition", `attachment; filename="adherence.csv"`)
	c.Data(http.StatusOK, "text/csv", body)
}

// ArchiveReport godoc
// @Summary Archive the adherence CSV to object storage
// @Description Uploads the CSV for the given filter and returns a presigned download URL.
// @Tags Statistics
// @Produce json
// @Security BearerAuth
// @Success 201 {object} service.ArchiveResult
// @Failure 400 {object} gin.H "Malformed filter"
// @Router /statistics/export [post]
func (h *StatisticsHandler) ArchiveReport(c *gin.Context) {
	filter, ok := parseStatisticsFilter(c)
	if !ok {
		return
	}
	callerID, ok := getCallerObjectID(c)
	if !ok {
		return
	}

	result, err := h.statisticsService.ArchiveReport(c.Request.Context(), callerID, filter)
	if err != nil {
		if errors.Is(err, service.ErrInvalidFilter) {
			abortWithError(c, http.StatusBadRequest, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to archive report.")
		}
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ListArchives godoc
// @Summary List the caller's archived reports
// @Tags Statistics
// @Produce json
// @Security BearerAuth
// @Success 200 {array} domain.ReportExport
// @Router /statistics/exports [get]
func (h *StatisticsHandler) ListArchives(c *gin.Context) {
	callerID, ok := getCallerObjectID(c)
	if !ok {
		return
	}

	exports, err := h.statisticsService.ListArchives(c.Request.Context(), callerID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to list archived reports.")
		return
	}
	if exports == nil {
		exports = []domain.ReportExport{}
	}
	c.JSON(http.StatusOK, exports)
}

// DeleteArchive godoc
// @Summary Delete one of the caller's archived reports
// @Description Removes the CSV object from storage along with its metadata.
// @Tags Statistics
// @Produce json
// @Security BearerAuth
// @Param id path string true "Export ID"
// @Success 204 "Deleted"
// @Failure 404 {object} gin.H "Export not found or not owned by caller"
// @Router /statistics/exports/{id} [delete]
func (h *StatisticsHandler) DeleteArchive(c *gin.Context) {
	exportID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid export ID format.")
		return
	}
	callerID, ok := getCallerObjectID(c)
	if !ok {
		return
	}

	if err := h.statisticsService.DeleteArchive(c.Request.Context(), callerID, exportID); err != nil {
		if errors.Is(err, service.ErrExportNotFound) {
			abortWithError(c, http.StatusNotFound, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to delete archived report.")
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// parseStatisticsFilter reads the query parameters into a typed filter.
// Unset fields default to "all".
func parseStatisticsFilter(c *gin.Context) (domain.StatisticsFilter, bool) {
	filter := domain.StatisticsFilter{
		TrainerID:  c.DefaultQuery("trainer", domain.FilterAll),
		TrainingID: c.DefaultQuery("training", domain.FilterAll),
		DateRange:  c.DefaultQuery("dateRange", domain.FilterAll),
	}
	if raw := c.Query("day"); raw != "" {
		day, err := strconv.Atoi(raw)
		if err != nil || day < 1 {
			abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Invalid day parameter: %q", raw))
			return filter, false
		}
		filter.Day = day
	}
	return filter, true
}

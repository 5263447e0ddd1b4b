package api

import (
	"errors"
	"fmt"
	"net/http"

	"ontrak/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ScheduleHandler exposes the schedule execution state machine. Session
// responses are the same complete-state snapshots the WebSocket broadcast
// carries, so REST and event consumers render from one shape.
type ScheduleHandler struct {
	scheduleService service.ScheduleService
}

// NewScheduleHandler creates a new ScheduleHandler.
func NewScheduleHandler(scheduleService service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{scheduleService: scheduleService}
}

// --- Request Structs ---

// StartDayRequest starts one template day as a live session.
type StartDayRequest struct {
	TemplateID string `json:"templateId" binding:"required"`
	Day        int    `json:"day" binding:"required,min=1"`
	Title      string `json:"title"`
}

// ReorderRequest carries the manual permutation of a session's activities.
// Its length must match the existing activity count.
type ReorderRequest struct {
	ActivityIDs []string `json:"activityIds" binding:"required,min=1"`
}

// --- Handler Methods ---

// StartDay godoc
// @Summary Start a template day as a live session
// @Description Creates a live schedule session from one day of a template. Any other active session of the caller is cancelled first.
// @Tags Schedule
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body StartDayRequest true "Template and day to start"
// @Success 201 {object} domain.ScheduleSession
// @Failure 400 {object} gin.H "Invalid day or empty day"
// @Failure 404 {object} gin.H "Template not found"
// @Failure 409 {object} gin.H "Concurrent modification"
// @Router /schedule/start [post]
func (h *ScheduleHandler) StartDay(c *gin.Context) {
	var req StartDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}
	trainerID, ok := getCallerObjectID(c)
	if !ok {
		return
	}
	templateID, err := primitive.ObjectIDFromHex(req.TemplateID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid template ID format.")
		return
	}

	session, err := h.scheduleService.StartDay(c.Request.Context(), trainerID, templateID, req.Day, req.Title)
	if err != nil {
		h.mapScheduleError(c, err, "Failed to start day.")
		return
	}
	c.JSON(http.StatusCreated, session)
}

// Next godoc
// @Summary Advance to the next activity
// @Description Completes the current activity and activates the next one.
// @Tags Schedule
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param activityId path string true "Expected active activity ID"
// @Success 200 {object} domain.ScheduleSession
// @Failure 400 {object} gin.H "No next activity"
// @Failure 404 {object} gin.H "Session or activity not found"
// @Failure 409 {object} gin.H "Concurrent modification"
// @Router /schedule/sessions/{id}/next/{activityId} [post]
func (h *ScheduleHandler) Next(c *gin.Context) {
	trainerID, sessionID, activityID, ok := h.navigationParams(c)
	if !ok {
		return
	}
	session, err := h.scheduleService.Advance(c.Request.Context(), trainerID, sessionID, activityID)
	if err != nil {
		h.mapScheduleError(c, err, "Failed to advance.")
		return
	}
	c.JSON(http.StatusOK, session)
}

// Previous godoc
// @Summary Go back to the previous activity
// @Description Undoes an erroneous advance; the previous activity keeps its original timestamps.
// @Tags Schedule
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param activityId path string true "Expected active activity ID"
// @Success 200 {object} domain.ScheduleSession
// @Failure 400 {object} gin.H "No previous activity"
// @Failure 404 {object} gin.H "Session or activity not found"
// @Failure 409 {object} gin.H "Concurrent modification"
// @Router /schedule/sessions/{id}/previous/{activityId} [post]
func (h *ScheduleHandler) Previous(c *gin.Context) {
	trainerID, sessionID, activityID, ok := h.navigationParams(c)
	if !ok {
		return
	}
	session, err := h.scheduleService.Retreat(c.Request.Context(), trainerID, sessionID, activityID)
	if err != nil {
		h.mapScheduleError(c, err, "Failed to go back.")
		return
	}
	c.JSON(http.StatusOK, session)
}

// CloseDay godoc
// @Summary Close the caller's active session
// @Tags Schedule
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.ScheduleSession
// @Failure 404 {object} gin.H "No active schedule"
// @Router /schedule/close [post]
func (h *ScheduleHandler) CloseDay(c *gin.Context) {
	trainerID, ok := getCallerObjectID(c)
	if !ok {
		return
	}
	session, err := h.scheduleService.CloseDay(c.Request.Context(), trainerID)
	if err != nil {
		h.mapScheduleError(c, err, "Failed to close day.")
		return
	}
	c.JSON(http.StatusOK, session)
}

// CancelDay godoc
// @Summary Cancel the caller's active session
// @Tags Schedule
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.ScheduleSession
// @Failure 404 {object} gin.H "No active schedule"
// @Router /schedule/cancel [post]
func (h *ScheduleHandler) CancelDay(c *gin.Context) {
	trainerID, ok := getCallerObjectID(c)
	if !ok {
		return
	}
	session, err := h.scheduleService.CancelDay(c.Request.Context(), trainerID)
	if err != nil {
		h.mapScheduleError(c, err, "Failed to cancel day.")
		return
	}
	c.JSON(http.StatusOK, session)
}

// Current godoc
// @Summary Get the caller's active session for today
// @Description Returns null when the caller has no active session started today.
// @Tags Schedule
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.ScheduleSession
// @Router /schedule/current [get]
func (h *ScheduleHandler) Current(c *gin.Context) {
	trainerID, ok := getCallerObjectID(c)
	if !ok {
		return
	}
	session, err := h.scheduleService.CurrentSession(c.Request.Context(), trainerID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to load current session.")
		return
	}
	// Explicit null when nothing is running.
	c.JSON(http.StatusOK, session)
}

// Reorder godoc
// @Summary Reorder the session's activities
// @Description Applies a permutation and recomputes planned start times along the new order.
// @Tags Schedule
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param request body ReorderRequest true "New activity order"
// @Success 200 {object} domain.ScheduleSession
// @Failure 400 {object} gin.H "Order is not a permutation of the existing activities"
// @Failure 404 {object} gin.H "Session not found"
// @Failure 409 {object} gin.H "Concurrent modification"
// @Router /schedule/sessions/{id}/activities [put]
func (h *ScheduleHandler) Reorder(c *gin.Context) {
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}
	trainerID, ok := getCallerObjectID(c)
	if !ok {
		return
	}
	sessionID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid session ID format.")
		return
	}

	activityIDs := make([]primitive.ObjectID, len(req.ActivityIDs))
	for i, raw := range req.ActivityIDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid activity ID format.")
			return
		}
		activityIDs[i] = id
	}

	session, err := h.scheduleService.Reorder(c.Request.Context(), trainerID, sessionID, activityIDs)
	if err != nil {
		h.mapScheduleError(c, err, "Failed to reorder activities.")
		return
	}
	c.JSON(http.StatusOK, session)
}

// ActiveSessions godoc
// @Summary List all live sessions (admin)
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} service.ActiveSessionSummary
// @Failure 403 {object} gin.H "Not an admin"
// @Router /admin/sessions/active [get]
func (h *ScheduleHandler) ActiveSessions(c *gin.Context) {
	summaries, err := h.scheduleService.ActiveSessions(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to list active sessions.")
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// === helpers ===

func (h *ScheduleHandler) navigationParams(c *gin.Context) (trainerID, sessionID, activityID primitive.ObjectID, ok bool) {
	trainerID, ok = getCallerObjectID(c)
	if !ok {
		return
	}
	var err error
	sessionID, err = primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid session ID format.")
		return trainerID, sessionID, activityID, false
	}
	activityID, err = primitive.ObjectIDFromHex(c.Param("activityId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid activity ID format.")
		return trainerID, sessionID, activityID, false
	}
	return trainerID, sessionID, activityID, true
}

// mapScheduleError translates service errors to HTTP codes. Domain/state
// conflicts are 400 so clients disable the action; identity mismatches are
// 404 per the documented contract.
func (h *ScheduleHandler) mapScheduleError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrTemplateNotFound),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrActivityMismatch),
		errors.Is(err, service.ErrNoActiveSchedule):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidDay),
		errors.Is(err, service.ErrEmptyDay),
		errors.Is(err, service.ErrNoNextActivity),
		errors.Is(err, service.ErrNoPreviousActivity),
		errors.Is(err, service.ErrActivityCountMismatch):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrConflict):
		abortWithError(c, http.StatusConflict, err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, fallback)
	}
}

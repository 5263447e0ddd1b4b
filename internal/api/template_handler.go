package api

import (
	"errors"
	"fmt"
	"net/http"

	"ontrak/internal/domain"
	"ontrak/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TemplateHandler manages the training template catalog.
type TemplateHandler struct {
	templateService service.TemplateService
}

// NewTemplateHandler creates a new TemplateHandler.
func NewTemplateHandler(templateService service.TemplateService) *TemplateHandler {
	return &TemplateHandler{templateService: templateService}
}

// --- Request Structs ---

type PlannedActivityRequest struct {
	Day             int      `json:"day" binding:"required,min=1"`
	Name            string   `json:"name" binding:"required"`
	Description     string   `json:"description"`
	StartTime       string   `json:"startTime" binding:"required"`
	DurationMinutes int      `json:"durationMinutes" binding:"required,min=1"`
	Tags            []string `json:"tags"`
}

type CreateTemplateRequest struct {
	Name        string                   `json:"name" binding:"required"`
	Description string                   `json:"description"`
	TotalDays   int                      `json:"totalDays" binding:"required,min=1"`
	Activities  []PlannedActivityRequest `json:"activities" binding:"required,min=1,dive"`
}

// --- Handler Methods ---

// CreateTemplate godoc
// @Summary Create a training template
// @Tags Templates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param template body CreateTemplateRequest true "Template definition"
// @Success 201 {object} domain.Template
// @Failure 400 {object} gin.H "Invalid input"
// @Router /templates [post]
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}
	callerID, ok := getCallerObjectID(c)
	if !ok {
		return
	}

	activities := make([]domain.PlannedActivity, len(req.Activities))
	for i, a := range req.Activities {
		activities[i] = domain.PlannedActivity{
			Day:             a.Day,
			Name:            a.Name,
			Description:     a.Description,
			StartTime:       a.StartTime,
			DurationMinutes: a.DurationMinutes,
			Tags:            a.Tags,
		}
	}

	template, err := h.templateService.CreateTemplate(c.Request.Context(), callerID, req.Name, req.Description, req.TotalDays, activities)
	if err != nil {
		if errors.Is(err, service.ErrTemplateValidation) {
			abortWithError(c, http.StatusBadRequest, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to create template.")
		}
		return
	}
	c.JSON(http.StatusCreated, template)
}

// ListTemplates godoc
// @Summary List the template catalog
// @Tags Templates
// @Produce json
// @Security BearerAuth
// @Success 200 {array} domain.Template
// @Router /templates [get]
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	templates, err := h.templateService.ListTemplates(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to list templates.")
		return
	}
	if templates == nil {
		templates = []domain.Template{}
	}
	c.JSON(http.StatusOK, templates)
}

// GetTemplate godoc
// @Summary Get one template
// @Tags Templates
// @Produce json
// @Security BearerAuth
// @Param id path string true "Template ID"
// @Success 200 {object} domain.Template
// @Failure 404 {object} gin.H "Template not found"
// @Router /templates/{id} [get]
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	templateID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid template ID format.")
		return
	}

	template, err := h.templateService.GetTemplateByID(c.Request.Context(), templateID)
	if err != nil {
		if errors.Is(err, service.ErrTemplateNotFound) {
			abortWithError(c, http.StatusNotFound, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to load template.")
		}
		return
	}
	c.JSON(http.StatusOK, template)
}

// DeleteTemplate godoc
// @Summary Delete a template the caller created
// @Tags Templates
// @Produce json
// @Security BearerAuth
// @Param id path string true "Template ID"
// @Success 204 "Deleted"
// @Failure 404 {object} gin.H "Template not found or not owned by caller"
// @Router /templates/{id} [delete]
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	templateID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid template ID format.")
		return
	}
	callerID, ok := getCallerObjectID(c)
	if !ok {
		return
	}

	if err := h.templateService.DeleteTemplate(c.Request.Context(), callerID, templateID); err != nil {
		if errors.Is(err, service.ErrTemplateNotFound) {
			abortWithError(c, http.StatusNotFound, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to delete template.")
		}
		return
	}
	c.Status(http.StatusNoContent)
}

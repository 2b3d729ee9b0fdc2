package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-booking-api/internal/dto"
	"github.com/noah-isme/studio-booking-api/internal/models"
	"github.com/noah-isme/studio-booking-api/pkg/response"
)

type classService interface {
	CreateTemplate(ctx context.Context, creatorID string, req dto.CreateClassTemplateRequest) (*models.ClassTemplateResult, error)
	GetTemplate(ctx context.Context, id string) (*models.ClassTemplate, error)
	ListTemplates(ctx context.Context, filter models.ClassTemplateFilter) ([]models.ClassTemplate, *models.Pagination, error)
	AddStaff(ctx context.Context, templateID string, req dto.AssignStaffRequest) ([]models.User, error)
	RemoveStaff(ctx context.Context, templateID, staffID string) error
	ListStaff(ctx context.Context, templateID string) ([]models.User, error)
	ChangeInstructor(ctx context.Context, templateID string, req dto.ChangeInstructorRequest) (*models.ClassTemplate, error)
	ListUpcoming(ctx context.Context, templateIDs []string) ([]models.ClassInstanceDetail, error)
}

// ClassHandler exposes class template endpoints and the upcoming schedule.
type ClassHandler struct {
	service classService
}

// NewClassHandler constructs a class handler.
func NewClassHandler(svc classService) *ClassHandler {
	return &ClassHandler{service: svc}
}

// List godoc
// @Summary List class templates
// @Tags Classes
// @Produce json
// @Param instructor_id query string false "Filter by instructor"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	filter := models.ClassTemplateFilter{InstructorID: c.Query("instructor_id")}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	templates, pagination, err := h.service.ListTemplates(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, pagination)
}

// Get godoc
// @Summary Get class template
// @Tags Classes
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	tmpl, err := h.service.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tmpl, nil)
}

// Create godoc
// @Summary Create class template
// @Description Stores the template and generates its instances up to the scheduling horizon.
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body dto.CreateClassTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateClassTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.CreateTemplate(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ListStaff godoc
// @Summary List staff assigned to a class template
// @Tags Classes
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/staff [get]
func (h *ClassHandler) ListStaff(c *gin.Context) {
	if _, err := h.service.GetTemplate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	staff, err := h.service.ListStaff(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, staff, nil)
}

// AddStaff godoc
// @Summary Assign staff to a class template
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.AssignStaffRequest true "Staff payload"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/staff [post]
func (h *ClassHandler) AddStaff(c *gin.Context) {
	var req dto.AssignStaffRequest
	if !bindJSON(c, &req) {
		return
	}
	staff, err := h.service.AddStaff(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, staff, nil)
}

// RemoveStaff godoc
// @Summary Remove staff from a class template
// @Tags Classes
// @Param id path string true "Template ID"
// @Param staffId path string true "Staff user ID"
// @Success 204
// @Router /classes/{id}/staff/{staffId} [delete]
func (h *ClassHandler) RemoveStaff(c *gin.Context) {
	if err := h.service.RemoveStaff(c.Request.Context(), c.Param("id"), c.Param("staffId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ChangeInstructor godoc
// @Summary Change the instructor of a class template
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.ChangeInstructorRequest true "Instructor payload"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/instructor [put]
func (h *ClassHandler) ChangeInstructor(c *gin.Context) {
	var req dto.ChangeInstructorRequest
	if !bindJSON(c, &req) {
		return
	}
	tmpl, err := h.service.ChangeInstructor(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tmpl, nil)
}

// Upcoming godoc
// @Summary List upcoming class instances
// @Tags Instances
// @Produce json
// @Param template_id query string false "Comma separated template ids"
// @Success 200 {object} response.Envelope
// @Router /instances [get]
func (h *ClassHandler) Upcoming(c *gin.Context) {
	var templateIDs []string
	for _, id := range strings.Split(c.Query("template_id"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			templateIDs = append(templateIDs, id)
		}
	}
	instances, err := h.service.ListUpcoming(c.Request.Context(), templateIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instances, nil, map[string]interface{}{"count": len(instances)})
}

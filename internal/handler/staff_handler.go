package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-booking-api/internal/models"
	"github.com/noah-isme/studio-booking-api/pkg/response"
)

type staffViews interface {
	AssignedClasses(ctx context.Context, staffID string) ([]models.ClassInstanceDetail, error)
	BookedClasses(ctx context.Context, staffID string) ([]models.EnrollmentDetail, error)
}

// StaffHandler serves staff dashboards.
type StaffHandler struct {
	views staffViews
}

// NewStaffHandler constructs a StaffHandler.
func NewStaffHandler(views staffViews) *StaffHandler {
	return &StaffHandler{views: views}
}

// Classes godoc
// @Summary List upcoming classes the caller teaches or is assigned to
// @Tags Staff
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /staff/me/classes [get]
func (h *StaffHandler) Classes(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		return
	}
	classes, err := h.views.AssignedClasses(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// Bookings godoc
// @Summary List classes the caller booked as staff
// @Tags Staff
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /staff/me/bookings [get]
func (h *StaffHandler) Bookings(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		return
	}
	bookings, err := h.views.BookedClasses(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, nil)
}

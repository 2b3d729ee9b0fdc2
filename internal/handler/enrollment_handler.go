package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-booking-api/internal/dto"
	"github.com/noah-isme/studio-booking-api/internal/models"
	"github.com/noah-isme/studio-booking-api/pkg/response"
)

type attendanceMarker interface {
	MarkAttendance(ctx context.Context, staffID, enrollmentID string, req dto.MarkAttendanceRequest) (*models.Enrollment, error)
}

// EnrollmentHandler exposes attendance marking.
type EnrollmentHandler struct {
	attendance attendanceMarker
}

// NewEnrollmentHandler constructs an enrollment handler.
func NewEnrollmentHandler(attendance attendanceMarker) *EnrollmentHandler {
	return &EnrollmentHandler{attendance: attendance}
}

// MarkAttendance godoc
// @Summary Mark an enrollment attended or missed
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.MarkAttendanceRequest true "Attendance status"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments/{id}/attendance [put]
func (h *EnrollmentHandler) MarkAttendance(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		return
	}
	var req dto.MarkAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.attendance.MarkAttendance(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-booking-api/internal/dto"
	"github.com/noah-isme/studio-booking-api/internal/models"
	"github.com/noah-isme/studio-booking-api/internal/service"
	"github.com/noah-isme/studio-booking-api/pkg/response"
)

type bookingService interface {
	Book(ctx context.Context, studentID, instanceID string, req dto.BookRequest) (*models.Enrollment, error)
	BookForStaff(ctx context.Context, staffID, instanceID string) (*models.Enrollment, error)
	BookWithCredit(ctx context.Context, studentID, instanceID string) (*models.Enrollment, error)
	Cancel(ctx context.Context, studentID, instanceID string) (*models.EnrollmentCancellation, error)
	CheckEligibility(ctx context.Context, studentID, instanceID string) (*models.BookingEligibility, error)
}

type cancellationService interface {
	CancelSingleInstance(ctx context.Context, instanceID string) (*models.CancellationSummary, error)
	CancelFutureInstances(ctx context.Context, instanceID string) (*models.CancellationSummary, error)
}

type rosterService interface {
	Roster(ctx context.Context, viewerID, instanceID string) (*models.Roster, error)
	ExportRoster(ctx context.Context, viewerID, instanceID, format string) (*service.RosterExport, error)
}

// InstanceHandler exposes booking and cancellation endpoints of one class instance.
type InstanceHandler struct {
	bookings      bookingService
	cancellations cancellationService
	rosters       rosterService
}

// NewInstanceHandler constructs an instance handler.
func NewInstanceHandler(bookings bookingService, cancellations cancellationService, rosters rosterService) *InstanceHandler {
	return &InstanceHandler{bookings: bookings, cancellations: cancellations, rosters: rosters}
}

// Book godoc
// @Summary Book a class instance
// @Description The booking is classified from payment_id and the caller's membership.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Instance ID"
// @Param payload body dto.BookRequest false "Payment reference"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /instances/{id}/book [post]
func (h *InstanceHandler) Book(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		return
	}
	var req dto.BookRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	enrollment, err := h.bookings.Book(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// BookStaff godoc
// @Summary Book a class instance as staff
// @Tags Bookings
// @Produce json
// @Param id path string true "Instance ID"
// @Success 201 {object} response.Envelope
// @Router /instances/{id}/book-staff [post]
func (h *InstanceHandler) BookStaff(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		return
	}
	enrollment, err := h.bookings.BookForStaff(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// BookCredit godoc
// @Summary Book a class instance with a banked credit
// @Tags Bookings
// @Produce json
// @Param id path string true "Instance ID"
// @Success 201 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Router /instances/{id}/book-credit [post]
func (h *InstanceHandler) BookCredit(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		return
	}
	enrollment, err := h.bookings.BookWithCredit(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Eligibility godoc
// @Summary Check how a booking must be paid
// @Tags Bookings
// @Produce json
// @Param id path string true "Instance ID"
// @Param student_id query string false "Student to check, management only"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/eligibility [get]
func (h *InstanceHandler) Eligibility(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		return
	}
	studentID := claims.UserID
	if other := c.Query("student_id"); other != "" && claims.Role == models.RoleManagement {
		studentID = other
	}
	eligibility, err := h.bookings.CheckEligibility(c.Request.Context(), studentID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, eligibility, nil)
}

// CancelEnrollment godoc
// @Summary Cancel the caller's booking on an instance
// @Tags Bookings
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/enrollment [delete]
func (h *InstanceHandler) CancelEnrollment(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		return
	}
	result, err := h.bookings.Cancel(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Cancel one class instance
// @Tags Instances
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/cancel [post]
func (h *InstanceHandler) Cancel(c *gin.Context) {
	summary, err := h.cancellations.CancelSingleInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// CancelFuture godoc
// @Summary Cancel an instance and every later instance of its template
// @Tags Instances
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/cancel-future [post]
func (h *InstanceHandler) CancelFuture(c *gin.Context) {
	summary, err := h.cancellations.CancelFutureInstances(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Roster godoc
// @Summary Get the roster of an instance
// @Tags Attendance
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/roster [get]
func (h *InstanceHandler) Roster(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		return
	}
	roster, err := h.rosters.Roster(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// ExportRoster godoc
// @Summary Download the roster of an instance
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Instance ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /instances/{id}/roster/export [get]
func (h *InstanceHandler) ExportRoster(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		return
	}
	doc, err := h.rosters.ExportRoster(c.Request.Context(), claims.UserID, c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, doc.Filename, doc.ContentType, doc.Data)
}

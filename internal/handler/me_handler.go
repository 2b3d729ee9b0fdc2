package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-booking-api/internal/models"
	"github.com/noah-isme/studio-booking-api/pkg/response"
)

type enrollmentLister interface {
	ListActiveEnrollments(ctx context.Context, userID string) ([]models.EnrollmentDetail, error)
}

type creditReader interface {
	GetBalance(ctx context.Context, studentID string) (*models.CreditBalance, error)
}

// MeHandler serves the caller's own bookings and credits.
type MeHandler struct {
	enrollments enrollmentLister
	credits     creditReader
}

// NewMeHandler constructs a MeHandler.
func NewMeHandler(enrollments enrollmentLister, credits creditReader) *MeHandler {
	return &MeHandler{enrollments: enrollments, credits: credits}
}

// Enrollments godoc
// @Summary List the caller's active bookings
// @Tags Me
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/enrollments [get]
func (h *MeHandler) Enrollments(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		return
	}
	enrollments, err := h.enrollments.ListActiveEnrollments(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Credits godoc
// @Summary Show the caller's credit balance and history
// @Tags Me
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/credits [get]
func (h *MeHandler) Credits(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		return
	}
	balance, err := h.credits.GetBalance(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}

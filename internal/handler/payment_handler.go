package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-booking-api/internal/dto"
	"github.com/noah-isme/studio-booking-api/internal/models"
	"github.com/noah-isme/studio-booking-api/pkg/response"
)

type paymentEventHandler interface {
	HandleEvent(ctx context.Context, req dto.PaymentEventRequest) (*models.PaymentOutcome, error)
}

// PaymentHandler receives payment gateway signals.
type PaymentHandler struct {
	payments paymentEventHandler
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(payments paymentEventHandler) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Event godoc
// @Summary Receive a payment gateway event
// @Tags Payments
// @Accept json
// @Produce json
// @Param X-Gateway-Secret header string true "Shared gateway secret"
// @Param payload body dto.PaymentEventRequest true "Payment event"
// @Success 200 {object} response.Envelope
// @Router /payments/events [post]
func (h *PaymentHandler) Event(c *gin.Context) {
	var req dto.PaymentEventRequest
	if !bindJSON(c, &req) {
		return
	}
	outcome, err := h.payments.HandleEvent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if outcome.Enrollment != nil {
		status = http.StatusCreated
	}
	response.JSON(c, status, outcome, nil)
}

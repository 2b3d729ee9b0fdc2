package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-booking-api/internal/dto"
	"github.com/noah-isme/studio-booking-api/internal/models"
	appErrors "github.com/noah-isme/studio-booking-api/pkg/errors"
	"github.com/noah-isme/studio-booking-api/pkg/logger"
)

// Outcome actions reported for payment events.
const (
	PaymentActionEnrolled = "enrolled"
	PaymentActionIgnored  = "ignored"
	PaymentActionRecorded = "recorded"
)

type dropInBooker interface {
	BookDropIn(ctx context.Context, studentID, instanceID, paymentID string) (*models.Enrollment, error)
}

// PaymentService turns payment gateway signals into bookings.
type PaymentService struct {
	booker    dropInBooker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(booker dropInBooker, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{booker: booker, validator: validate, logger: logger}
}

// HandleEvent processes one gateway event. A successful drop-in payment for an
// instance books the student; membership purchases and failed payments are
// only logged.
func (s *PaymentService) HandleEvent(ctx context.Context, req dto.PaymentEventRequest) (*models.PaymentOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment event")
	}
	event := models.PaymentEvent{
		Type:       models.PaymentEventType(req.Type),
		PaymentID:  req.PaymentID,
		StudentID:  req.StudentID,
		InstanceID: req.InstanceID,
		Product:    models.PaymentProduct(req.Product),
		Amount:     req.Amount,
	}
	log := logger.WithContext(ctx, s.logger).With(
		zap.String("payment_id", event.PaymentID),
		zap.String("student_id", event.StudentID),
		zap.String("product", string(event.Product)),
		zap.String("amount", event.Amount.StringFixed(2)),
	)
	outcome := &models.PaymentOutcome{PaymentID: event.PaymentID}

	if event.Type == models.PaymentFailed {
		log.Warn("payment failed")
		outcome.Action = PaymentActionRecorded
		return outcome, nil
	}
	if !event.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment amount must be positive")
	}
	if event.Product == models.ProductMembership {
		log.Info("membership payment received")
		outcome.Action = PaymentActionIgnored
		return outcome, nil
	}
	if event.InstanceID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "drop-in payment requires instance_id")
	}

	enrollment, err := s.booker.BookDropIn(ctx, event.StudentID, event.InstanceID, event.PaymentID)
	if err != nil {
		log.Warn("drop-in booking from payment failed", zap.String("instance_id", event.InstanceID), zap.Error(err))
		return nil, err
	}
	outcome.Action = PaymentActionEnrolled
	outcome.Enrollment = enrollment
	log.Info("drop-in payment booked", zap.String("enrollment_id", enrollment.ID))
	return outcome, nil
}

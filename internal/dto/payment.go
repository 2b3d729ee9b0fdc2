package dto

import "github.com/shopspring/decimal"

// PaymentEventRequest is the body posted by the payment gateway.
type PaymentEventRequest struct {
	Type       string          `json:"type" validate:"required,oneof=payment.succeeded payment.failed"`
	PaymentID  string          `json:"payment_id" validate:"required"`
	StudentID  string          `json:"student_id" validate:"required"`
	InstanceID string          `json:"instance_id"`
	Product    string          `json:"product" validate:"required,oneof=drop-in membership"`
	Amount     decimal.Decimal `json:"amount"`
}

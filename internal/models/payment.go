package models

import "github.com/shopspring/decimal"

// PaymentEventType is the signal reported by the payment gateway.
type PaymentEventType string

const (
	PaymentSucceeded PaymentEventType = "payment.succeeded"
	PaymentFailed    PaymentEventType = "payment.failed"
)

// PaymentProduct identifies what a payment bought.
type PaymentProduct string

const (
	ProductDropIn     PaymentProduct = "drop-in"
	ProductMembership PaymentProduct = "membership"
)

// PaymentEvent is a gateway notification about one payment.
type PaymentEvent struct {
	Type       PaymentEventType `json:"type"`
	PaymentID  string           `json:"payment_id"`
	StudentID  string           `json:"student_id"`
	InstanceID string           `json:"instance_id,omitempty"`
	Product    PaymentProduct   `json:"product"`
	Amount     decimal.Decimal  `json:"amount"`
}

// PaymentOutcome reports what the engine did with a payment event.
type PaymentOutcome struct {
	PaymentID  string      `json:"payment_id"`
	Action     string      `json:"action"`
	Enrollment *Enrollment `json:"enrollment,omitempty"`
}

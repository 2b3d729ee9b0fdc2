package dto

// BookRequest carries the optional payment reference of a booking. The
// payment type is always derived by the engine.
type BookRequest struct {
	PaymentID *string `json:"payment_id" validate:"omitempty,max=255"`
}

// MarkAttendanceRequest records the outcome of a class for one enrollment.
type MarkAttendanceRequest struct {
	Status string `json:"status" validate:"required,oneof=attended missed"`
}

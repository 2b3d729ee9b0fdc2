package models

import "time"

// Reasons recorded on issued credits.
const (
	CreditReasonStudentCancellation = "cancellation by student"
	CreditReasonClassCancelled      = "class cancelled by studio"
)

// Credit is a banked free class. At most one credit exists per source enrollment.
type Credit struct {
	ID                 string     `db:"id" json:"id"`
	StudentID          string     `db:"student_id" json:"student_id"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	Used               bool       `db:"used" json:"used"`
	UsedAt             *time.Time `db:"used_at" json:"used_at,omitempty"`
	Reason             string     `db:"reason" json:"reason"`
	SourceEnrollmentID *string    `db:"source_enrollment_id" json:"source_enrollment_id,omitempty"`
}

// CreditBalance summarises a student's credits.
type CreditBalance struct {
	StudentID        string   `json:"student_id"`
	Available        int      `json:"available"`
	AvailableCredits []Credit `json:"available_credits"`
	History          []Credit `json:"history"`
}

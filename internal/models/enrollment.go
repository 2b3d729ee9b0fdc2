package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelled"
	EnrollmentStatusAttended  EnrollmentStatus = "attended"
	EnrollmentStatusMissed    EnrollmentStatus = "missed"
)

// enrollmentTransitions lists the allowed edges. A cancelled enrollment is
// never revived: booking again creates a new record.
var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentStatusEnrolled: {EnrollmentStatusCancelled, EnrollmentStatusAttended, EnrollmentStatusMissed},
}

// CanTransitionTo reports whether s may move to next.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	for _, allowed := range enrollmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentType describes how an enrollment was funded.
type PaymentType string

const (
	PaymentTypeDropIn     PaymentType = "drop-in"
	PaymentTypeMembership PaymentType = "membership"
	PaymentTypeStaff      PaymentType = "staff"
	PaymentTypeCredit     PaymentType = "credit"
)

// Valid reports whether p is a known payment type.
func (p PaymentType) Valid() bool {
	switch p {
	case PaymentTypeDropIn, PaymentTypeMembership, PaymentTypeStaff, PaymentTypeCredit:
		return true
	}
	return false
}

// Enrollment is a user's claim on one class instance.
type Enrollment struct {
	ID                 string           `db:"id" json:"id"`
	StudentID          string           `db:"student_id" json:"student_id"`
	InstanceID         string           `db:"instance_id" json:"instance_id"`
	PaymentID          *string          `db:"payment_id" json:"payment_id,omitempty"`
	PaymentType        PaymentType      `db:"payment_type" json:"payment_type"`
	Status             EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt         time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CancelledAt        *time.Time       `db:"cancelled_at" json:"cancelled_at,omitempty"`
	AttendanceMarkedAt *time.Time       `db:"attendance_marked_at" json:"attendance_marked_at,omitempty"`
	MarkedByStaffID    *string          `db:"marked_by_staff_id" json:"marked_by_staff_id,omitempty"`
}

// EnrollmentDetail enriches Enrollment with instance and template info.
type EnrollmentDetail struct {
	Enrollment
	TemplateID        string    `db:"template_id" json:"template_id"`
	ClassName         string    `db:"class_name" json:"class_name"`
	InstructorID      string    `db:"instructor_id" json:"instructor_id"`
	StartTime         time.Time `db:"start_time" json:"start_time"`
	EndTime           time.Time `db:"end_time" json:"end_time"`
	InstanceCancelled bool      `db:"is_cancelled" json:"instance_cancelled"`
}

// RosterEntry is one student line on an instance roster.
type RosterEntry struct {
	EnrollmentID       string           `db:"enrollment_id" json:"enrollment_id"`
	StudentID          string           `db:"student_id" json:"student_id"`
	FullName           string           `db:"full_name" json:"name"`
	Email              string           `db:"email" json:"email"`
	Status             EnrollmentStatus `db:"status" json:"status"`
	PaymentType        PaymentType      `db:"payment_type" json:"payment_type"`
	AttendanceMarkedAt *time.Time       `db:"attendance_marked_at" json:"attendance_marked_at,omitempty"`
	MarkedByStaffID    *string          `db:"marked_by_staff_id" json:"marked_by_staff_id,omitempty"`
}

// Roster lists everyone holding or having used a seat on an instance.
type Roster struct {
	InstanceID    string        `json:"instance_id"`
	ClassName     string        `json:"class_name"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	MaxCapacity   int           `json:"max_capacity"`
	EnrolledCount int           `json:"enrolled_count"`
	Students      []RosterEntry `json:"students"`
}

// EnrollmentCancellation is the result of a student cancelling a booking.
type EnrollmentCancellation struct {
	Enrollment Enrollment `json:"enrollment"`
	Credit     *Credit    `json:"credit,omitempty"`
}

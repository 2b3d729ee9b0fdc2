package models

import "time"

// MembershipWindow is the validity window of a student's membership as
// exposed by the membership directory. A nil EndDate is open ended.
type MembershipWindow struct {
	ID             string     `db:"id" json:"id"`
	StudentID      string     `db:"student_id" json:"student_id"`
	MembershipType string     `db:"membership_type" json:"membership_type"`
	StartDate      time.Time  `db:"start_date" json:"start_date"`
	EndDate        *time.Time `db:"end_date" json:"end_date,omitempty"`
}

// ActiveAt reports whether the membership is valid on the calendar day of t.
// The end date is inclusive.
func (m *MembershipWindow) ActiveAt(t time.Time) bool {
	if m == nil {
		return false
	}
	day := dateOf(t)
	if day.Before(dateOf(m.StartDate)) {
		return false
	}
	return m.EndDate == nil || !day.After(dateOf(*m.EndDate))
}

// CoversClassDate reports whether a class starting at start falls on or
// before the membership end date. Only calendar dates are compared.
func (m *MembershipWindow) CoversClassDate(start time.Time) bool {
	if m == nil {
		return false
	}
	if m.EndDate == nil {
		return true
	}
	return !dateOf(start).After(dateOf(*m.EndDate))
}

func dateOf(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// BookingEligibility tells the payment collaborator how a booking must be routed.
type BookingEligibility struct {
	StudentID           string      `json:"student_id"`
	InstanceID          string      `json:"instance_id"`
	HasActiveMembership bool        `json:"has_active_membership"`
	CoveredByMembership bool        `json:"covered_by_membership"`
	MembershipEndDate   *time.Time  `json:"membership_end_date,omitempty"`
	Route               PaymentType `json:"route"`
	PaymentRequired     bool        `json:"payment_required"`
}

package models

import "time"

// InstanceIDLayout is the minute-resolution timestamp used in instance ids.
const InstanceIDLayout = "200601021504"

// InstanceID derives the identifier of the occurrence of templateID starting at start.
func InstanceID(templateID string, start time.Time) string {
	return templateID + "_" + start.Format(InstanceIDLayout)
}

// ClassInstance is one concrete, bookable occurrence of a template. Capacity
// is copied from the template when the instance is generated.
type ClassInstance struct {
	InstanceID  string    `db:"instance_id" json:"instance_id"`
	TemplateID  string    `db:"template_id" json:"template_id"`
	StartTime   time.Time `db:"start_time" json:"start_time"`
	EndTime     time.Time `db:"end_time" json:"end_time"`
	MaxCapacity int       `db:"max_capacity" json:"max_capacity"`
	IsCancelled bool      `db:"is_cancelled" json:"is_cancelled"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ClassInstanceDetail joins template data and the live enrolled count.
type ClassInstanceDetail struct {
	ClassInstance
	ClassName     string `db:"class_name" json:"class_name"`
	InstructorID  string `db:"instructor_id" json:"instructor_id"`
	EnrolledCount int    `db:"enrolled_count" json:"enrolled_count"`
	IsInstructor  bool   `db:"-" json:"is_instructor,omitempty"`
}

// EnrolledCount counts roster entries still holding a seat.
func EnrolledCount(entries []RosterEntry) int {
	n := 0
	for _, e := range entries {
		if e.Status == EnrollmentStatusEnrolled {
			n++
		}
	}
	return n
}

// IsFull reports whether enrolled reached capacity.
func IsFull(enrolled, capacity int) bool {
	return enrolled >= capacity
}

// InstanceFilter narrows listing of instances.
type InstanceFilter struct {
	From        time.Time
	TemplateIDs []string
	Limit       int
}

// CancellationSummary reports the effect of a cancellation cascade.
type CancellationSummary struct {
	InstanceIDs          []string `json:"instance_ids"`
	EnrollmentsCancelled int      `json:"enrollments_cancelled"`
	CreditsIssued        int      `json:"credits_issued"`
}

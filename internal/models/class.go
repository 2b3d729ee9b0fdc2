package models

import (
	"strings"
	"time"
)

// RecurrencePattern controls how a template expands into instances.
type RecurrencePattern string

const (
	RecurrenceOneTime  RecurrencePattern = "one-time"
	RecurrenceWeekly   RecurrencePattern = "weekly"
	RecurrenceBiWeekly RecurrencePattern = "bi-weekly"
	RecurrenceMonthly  RecurrencePattern = "monthly"
	RecurrencePopUp    RecurrencePattern = "pop-up"
)

// ParseRecurrence normalises raw input. Empty or unknown patterns fall back
// to one-time.
func ParseRecurrence(raw string) RecurrencePattern {
	switch p := RecurrencePattern(strings.ToLower(strings.TrimSpace(raw))); p {
	case RecurrenceWeekly, RecurrenceBiWeekly, RecurrenceMonthly, RecurrencePopUp, RecurrenceOneTime:
		return p
	default:
		return RecurrenceOneTime
	}
}

// ClassTemplate is a recurring class definition. Instances are generated from
// it once at creation time.
type ClassTemplate struct {
	ID                string            `db:"id" json:"id"`
	Name              string            `db:"class_name" json:"class_name"`
	Description       *string           `db:"description" json:"description,omitempty"`
	StartTime         time.Time         `db:"start_time" json:"start_time"`
	DurationMinutes   int               `db:"duration" json:"duration"`
	InstructorID      string            `db:"instructor_id" json:"instructor_id"`
	MaxCapacity       int               `db:"max_capacity" json:"max_capacity"`
	RecurrencePattern RecurrencePattern `db:"recurrence_pattern" json:"recurrence_pattern"`
	Requirements      *string           `db:"requirements" json:"requirements,omitempty"`
	RecommendedAttire *string           `db:"recommended_attire" json:"recommended_attire,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// Duration returns the class length.
func (t ClassTemplate) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// ClassTemplateFilter defines filter criteria for listing templates.
type ClassTemplateFilter struct {
	InstructorID string
	Page         int
	PageSize     int
}

// TemplateAssignment is a row of the template<->user join relations used for
// both the staff set and the manager set.
type TemplateAssignment struct {
	TemplateID string    `db:"template_id" json:"template_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ClassTemplateResult is returned after creating a template.
type ClassTemplateResult struct {
	Template  ClassTemplate   `json:"template"`
	Instances []ClassInstance `json:"instances"`
}

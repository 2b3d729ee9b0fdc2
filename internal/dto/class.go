package dto

import "time"

// CreateClassTemplateRequest defines the payload for creating a class template.
type CreateClassTemplateRequest struct {
	Name              string    `json:"class_name" validate:"required,max=120"`
	Description       *string   `json:"description"`
	StartTime         time.Time `json:"start_time" validate:"required"`
	DurationMinutes   int       `json:"duration" validate:"required,min=1,max=1440"`
	InstructorID      string    `json:"instructor_id" validate:"required"`
	MaxCapacity       int       `json:"max_capacity" validate:"required,min=1"`
	RecurrencePattern string    `json:"recurrence_pattern"`
	Requirements      *string   `json:"requirements"`
	RecommendedAttire *string   `json:"recommended_attire"`
}

// AssignStaffRequest adds a staff member to a template.
type AssignStaffRequest struct {
	StaffID string `json:"staff_id" validate:"required"`
}

// ChangeInstructorRequest reassigns a template's instructor.
type ChangeInstructorRequest struct {
	InstructorID string `json:"instructor_id" validate:"required"`
}

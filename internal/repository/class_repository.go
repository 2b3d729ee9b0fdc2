package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-booking-api/internal/models"
)

const templateColumns = `id, class_name, description, start_time, duration, instructor_id, max_capacity, recurrence_pattern, requirements, recommended_attire, created_at, updated_at`

// ClassTemplateRepository manages persistence for class templates and their
// staff and manager sets.
type ClassTemplateRepository struct {
	db *sqlx.DB
}

// NewClassTemplateRepository constructs a new template repository.
func NewClassTemplateRepository(db *sqlx.DB) *ClassTemplateRepository {
	return &ClassTemplateRepository{db: db}
}

// Create persists a template record.
func (r *ClassTemplateRepository) Create(ctx context.Context, tmpl *models.ClassTemplate) error {
	if tmpl.ID == "" {
		tmpl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = now
	}
	tmpl.UpdatedAt = now

	const query = `INSERT INTO class_templates (` + templateColumns + `) VALUES (:id, :class_name, :description, :start_time, :duration, :instructor_id, :max_capacity, :recurrence_pattern, :requirements, :recommended_attire, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, tmpl); err != nil {
		return fmt.Errorf("create class template: %w", err)
	}
	return nil
}

// FindByID returns a template by ID.
func (r *ClassTemplateRepository) FindByID(ctx context.Context, id string) (*models.ClassTemplate, error) {
	const query = `SELECT ` + templateColumns + ` FROM class_templates WHERE id = $1`
	var tmpl models.ClassTemplate
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &tmpl, query, id); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// List returns templates matching filter criteria.
func (r *ClassTemplateRepository) List(ctx context.Context, filter models.ClassTemplateFilter) ([]models.ClassTemplate, int, error) {
	base := "FROM class_templates"
	var args []interface{}
	if filter.InstructorID != "" {
		base += " WHERE instructor_id = $1"
		args = append(args, filter.InstructorID)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY start_time ASC, created_at ASC LIMIT %d OFFSET %d", templateColumns, base, size, offset)
	var templates []models.ClassTemplate
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &templates, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list class templates: %w", err)
	}

	var total int
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count class templates: %w", err)
	}
	return templates, total, nil
}

// UpdateInstructor sets the template's instructor.
func (r *ClassTemplateRepository) UpdateInstructor(ctx context.Context, id, instructorID string) error {
	const query = `UPDATE class_templates SET instructor_id = $2, updated_at = $3 WHERE id = $1`
	res, err := executor(ctx, r.db).ExecContext(ctx, query, id, instructorID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update template instructor: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddStaff assigns a staff member to a template. Repeated assignment is a no-op.
func (r *ClassTemplateRepository) AddStaff(ctx context.Context, templateID, userID string) error {
	const query = `INSERT INTO class_template_staff (template_id, user_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (template_id, user_id) DO NOTHING`
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, templateID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add template staff: %w", err)
	}
	return nil
}

// RemoveStaff unassigns a staff member from a template.
func (r *ClassTemplateRepository) RemoveStaff(ctx context.Context, templateID, userID string) error {
	const query = `DELETE FROM class_template_staff WHERE template_id = $1 AND user_id = $2`
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, templateID, userID); err != nil {
		return fmt.Errorf("remove template staff: %w", err)
	}
	return nil
}

// ListStaff returns the users assigned to a template.
func (r *ClassTemplateRepository) ListStaff(ctx context.Context, templateID string) ([]models.User, error) {
	const query = `SELECT u.id, u.email, u.full_name, u.role, u.staff_type, u.created_at, u.updated_at
        FROM class_template_staff s
        JOIN users u ON u.id = s.user_id
        WHERE s.template_id = $1
        ORDER BY u.full_name ASC`
	var users []models.User
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &users, query, templateID); err != nil {
		return nil, fmt.Errorf("list template staff: %w", err)
	}
	return users, nil
}

// IsStaffAssigned reports whether userID is in the template's staff set.
func (r *ClassTemplateRepository) IsStaffAssigned(ctx context.Context, templateID, userID string) (bool, error) {
	const query = `SELECT 1 FROM class_template_staff WHERE template_id = $1 AND user_id = $2 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &exists, query, templateID, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check template staff: %w", err)
	}
	return true, nil
}

// ListIDsForStaff returns the IDs of templates the user teaches or is assigned to.
func (r *ClassTemplateRepository) ListIDsForStaff(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT template_id FROM class_template_staff WHERE user_id = $1
        UNION
        SELECT id FROM class_templates WHERE instructor_id = $1`
	var ids []string
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &ids, query, userID); err != nil {
		return nil, fmt.Errorf("list staff templates: %w", err)
	}
	return ids, nil
}

// AddManager records a management user as manager of a template.
func (r *ClassTemplateRepository) AddManager(ctx context.Context, templateID, userID string) error {
	const query = `INSERT INTO class_template_managers (template_id, user_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (template_id, user_id) DO NOTHING`
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, templateID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add template manager: %w", err)
	}
	return nil
}

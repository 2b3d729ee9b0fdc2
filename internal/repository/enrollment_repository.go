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

const enrollmentColumns = `id, student_id, instance_id, payment_id, payment_type, status, enrolled_at, cancelled_at, attendance_marked_at, marked_by_staff_id`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create persists a new enrollment record. A second active enrollment for the
// same student and instance yields ErrDuplicate.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	const query = `INSERT INTO enrollments (` + enrollmentColumns + `)
        VALUES (:id, :student_id, :instance_id, :payment_id, :payment_type, :status, :enrolled_at, :cancelled_at, :attendance_marked_at, :marked_by_staff_id)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, enrollment); err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindActive returns the student's enrolled record for an instance, or
// sql.ErrNoRows when there is none.
func (r *EnrollmentRepository) FindActive(ctx context.Context, studentID, instanceID string) (*models.Enrollment, error) {
	const query = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 AND instance_id = $2 AND status = $3 LIMIT 1`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &enrollment, query, studentID, instanceID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// CountActiveByInstance counts enrollments holding a seat on the instance.
func (r *EnrollmentRepository) CountActiveByInstance(ctx context.Context, instanceID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE instance_id = $1 AND status = $2`
	var count int
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &count, query, instanceID, models.EnrollmentStatusEnrolled); err != nil {
		return 0, fmt.Errorf("count instance enrollments: %w", err)
	}
	return count, nil
}

// ListActiveByInstance returns enrolled records of an instance in booking order.
func (r *EnrollmentRepository) ListActiveByInstance(ctx context.Context, instanceID string) ([]models.Enrollment, error) {
	const query = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE instance_id = $1 AND status = $2 ORDER BY enrolled_at ASC`
	var enrollments []models.Enrollment
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &enrollments, query, instanceID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list instance enrollments: %w", err)
	}
	return enrollments, nil
}

// ListActiveByStudent returns the student's enrolled records with instance and
// template context, soonest class first.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.instance_id, e.payment_id, e.payment_type, e.status, e.enrolled_at, e.cancelled_at, e.attendance_marked_at, e.marked_by_staff_id,
        i.template_id, t.class_name, t.instructor_id, i.start_time, i.end_time, i.is_cancelled
        FROM enrollments e
        JOIN class_instances i ON i.instance_id = e.instance_id
        JOIN class_templates t ON t.id = i.template_id
        WHERE e.student_id = $1 AND e.status = $2
        ORDER BY i.start_time ASC`
	var enrollments []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &enrollments, query, studentID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// Cancel moves an enrolled record to cancelled. It returns sql.ErrNoRows when
// the record is not currently enrolled.
func (r *EnrollmentRepository) Cancel(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE enrollments SET status = $2, cancelled_at = $3 WHERE id = $1 AND status = $4`
	res, err := executor(ctx, r.db).ExecContext(ctx, query, id, models.EnrollmentStatusCancelled, at, models.EnrollmentStatusEnrolled)
	if err != nil {
		return fmt.Errorf("cancel enrollment: %w", err)
	}
	return requireAffected(res)
}

// MarkAttendance records the attendance outcome of an enrolled record.
func (r *EnrollmentRepository) MarkAttendance(ctx context.Context, id string, status models.EnrollmentStatus, staffID string, at time.Time) error {
	const query = `UPDATE enrollments SET status = $2, attendance_marked_at = $3, marked_by_staff_id = $4 WHERE id = $1 AND status = $5`
	res, err := executor(ctx, r.db).ExecContext(ctx, query, id, status, at, staffID, models.EnrollmentStatusEnrolled)
	if err != nil {
		return fmt.Errorf("mark attendance: %w", err)
	}
	return requireAffected(res)
}

// ListRoster returns every enrolled, attended or missed student of an instance.
func (r *EnrollmentRepository) ListRoster(ctx context.Context, instanceID string) ([]models.RosterEntry, error) {
	const query = `SELECT e.id AS enrollment_id, e.student_id, u.full_name, u.email, e.status, e.payment_type, e.attendance_marked_at, e.marked_by_staff_id
        FROM enrollments e
        JOIN users u ON u.id = e.student_id
        WHERE e.instance_id = $1 AND e.status IN ($2, $3, $4)
        ORDER BY u.full_name ASC`
	var entries []models.RosterEntry
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &entries, query, instanceID,
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusAttended, models.EnrollmentStatusMissed); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return entries, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-booking-api/internal/models"
)

const creditColumns = `id, student_id, created_at, used, used_at, reason, source_enrollment_id`

// CreditRepository persists banked class credits.
type CreditRepository struct {
	db *sqlx.DB
}

// NewCreditRepository constructs the repository.
func NewCreditRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// Create inserts a credit. A second credit for the same source enrollment is
// not written and yields ErrDuplicate, leaving the transaction usable.
func (r *CreditRepository) Create(ctx context.Context, credit *models.Credit) error {
	if credit.ID == "" {
		credit.ID = uuid.NewString()
	}
	if credit.CreatedAt.IsZero() {
		credit.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO credits (` + creditColumns + `) VALUES (:id, :student_id, :created_at, :used, :used_at, :reason, :source_enrollment_id)
        ON CONFLICT (source_enrollment_id) DO NOTHING`
	res, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, credit)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create credit: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	return nil
}

// FindBySourceEnrollment returns the credit issued for an enrollment.
func (r *CreditRepository) FindBySourceEnrollment(ctx context.Context, enrollmentID string) (*models.Credit, error) {
	const query = `SELECT ` + creditColumns + ` FROM credits WHERE source_enrollment_id = $1`
	var credit models.Credit
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &credit, query, enrollmentID); err != nil {
		return nil, err
	}
	return &credit, nil
}

// OldestUnused locks and returns the student's oldest unused credit.
func (r *CreditRepository) OldestUnused(ctx context.Context, studentID string) (*models.Credit, error) {
	const query = `SELECT ` + creditColumns + ` FROM credits WHERE student_id = $1 AND used = FALSE ORDER BY created_at ASC, id ASC LIMIT 1 FOR UPDATE`
	var credit models.Credit
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &credit, query, studentID); err != nil {
		return nil, err
	}
	return &credit, nil
}

// MarkUsed flips an unused credit to used.
func (r *CreditRepository) MarkUsed(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE credits SET used = TRUE, used_at = $2 WHERE id = $1 AND used = FALSE`
	res, err := executor(ctx, r.db).ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("mark credit used: %w", err)
	}
	return requireAffected(res)
}

// CountUnused returns the number of credits the student can still spend.
func (r *CreditRepository) CountUnused(ctx context.Context, studentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM credits WHERE student_id = $1 AND used = FALSE`
	var count int
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &count, query, studentID); err != nil {
		return 0, fmt.Errorf("count credits: %w", err)
	}
	return count, nil
}

// ListByStudent returns all credits of a student, newest first.
func (r *CreditRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Credit, error) {
	const query = `SELECT ` + creditColumns + ` FROM credits WHERE student_id = $1 ORDER BY created_at DESC`
	var credits []models.Credit
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &credits, query, studentID); err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	return credits, nil
}

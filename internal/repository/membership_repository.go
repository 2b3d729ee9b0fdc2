package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-booking-api/internal/models"
)

// MembershipRepository reads membership windows maintained by the payment side.
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository constructs the repository.
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// FindActive returns the membership valid at asOf with the latest end date,
// or nil when the student has none.
func (r *MembershipRepository) FindActive(ctx context.Context, studentID string, asOf time.Time) (*models.MembershipWindow, error) {
	const query = `SELECT id, student_id, membership_type, start_date, end_date FROM memberships
        WHERE student_id = $1 AND start_date <= $2::date AND (end_date IS NULL OR end_date >= $2::date)
        ORDER BY end_date DESC NULLS FIRST
        LIMIT 1`
	var membership models.MembershipWindow
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &membership, query, studentID, asOf); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active membership: %w", err)
	}
	return &membership, nil
}

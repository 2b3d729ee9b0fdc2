package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-booking-api/internal/models"
)

const instanceColumns = `instance_id, template_id, start_time, end_time, max_capacity, is_cancelled, created_at`

// InstanceRepository persists generated class instances.
type InstanceRepository struct {
	db *sqlx.DB
}

// NewInstanceRepository constructs the repository.
func NewInstanceRepository(db *sqlx.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// BulkCreate inserts instances, skipping any whose identifier already exists.
// It returns how many rows were written.
func (r *InstanceRepository) BulkCreate(ctx context.Context, instances []models.ClassInstance) (int, error) {
	exec := executor(ctx, r.db)
	now := time.Now().UTC()
	const query = `INSERT INTO class_instances (` + instanceColumns + `) VALUES (:instance_id, :template_id, :start_time, :end_time, :max_capacity, :is_cancelled, :created_at) ON CONFLICT (instance_id) DO NOTHING`

	inserted := 0
	for i := range instances {
		if instances[i].CreatedAt.IsZero() {
			instances[i].CreatedAt = now
		}
		res, err := sqlx.NamedExecContext(ctx, exec, query, &instances[i])
		if err != nil {
			return inserted, fmt.Errorf("bulk insert instance %s: %w", instances[i].InstanceID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// FindByID returns an instance by its identifier.
func (r *InstanceRepository) FindByID(ctx context.Context, id string) (*models.ClassInstance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM class_instances WHERE instance_id = $1`
	var instance models.ClassInstance
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &instance, query, id); err != nil {
		return nil, err
	}
	return &instance, nil
}

// LockByID returns an instance and holds a row lock on it until the
// surrounding transaction ends.
func (r *InstanceRepository) LockByID(ctx context.Context, id string) (*models.ClassInstance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM class_instances WHERE instance_id = $1 FOR UPDATE`
	var instance models.ClassInstance
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &instance, query, id); err != nil {
		return nil, err
	}
	return &instance, nil
}

// ListFutureByTemplate locks and returns the non-cancelled instances of a
// template starting at or after from, ordered by start time.
func (r *InstanceRepository) ListFutureByTemplate(ctx context.Context, templateID string, from time.Time) ([]models.ClassInstance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM class_instances
        WHERE template_id = $1 AND is_cancelled = FALSE AND start_time >= $2
        ORDER BY start_time ASC
        FOR UPDATE`
	var instances []models.ClassInstance
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &instances, query, templateID, from); err != nil {
		return nil, fmt.Errorf("list future instances: %w", err)
	}
	return instances, nil
}

// SetCancelled flags an instance as cancelled.
func (r *InstanceRepository) SetCancelled(ctx context.Context, id string) error {
	const query = `UPDATE class_instances SET is_cancelled = TRUE WHERE instance_id = $1`
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("cancel instance: %w", err)
	}
	return nil
}

// ListUpcoming returns non-cancelled instances starting at or after
// filter.From together with their template name and live enrolled count.
func (r *InstanceRepository) ListUpcoming(ctx context.Context, filter models.InstanceFilter) ([]models.ClassInstanceDetail, error) {
	conditions := []string{"i.is_cancelled = FALSE", "i.start_time >= $1"}
	args := []interface{}{filter.From}

	if len(filter.TemplateIDs) > 0 {
		placeholders := make([]string, len(filter.TemplateIDs))
		for idx, id := range filter.TemplateIDs {
			args = append(args, id)
			placeholders[idx] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("i.template_id IN (%s)", strings.Join(placeholders, ", ")))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := fmt.Sprintf(`SELECT i.instance_id, i.template_id, i.start_time, i.end_time, i.max_capacity, i.is_cancelled, i.created_at,
        t.class_name, t.instructor_id,
        (SELECT COUNT(*) FROM enrollments e WHERE e.instance_id = i.instance_id AND e.status = 'enrolled') AS enrolled_count
        FROM class_instances i
        JOIN class_templates t ON t.id = i.template_id
        WHERE %s
        ORDER BY i.start_time ASC
        LIMIT %d`, strings.Join(conditions, " AND "), limit)

	var instances []models.ClassInstanceDetail
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &instances, query, args...); err != nil {
		return nil, fmt.Errorf("list upcoming instances: %w", err)
	}
	return instances, nil
}

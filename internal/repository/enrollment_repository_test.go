package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-booking-api/internal/models"
)

func TestEnrollmentRepositoryCreateMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Enrollment{StudentID: "stu-1", InstanceID: "inst-1", PaymentType: models.PaymentTypeDropIn})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "inst-1", nil, models.PaymentTypeStaff, models.EnrollmentStatusEnrolled, sqlmock.AnyArg(), nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{StudentID: "stu-1", InstanceID: "inst-1", PaymentType: models.PaymentTypeStaff}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountActiveByInstance(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE instance_id = $1 AND status = $2")).
		WithArgs("inst-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountActiveByInstance(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCancelRequiresEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta("UPDATE enrollments SET status = $2, cancelled_at = $3 WHERE id = $1 AND status = $4")
	mock.ExpectExec(query).
		WithArgs("enr-1", models.EnrollmentStatusCancelled, at, models.EnrollmentStatusEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs("enr-1", models.EnrollmentStatusCancelled, at, models.EnrollmentStatusEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Cancel(context.Background(), "enr-1", at))
	assert.ErrorIs(t, repo.Cancel(context.Background(), "enr-1", at), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListActiveByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	start := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "student_id", "instance_id", "payment_id", "payment_type", "status", "enrolled_at", "cancelled_at", "attendance_marked_at", "marked_by_staff_id", "template_id", "class_name", "instructor_id", "start_time", "end_time", "is_cancelled"}).
		AddRow("enr-1", "stu-1", "tmpl-1_202401081000", "pay-1", "drop-in", "enrolled", start.Add(-time.Hour), nil, nil, nil, "tmpl-1", "Morning Flow", "staff-1", start, start.Add(time.Hour), false)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.student_id = $1 AND e.status = $2")).
		WithArgs("stu-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(rows)

	enrollments, err := repo.ListActiveByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, "Morning Flow", enrollments[0].ClassName)
	require.NotNil(t, enrollments[0].PaymentID)
	assert.Equal(t, "pay-1", *enrollments[0].PaymentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkAttendance(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	at := time.Date(2024, 1, 1, 11, 30, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, attendance_marked_at = $3, marked_by_staff_id = $4 WHERE id = $1 AND status = $5")).
		WithArgs("enr-1", models.EnrollmentStatusMissed, at, "staff-1", models.EnrollmentStatusEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkAttendance(context.Background(), "enr-1", models.EnrollmentStatusMissed, "staff-1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

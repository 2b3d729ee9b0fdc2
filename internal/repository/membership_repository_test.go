package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembershipRepositoryFindActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMembershipRepository(db)

	asOf := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta("start_date <= $2::date AND (end_date IS NULL OR end_date >= $2::date)")

	mock.ExpectQuery(query).WithArgs("stu-1", asOf).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "membership_type", "start_date", "end_date"}).
			AddRow("m-1", "stu-1", "monthly", asOf.AddDate(0, 0, -14), end))
	mock.ExpectQuery(query).WithArgs("stu-2", asOf).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "membership_type", "start_date", "end_date"}))

	membership, err := repo.FindActive(context.Background(), "stu-1", asOf)
	require.NoError(t, err)
	require.NotNil(t, membership)
	assert.True(t, membership.ActiveAt(asOf))

	membership, err = repo.FindActive(context.Background(), "stu-2", asOf)
	require.NoError(t, err)
	assert.Nil(t, membership)
	require.NoError(t, mock.ExpectationsWereMet())
}

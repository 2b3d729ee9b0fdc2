package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-booking-api/internal/models"
	appErrors "github.com/noah-isme/studio-booking-api/pkg/errors"
)

func cancelledDropIn(h *harness, id, studentID string) *models.Enrollment {
	at := h.clock.Now()
	e := models.Enrollment{
		ID:          id,
		StudentID:   studentID,
		InstanceID:  "yoga_202401020900",
		PaymentID:   strPtr("pay-" + id),
		PaymentType: models.PaymentTypeDropIn,
		Status:      models.EnrollmentStatusCancelled,
		EnrolledAt:  at.Add(-time.Hour),
		CancelledAt: &at,
	}
	h.store.enrollments = append(h.store.enrollments, e)
	return &e
}

func TestCreditServiceIssueIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.addUser("ana", models.RoleStudent)
	enrollment := cancelledDropIn(h, "enr-a", "ana")
	ctx := context.Background()

	first, err := h.credits.IssueForCancellation(ctx, enrollment, models.CreditReasonStudentCancellation)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := h.credits.AddCreditForCancellation(ctx, "enr-a")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, h.store.credits, 1)
}

func TestCreditServiceIssueEligibility(t *testing.T) {
	h := newHarness(t)
	h.addUser("ana", models.RoleStudent)
	h.addUser("bo", models.RoleStaff)
	ctx := context.Background()

	membership := cancelledDropIn(h, "enr-m", "ana")
	membership.PaymentType = models.PaymentTypeMembership

	active := cancelledDropIn(h, "enr-e", "ana")
	active.Status = models.EnrollmentStatusEnrolled

	staffOwned := cancelledDropIn(h, "enr-s", "bo")

	for name, enrollment := range map[string]*models.Enrollment{
		"membership payment": membership,
		"not cancelled":      active,
		"staff owner":        staffOwned,
		"nil enrollment":     nil,
	} {
		credit, err := h.credits.IssueForCancellation(ctx, enrollment, models.CreditReasonStudentCancellation)
		require.NoError(t, err, name)
		assert.Nil(t, credit, name)
	}
	assert.Empty(t, h.store.credits)
}

func TestCreditServiceAddCreditForUnknownEnrollment(t *testing.T) {
	h := newHarness(t)

	_, err := h.credits.AddCreditForCancellation(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrEnrollmentNotFound))
}

func TestCreditServiceUseCreditOldestFirst(t *testing.T) {
	h := newHarness(t)
	h.addUser("ana", models.RoleStudent)
	newer := h.addCredit("ana", time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC))
	older := h.addCredit("ana", time.Date(2023, 11, 2, 0, 0, 0, 0, time.UTC))
	h.addCredit("ben", time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	used, err := h.credits.UseCredit(ctx, "ana")
	require.NoError(t, err)
	require.NotNil(t, used)
	assert.Equal(t, older.ID, used.ID)
	assert.True(t, used.Used)
	require.NotNil(t, used.UsedAt)

	used, err = h.credits.UseCredit(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, used.ID)

	used, err = h.credits.UseCredit(ctx, "ana")
	require.NoError(t, err)
	assert.Nil(t, used)
}

func TestCreditServiceBalance(t *testing.T) {
	h := newHarness(t)
	h.addCredit("ana", time.Date(2023, 11, 2, 0, 0, 0, 0, time.UTC))
	latest := h.addCredit("ana", time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := h.credits.UseCredit(ctx, "ana")
	require.NoError(t, err)

	balance, err := h.credits.GetBalance(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 1, balance.Available)
	require.Len(t, balance.History, 2)
	assert.Equal(t, latest.ID, balance.History[0].ID, "history is newest first")

	require.Len(t, balance.AvailableCredits, 1)
	assert.Equal(t, latest.ID, balance.AvailableCredits[0].ID)

	count, err := h.credits.GetCreditCount(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

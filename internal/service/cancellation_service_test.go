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

func weeklyStarts(first time.Time, n int) []time.Time {
	starts := make([]time.Time, n)
	for i := range starts {
		starts[i] = first.AddDate(0, 0, 7*i)
	}
	return starts
}

func TestCancellationServiceCancelFutureInstances(t *testing.T) {
	h := newHarness(t)
	h.addUser("ines", models.RoleStaff)
	h.addUser("ana", models.RoleStudent)
	h.addUser("ben", models.RoleStudent)
	ids := h.addClass("yoga", "ines", 5, weeklyStarts(tuesday, 5)...)
	ctx := context.Background()

	_, err := h.booking.Book(ctx, "ana", ids[1], dropIn("pay-1"))
	require.NoError(t, err)
	_, err = h.booking.Book(ctx, "ana", ids[3], dropIn("pay-2"))
	require.NoError(t, err)
	_, err = h.booking.Book(ctx, "ben", ids[4], dropIn(""))
	require.NoError(t, err)

	summary, err := h.cancellations.CancelFutureInstances(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2], ids[3], ids[4]}, summary.InstanceIDs)
	assert.Equal(t, 2, summary.EnrollmentsCancelled)
	assert.Equal(t, 1, summary.CreditsIssued)

	for i, id := range ids {
		assert.Equal(t, i >= 2, h.store.instances[id].IsCancelled, id)
	}

	active, err := h.booking.ListActiveEnrollments(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, ids[1], active[0].InstanceID)

	balance, err := h.credits.GetBalance(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, balance.History, 1)
	assert.Equal(t, models.CreditReasonClassCancelled, balance.History[0].Reason)
}

func TestCancellationServiceCancelFutureSkipsCancelled(t *testing.T) {
	h := newHarness(t)
	h.addUser("ines", models.RoleStaff)
	ids := h.addClass("yoga", "ines", 5, weeklyStarts(tuesday, 4)...)
	ctx := context.Background()

	_, err := h.cancellations.CancelSingleInstance(ctx, ids[2])
	require.NoError(t, err)

	summary, err := h.cancellations.CancelFutureInstances(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1], ids[3]}, summary.InstanceIDs)
}

func TestCancellationServiceCancelSingleInstance(t *testing.T) {
	h := newHarness(t)
	h.addUser("ines", models.RoleStaff)
	h.addUser("ana", models.RoleStudent)
	h.addUser("ben", models.RoleStudent)
	ids := h.addClass("yoga", "ines", 5, weeklyStarts(tuesday, 2)...)
	ctx := context.Background()

	_, err := h.booking.Book(ctx, "ana", ids[0], dropIn("pay-1"))
	require.NoError(t, err)
	_, err = h.booking.Book(ctx, "ben", ids[0], dropIn("pay-2"))
	require.NoError(t, err)

	summary, err := h.cancellations.CancelSingleInstance(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0]}, summary.InstanceIDs)
	assert.Equal(t, 2, summary.EnrollmentsCancelled)
	assert.Equal(t, 2, summary.CreditsIssued)
	assert.True(t, h.store.instances[ids[0]].IsCancelled)
	assert.False(t, h.store.instances[ids[1]].IsCancelled)

	again, err := h.cancellations.CancelSingleInstance(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, again.InstanceIDs)
	assert.Len(t, h.store.credits, 2)

	_, err = h.booking.Book(ctx, "ana", ids[0], dropIn("pay-3"))
	assert.True(t, errors.Is(err, appErrors.ErrInstanceCancelled))
}

func TestCancellationServiceAlreadyStarted(t *testing.T) {
	h := newHarness(t)
	h.addUser("ines", models.RoleStaff)
	ids := h.addClass("yoga", "ines", 5, weeklyStarts(tuesday, 2)...)
	h.clock.t = tuesday
	ctx := context.Background()

	_, err := h.cancellations.CancelSingleInstance(ctx, ids[0])
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyStarted))

	_, err = h.cancellations.CancelFutureInstances(ctx, ids[0])
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyStarted))
	assert.False(t, h.store.instances[ids[1]].IsCancelled)

	_, err = h.cancellations.CancelSingleInstance(ctx, "yoga_209901010900")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCancellationServiceCascadeIsAtomic(t *testing.T) {
	h := newHarness(t)
	h.addUser("ines", models.RoleStaff)
	h.addUser("ana", models.RoleStudent)
	ids := h.addClass("yoga", "ines", 5, weeklyStarts(tuesday, 3)...)
	ctx := context.Background()

	_, err := h.booking.Book(ctx, "ana", ids[0], dropIn("pay-1"))
	require.NoError(t, err)
	last, err := h.booking.Book(ctx, "ana", ids[2], dropIn("pay-2"))
	require.NoError(t, err)
	h.store.failCancel[last.ID] = errors.New("connection reset")

	_, err = h.cancellations.CancelFutureInstances(ctx, ids[0])
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))

	for _, id := range ids {
		assert.False(t, h.store.instances[id].IsCancelled, id)
	}
	assert.Equal(t, 2, len(h.store.enrollments))
	for _, e := range h.store.enrollments {
		assert.Equal(t, models.EnrollmentStatusEnrolled, e.Status)
	}
	assert.Empty(t, h.store.credits)
}

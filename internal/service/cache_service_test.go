package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-booking-api/internal/models"
)

type failingCache struct{ fakeCache }

func (c *failingCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return errors.New("redis down")
}

func TestUpcomingKey(t *testing.T) {
	assert.Equal(t, "instances:upcoming:all", UpcomingKey(nil))
	assert.Equal(t, "instances:upcoming:a,b", UpcomingKey([]string{"b", "a"}))
}

func TestCacheServiceRoundTrip(t *testing.T) {
	repo := newFakeCache()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, zap.NewNop(), true)
	ctx := context.Background()
	key := UpcomingKey(nil)

	_, ok := svc.GetUpcoming(ctx, key)
	assert.False(t, ok)

	listing := []models.ClassInstanceDetail{{
		ClassInstance: models.ClassInstance{InstanceID: "yoga_202401020900", TemplateID: "yoga", StartTime: tuesday, EndTime: tuesday.Add(time.Hour), MaxCapacity: 5},
		ClassName:     "Yoga",
		EnrolledCount: 2,
	}}
	svc.SetUpcoming(ctx, key, listing)

	got, ok := svc.GetUpcoming(ctx, key)
	require.True(t, ok)
	assert.Equal(t, listing, got)

	svc.InvalidateUpcoming(ctx)
	_, ok = svc.GetUpcoming(ctx, key)
	assert.False(t, ok)

	assert.Equal(t, float64(1), counterValue(t, metrics, "cache_hits_total"))
	assert.Equal(t, float64(2), counterValue(t, metrics, "cache_misses_total"))
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newFakeCache()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)
	ctx := context.Background()

	svc.SetUpcoming(ctx, "k", []models.ClassInstanceDetail{})
	_, ok := svc.GetUpcoming(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, repo.gets)
	assert.Empty(t, repo.entries)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	nilSvc.InvalidateUpcoming(ctx)
}

func TestCacheServiceSwallowsFailures(t *testing.T) {
	repo := &failingCache{fakeCache: *newFakeCache()}
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	assert.NotPanics(t, func() {
		svc.SetUpcoming(context.Background(), "k", []models.ClassInstanceDetail{})
	})
	_, ok := svc.GetUpcoming(context.Background(), "k")
	assert.False(t, ok)
}

func counterValue(t *testing.T, m *MetricsService, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

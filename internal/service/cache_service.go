package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studio-booking-api/internal/models"
	appErrors "github.com/noah-isme/studio-booking-api/pkg/errors"
)

const upcomingCachePrefix = "instances:upcoming"

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService caches upcoming-instance listings. Every operation is a no-op
// when caching is disabled, and failures never surface to callers of the
// booking engine beyond a log line.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// UpcomingKey renders the cache key of a listing scoped to templateIDs.
func UpcomingKey(templateIDs []string) string {
	if len(templateIDs) == 0 {
		return upcomingCachePrefix + ":all"
	}
	ids := append([]string(nil), templateIDs...)
	sort.Strings(ids)
	return fmt.Sprintf("%s:%s", upcomingCachePrefix, strings.Join(ids, ","))
}

// GetUpcoming returns a cached listing; ok is false on a miss.
func (s *CacheService) GetUpcoming(ctx context.Context, key string) ([]models.ClassInstanceDetail, bool) {
	if !s.Enabled() {
		return nil, false
	}
	var instances []models.ClassInstanceDetail
	start := time.Now()
	err := s.repo.Get(ctx, key, &instances)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return instances, true
}

// SetUpcoming stores a listing under key.
func (s *CacheService) SetUpcoming(ctx context.Context, key string, instances []models.ClassInstanceDetail) {
	if !s.Enabled() {
		return
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, instances, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateUpcoming drops every cached listing. Called after any mutation
// that changes instance availability or enrolled counts.
func (s *CacheService) InvalidateUpcoming(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.DeleteByPattern(ctx, upcomingCachePrefix+":*"); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("prefix", upcomingCachePrefix), zap.Error(err))
	}
}

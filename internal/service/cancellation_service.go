package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studio-booking-api/internal/models"
	"github.com/noah-isme/studio-booking-api/internal/schedule"
	appErrors "github.com/noah-isme/studio-booking-api/pkg/errors"
	"github.com/noah-isme/studio-booking-api/pkg/logger"
)

type cancellationInstanceRepository interface {
	LockByID(ctx context.Context, id string) (*models.ClassInstance, error)
	ListFutureByTemplate(ctx context.Context, templateID string, from time.Time) ([]models.ClassInstance, error)
	SetCancelled(ctx context.Context, id string) error
}

type cancellationEnrollmentRepository interface {
	ListActiveByInstance(ctx context.Context, instanceID string) ([]models.Enrollment, error)
	Cancel(ctx context.Context, id string, at time.Time) error
}

// CancellationService cancels class instances and cascades to their enrollments.
type CancellationService struct {
	tx          transactor
	instances   cancellationInstanceRepository
	enrollments cancellationEnrollmentRepository
	credits     *CreditService
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	now         clock
}

// NewCancellationService constructs a CancellationService.
func NewCancellationService(tx transactor, instances cancellationInstanceRepository, enrollments cancellationEnrollmentRepository, credits *CreditService, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *CancellationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CancellationService{
		tx:          tx,
		instances:   instances,
		enrollments: enrollments,
		credits:     credits,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		now:         schedule.Now,
	}
}

// CancelSingleInstance cancels one instance that has not started yet, along
// with every enrolled booking on it.
func (s *CancellationService) CancelSingleInstance(ctx context.Context, instanceID string) (*models.CancellationSummary, error) {
	var summary models.CancellationSummary
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		summary = models.CancellationSummary{InstanceIDs: []string{}}
		instance, err := s.lockInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		if !instance.StartTime.After(s.now()) {
			return appErrors.Clone(appErrors.ErrAlreadyStarted, "")
		}
		if instance.IsCancelled {
			return nil
		}
		return s.cascade(ctx, instance, &summary)
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, "instance", &summary)
	return &summary, nil
}

// CancelFutureInstances cancels the given instance and every later,
// non-cancelled instance of the same template. The batch is all or nothing.
func (s *CancellationService) CancelFutureInstances(ctx context.Context, instanceID string) (*models.CancellationSummary, error) {
	var summary models.CancellationSummary
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		summary = models.CancellationSummary{InstanceIDs: []string{}}
		anchor, err := s.lockInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		if !anchor.StartTime.After(s.now()) {
			return appErrors.Clone(appErrors.ErrAlreadyStarted, "")
		}
		// Targets come back locked and already limited to non-cancelled rows,
		// so the per-instance IsCancelled check of CancelSingleInstance is not
		// repeated here.
		targets, err := s.instances.ListFutureByTemplate(ctx, anchor.TemplateID, anchor.StartTime)
		if err != nil {
			return appErrors.Internal(err, "failed to list future instances")
		}
		for i := range targets {
			if err := s.cascade(ctx, &targets[i], &summary); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, "series", &summary)
	return &summary, nil
}

func (s *CancellationService) lockInstance(ctx context.Context, instanceID string) (*models.ClassInstance, error) {
	instance, err := s.instances.LockByID(ctx, instanceID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class instance not found")
		}
		return nil, appErrors.Internal(err, "failed to load class instance")
	}
	return instance, nil
}

// cascade flags the instance cancelled and cancels its enrolled bookings,
// issuing credits to eligible ones.
func (s *CancellationService) cascade(ctx context.Context, instance *models.ClassInstance, summary *models.CancellationSummary) error {
	if err := s.instances.SetCancelled(ctx, instance.InstanceID); err != nil {
		return appErrors.Internal(err, "failed to cancel class instance")
	}
	summary.InstanceIDs = append(summary.InstanceIDs, instance.InstanceID)

	enrollments, err := s.enrollments.ListActiveByInstance(ctx, instance.InstanceID)
	if err != nil {
		return appErrors.Internal(err, "failed to list enrollments")
	}
	at := s.now()
	for i := range enrollments {
		enrollment := &enrollments[i]
		if err := s.enrollments.Cancel(ctx, enrollment.ID, at); err != nil {
			return appErrors.Internal(err, "failed to cancel enrollment")
		}
		enrollment.Status = models.EnrollmentStatusCancelled
		enrollment.CancelledAt = &at
		summary.EnrollmentsCancelled++

		credit, err := s.credits.IssueForCancellation(ctx, enrollment, models.CreditReasonClassCancelled)
		if err != nil {
			return err
		}
		if credit != nil {
			summary.CreditsIssued++
		}
	}
	return nil
}

func (s *CancellationService) finish(ctx context.Context, origin string, summary *models.CancellationSummary) {
	s.metrics.RecordCancellations(origin, summary.EnrollmentsCancelled)
	s.cache.InvalidateUpcoming(ctx)
	logger.WithContext(ctx, s.logger).Info("class instances cancelled",
		zap.String("origin", origin),
		zap.Strings("instance_ids", summary.InstanceIDs),
		zap.Int("enrollments_cancelled", summary.EnrollmentsCancelled),
		zap.Int("credits_issued", summary.CreditsIssued),
	)
}

package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studio-booking-api/internal/models"
	"github.com/noah-isme/studio-booking-api/internal/repository"
	"github.com/noah-isme/studio-booking-api/internal/schedule"
	appErrors "github.com/noah-isme/studio-booking-api/pkg/errors"
)

type creditRepository interface {
	Create(ctx context.Context, credit *models.Credit) error
	FindBySourceEnrollment(ctx context.Context, enrollmentID string) (*models.Credit, error)
	OldestUnused(ctx context.Context, studentID string) (*models.Credit, error)
	MarkUsed(ctx context.Context, id string, at time.Time) error
	CountUnused(ctx context.Context, studentID string) (int, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Credit, error)
}

type creditEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

// CreditService applies the credit issuance policy and spends credits.
type CreditService struct {
	tx          transactor
	credits     creditRepository
	enrollments creditEnrollmentReader
	users       userReader
	metrics     *MetricsService
	logger      *zap.Logger
	now         clock
}

// NewCreditService constructs a CreditService.
func NewCreditService(tx transactor, credits creditRepository, enrollments creditEnrollmentReader, users userReader, metrics *MetricsService, logger *zap.Logger) *CreditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditService{
		tx:          tx,
		credits:     credits,
		enrollments: enrollments,
		users:       users,
		metrics:     metrics,
		logger:      logger,
		now:         schedule.Now,
	}
}

// IssueForCancellation grants a credit for a cancelled enrollment when it was
// paid as a drop-in by a student. It returns nil when the enrollment is not
// eligible and the existing credit when one was already issued for it.
func (s *CreditService) IssueForCancellation(ctx context.Context, enrollment *models.Enrollment, reason string) (*models.Credit, error) {
	if enrollment == nil || enrollment.PaymentType != models.PaymentTypeDropIn || enrollment.Status != models.EnrollmentStatusCancelled {
		return nil, nil
	}
	owner, err := s.users.FindByID(ctx, enrollment.StudentID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, appErrors.Internal(err, "failed to load enrollment owner")
	}
	if !owner.Is(models.RoleStudent) {
		return nil, nil
	}

	existing, err := s.credits.FindBySourceEnrollment(ctx, enrollment.ID)
	if err == nil {
		return existing, nil
	}
	if !isNoRows(err) {
		return nil, appErrors.Internal(err, "failed to check existing credit")
	}

	source := enrollment.ID
	credit := &models.Credit{
		StudentID:          enrollment.StudentID,
		CreatedAt:          s.now(),
		Reason:             reason,
		SourceEnrollmentID: &source,
	}
	if err := s.credits.Create(ctx, credit); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, err := s.credits.FindBySourceEnrollment(ctx, enrollment.ID)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to load existing credit")
			}
			return existing, nil
		}
		return nil, appErrors.Internal(err, "failed to issue credit")
	}

	s.metrics.RecordCreditIssued(reason)
	s.logger.Info("credit issued",
		zap.String("credit_id", credit.ID),
		zap.String("student_id", credit.StudentID),
		zap.String("source_enrollment_id", source),
		zap.String("reason", reason),
	)
	return credit, nil
}

// AddCreditForCancellation evaluates the issuance policy for a stored
// enrollment, as done after a student cancellation.
func (s *CreditService) AddCreditForCancellation(ctx context.Context, enrollmentID string) (*models.Credit, error) {
	var credit *models.Credit
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
		if err != nil {
			if isNoRows(err) {
				return appErrors.Clone(appErrors.ErrEnrollmentNotFound, "")
			}
			return appErrors.Internal(err, "failed to load enrollment")
		}
		credit, err = s.IssueForCancellation(ctx, enrollment, models.CreditReasonStudentCancellation)
		return err
	})
	if err != nil {
		return nil, err
	}
	return credit, nil
}

// UseCredit spends the student's oldest unused credit. It returns nil without
// error when the student has none.
func (s *CreditService) UseCredit(ctx context.Context, studentID string) (*models.Credit, error) {
	var credit *models.Credit
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		oldest, err := s.credits.OldestUnused(ctx, studentID)
		if err != nil {
			if isNoRows(err) {
				return nil
			}
			return appErrors.Internal(err, "failed to load credits")
		}
		at := s.now()
		if err := s.credits.MarkUsed(ctx, oldest.ID, at); err != nil {
			return appErrors.Internal(err, "failed to use credit")
		}
		oldest.Used = true
		oldest.UsedAt = &at
		credit = oldest
		return nil
	})
	if err != nil {
		return nil, err
	}
	if credit != nil {
		s.metrics.RecordCreditUsed()
	}
	return credit, nil
}

// GetCreditCount returns how many unused credits the student holds.
func (s *CreditService) GetCreditCount(ctx context.Context, studentID string) (int, error) {
	count, err := s.credits.CountUnused(ctx, studentID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to count credits")
	}
	return count, nil
}

// GetCreditHistory returns every credit of the student, newest first.
func (s *CreditService) GetCreditHistory(ctx context.Context, studentID string) ([]models.Credit, error) {
	credits, err := s.credits.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list credits")
	}
	return credits, nil
}

// GetBalance summarises the student's credits. Unused credits are listed
// newest first, like the history.
func (s *CreditService) GetBalance(ctx context.Context, studentID string) (*models.CreditBalance, error) {
	history, err := s.GetCreditHistory(ctx, studentID)
	if err != nil {
		return nil, err
	}
	unused := make([]models.Credit, 0, len(history))
	for _, c := range history {
		if !c.Used {
			unused = append(unused, c)
		}
	}
	return &models.CreditBalance{
		StudentID:        studentID,
		Available:        len(unused),
		AvailableCredits: unused,
		History:          history,
	}, nil
}

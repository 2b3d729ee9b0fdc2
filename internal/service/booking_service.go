package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-booking-api/internal/dto"
	"github.com/noah-isme/studio-booking-api/internal/models"
	"github.com/noah-isme/studio-booking-api/internal/repository"
	"github.com/noah-isme/studio-booking-api/internal/schedule"
	appErrors "github.com/noah-isme/studio-booking-api/pkg/errors"
	"github.com/noah-isme/studio-booking-api/pkg/logger"
)

type bookingInstanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.ClassInstance, error)
	LockByID(ctx context.Context, id string) (*models.ClassInstance, error)
}

type bookingTemplateReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassTemplate, error)
}

type bookingEnrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindActive(ctx context.Context, studentID, instanceID string) (*models.Enrollment, error)
	CountActiveByInstance(ctx context.Context, instanceID string) (int, error)
	Cancel(ctx context.Context, id string, at time.Time) error
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type membershipReader interface {
	FindActive(ctx context.Context, studentID string, asOf time.Time) (*models.MembershipWindow, error)
}

// BookingServiceParams groups the collaborators of BookingService.
type BookingServiceParams struct {
	Tx          transactor
	Instances   bookingInstanceRepository
	Templates   bookingTemplateReader
	Enrollments bookingEnrollmentRepository
	Users       userReader
	Memberships membershipReader
	Credits     *CreditService
	Cache       *CacheService
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// BookingService drives the enrollment state machine: booking, credit
// bookings, staff bookings and cancellation.
type BookingService struct {
	tx          transactor
	instances   bookingInstanceRepository
	templates   bookingTemplateReader
	enrollments bookingEnrollmentRepository
	users       userReader
	memberships membershipReader
	credits     *CreditService
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         clock
}

// NewBookingService constructs a BookingService.
func NewBookingService(p BookingServiceParams) *BookingService {
	if p.Validator == nil {
		p.Validator = validator.New()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &BookingService{
		tx:          p.Tx,
		instances:   p.Instances,
		templates:   p.Templates,
		enrollments: p.Enrollments,
		users:       p.Users,
		memberships: p.Memberships,
		credits:     p.Credits,
		cache:       p.Cache,
		metrics:     p.Metrics,
		validator:   p.Validator,
		logger:      p.Logger,
		now:         schedule.Now,
	}
}

// Book enrolls a student into an instance. The booking is classified: no
// payment id means staff, an active membership means membership, anything
// else is a drop-in.
func (s *BookingService) Book(ctx context.Context, studentID, instanceID string, req dto.BookRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	return s.book(ctx, studentID, instanceID, req.PaymentID, "")
}

// BookDropIn enrolls a student against a settled drop-in payment. It is meant
// for the payment intake, which knows what the payment bought.
func (s *BookingService) BookDropIn(ctx context.Context, studentID, instanceID, paymentID string) (*models.Enrollment, error) {
	if paymentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "drop-in booking requires a payment id")
	}
	return s.book(ctx, studentID, instanceID, &paymentID, models.PaymentTypeDropIn)
}

// book runs a student booking. An empty paymentType is classified.
func (s *BookingService) book(ctx context.Context, studentID, instanceID string, paymentID *string, paymentType models.PaymentType) (*models.Enrollment, error) {
	var enrollment *models.Enrollment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		instance, err := s.lockOpenInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		if _, err := loadUser(ctx, s.users, studentID, "", "student not found"); err != nil {
			return err
		}
		routed := paymentType
		if routed == "" {
			if routed, err = s.classify(ctx, studentID, paymentID); err != nil {
				return err
			}
		}
		if err := s.checkSeat(ctx, instance, studentID); err != nil {
			return err
		}
		enrollment, err = s.insert(ctx, instance, studentID, paymentID, routed)
		return err
	})
	return s.finishBooking(ctx, enrollment, err)
}

// BookForStaff books a staff member into a class they do not teach.
func (s *BookingService) BookForStaff(ctx context.Context, staffID, instanceID string) (*models.Enrollment, error) {
	var enrollment *models.Enrollment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := loadUser(ctx, s.users, staffID, models.RoleStaff, "staff member not found"); err != nil {
			return err
		}
		instance, err := s.lockOpenInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		tmpl, err := s.templates.FindByID(ctx, instance.TemplateID)
		if err != nil {
			if isNoRows(err) {
				return appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return appErrors.Internal(err, "failed to load class")
		}
		if tmpl.InstructorID == staffID {
			return appErrors.Clone(appErrors.ErrSelfInstructionConflict, "")
		}
		if err := s.checkSeat(ctx, instance, staffID); err != nil {
			return err
		}
		enrollment, err = s.insert(ctx, instance, staffID, nil, models.PaymentTypeStaff)
		return err
	})
	return s.finishBooking(ctx, enrollment, err)
}

// BookWithCredit books a student by spending their oldest unused credit. The
// credit is only consumed when the enrollment is written.
func (s *BookingService) BookWithCredit(ctx context.Context, studentID, instanceID string) (*models.Enrollment, error) {
	var enrollment *models.Enrollment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		instance, err := s.lockOpenInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		if _, err := loadUser(ctx, s.users, studentID, "", "student not found"); err != nil {
			return err
		}
		if err := s.checkSeat(ctx, instance, studentID); err != nil {
			return err
		}
		credit, err := s.credits.UseCredit(ctx, studentID)
		if err != nil {
			return err
		}
		if credit == nil {
			return appErrors.Clone(appErrors.ErrNoCreditsAvailable, "")
		}
		enrollment, err = s.insert(ctx, instance, studentID, nil, models.PaymentTypeCredit)
		return err
	})
	return s.finishBooking(ctx, enrollment, err)
}

// Cancel cancels the student's active enrollment on an instance and applies
// the credit issuance policy in the same transaction.
func (s *BookingService) Cancel(ctx context.Context, studentID, instanceID string) (*models.EnrollmentCancellation, error) {
	var result *models.EnrollmentCancellation
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		enrollment, err := s.enrollments.FindActive(ctx, studentID, instanceID)
		if err != nil {
			if isNoRows(err) {
				return appErrors.Clone(appErrors.ErrEnrollmentNotFound, "")
			}
			return appErrors.Internal(err, "failed to load enrollment")
		}
		at := s.now()
		if err := s.enrollments.Cancel(ctx, enrollment.ID, at); err != nil {
			if isNoRows(err) {
				return appErrors.Clone(appErrors.ErrEnrollmentNotFound, "")
			}
			return appErrors.Internal(err, "failed to cancel enrollment")
		}
		enrollment.Status = models.EnrollmentStatusCancelled
		enrollment.CancelledAt = &at

		credit, err := s.credits.AddCreditForCancellation(ctx, enrollment.ID)
		if err != nil {
			return err
		}
		result = &models.EnrollmentCancellation{Enrollment: *enrollment, Credit: credit}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCancellations("student", 1)
	s.cache.InvalidateUpcoming(ctx)
	logger.WithContext(ctx, s.logger).Info("enrollment cancelled",
		zap.String("enrollment_id", result.Enrollment.ID),
		zap.String("instance_id", instanceID),
		zap.Bool("credit_issued", result.Credit != nil),
	)
	return result, nil
}

// CheckEligibility tells the payment collaborator whether the student's
// membership covers the class date or a drop-in payment is required.
func (s *BookingService) CheckEligibility(ctx context.Context, studentID, instanceID string) (*models.BookingEligibility, error) {
	instance, err := s.instances.FindByID(ctx, instanceID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class instance not found")
		}
		return nil, appErrors.Internal(err, "failed to load class instance")
	}
	membership, err := s.memberships.FindActive(ctx, studentID, s.now())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load membership")
	}

	result := &models.BookingEligibility{
		StudentID:           studentID,
		InstanceID:          instanceID,
		HasActiveMembership: membership != nil,
		Route:               models.PaymentTypeDropIn,
		PaymentRequired:     true,
	}
	if membership != nil {
		result.MembershipEndDate = membership.EndDate
		if membership.CoversClassDate(instance.StartTime) {
			result.CoveredByMembership = true
			result.Route = models.PaymentTypeMembership
			result.PaymentRequired = false
		}
	}
	return result, nil
}

// ListActiveEnrollments returns the user's enrolled bookings, soonest first.
func (s *BookingService) ListActiveEnrollments(ctx context.Context, userID string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.enrollments.ListActiveByStudent(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list enrollments")
	}
	return enrollments, nil
}

func (s *BookingService) lockOpenInstance(ctx context.Context, instanceID string) (*models.ClassInstance, error) {
	instance, err := s.instances.LockByID(ctx, instanceID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class instance not found")
		}
		return nil, appErrors.Internal(err, "failed to load class instance")
	}
	if instance.IsCancelled {
		return nil, appErrors.Clone(appErrors.ErrInstanceCancelled, "")
	}
	return instance, nil
}

func (s *BookingService) classify(ctx context.Context, studentID string, paymentID *string) (models.PaymentType, error) {
	if paymentID == nil || *paymentID == "" {
		return models.PaymentTypeStaff, nil
	}
	membership, err := s.memberships.FindActive(ctx, studentID, s.now())
	if err != nil {
		return "", appErrors.Internal(err, "failed to load membership")
	}
	if membership.ActiveAt(s.now()) {
		return models.PaymentTypeMembership, nil
	}
	return models.PaymentTypeDropIn, nil
}

// checkSeat enforces capacity and the single active enrollment rule. The
// instance row must already be locked.
func (s *BookingService) checkSeat(ctx context.Context, instance *models.ClassInstance, userID string) error {
	count, err := s.enrollments.CountActiveByInstance(ctx, instance.InstanceID)
	if err != nil {
		return appErrors.Internal(err, "failed to count enrollments")
	}
	if models.IsFull(count, instance.MaxCapacity) {
		return appErrors.Clone(appErrors.ErrCapacityExceeded, "")
	}
	if _, err := s.enrollments.FindActive(ctx, userID, instance.InstanceID); err == nil {
		return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	} else if !isNoRows(err) {
		return appErrors.Internal(err, "failed to check enrollment")
	}
	return nil
}

func (s *BookingService) insert(ctx context.Context, instance *models.ClassInstance, userID string, paymentID *string, paymentType models.PaymentType) (*models.Enrollment, error) {
	enrollment := &models.Enrollment{
		StudentID:   userID,
		InstanceID:  instance.InstanceID,
		PaymentID:   paymentID,
		PaymentType: paymentType,
		Status:      models.EnrollmentStatusEnrolled,
		EnrolledAt:  s.now(),
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
		}
		return nil, appErrors.Internal(err, "failed to create enrollment")
	}
	return enrollment, nil
}

func (s *BookingService) finishBooking(ctx context.Context, enrollment *models.Enrollment, err error) (*models.Enrollment, error) {
	log := logger.WithContext(ctx, s.logger)
	if err != nil {
		s.metrics.RecordBookingFailure(errorCode(err))
		log.Debug("booking rejected", zap.Error(err))
		return nil, err
	}
	s.metrics.RecordBooking(string(enrollment.PaymentType))
	s.cache.InvalidateUpcoming(ctx)
	log.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.String("instance_id", enrollment.InstanceID),
		zap.String("payment_type", string(enrollment.PaymentType)),
	)
	return enrollment, nil
}

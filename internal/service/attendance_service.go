package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-booking-api/internal/dto"
	"github.com/noah-isme/studio-booking-api/internal/models"
	"github.com/noah-isme/studio-booking-api/internal/schedule"
	appErrors "github.com/noah-isme/studio-booking-api/pkg/errors"
	"github.com/noah-isme/studio-booking-api/pkg/export"
	"github.com/noah-isme/studio-booking-api/pkg/logger"
)

// DefaultMissedGracePeriod is how long after class start a no-show may be
// recorded.
const DefaultMissedGracePeriod = 15 * time.Minute

type attendanceEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	MarkAttendance(ctx context.Context, id string, status models.EnrollmentStatus, staffID string, at time.Time) error
	ListRoster(ctx context.Context, instanceID string) ([]models.RosterEntry, error)
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type attendanceInstanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.ClassInstance, error)
	ListUpcoming(ctx context.Context, filter models.InstanceFilter) ([]models.ClassInstanceDetail, error)
}

type attendanceTemplateRepository interface {
	FindByID(ctx context.Context, id string) (*models.ClassTemplate, error)
	IsStaffAssigned(ctx context.Context, templateID, userID string) (bool, error)
	ListIDsForStaff(ctx context.Context, userID string) ([]string, error)
}

// AttendanceServiceParams groups the collaborators of AttendanceService.
type AttendanceServiceParams struct {
	Tx          transactor
	Enrollments attendanceEnrollmentRepository
	Instances   attendanceInstanceRepository
	Templates   attendanceTemplateRepository
	Users       userReader
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
	GracePeriod time.Duration
}

// AttendanceService records attendance and serves staff-facing views.
type AttendanceService struct {
	tx          transactor
	enrollments attendanceEnrollmentRepository
	instances   attendanceInstanceRepository
	templates   attendanceTemplateRepository
	users       userReader
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	grace       time.Duration
	now         clock
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(p AttendanceServiceParams) *AttendanceService {
	if p.Validator == nil {
		p.Validator = validator.New()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.GracePeriod <= 0 {
		p.GracePeriod = DefaultMissedGracePeriod
	}
	return &AttendanceService{
		tx:          p.Tx,
		enrollments: p.Enrollments,
		instances:   p.Instances,
		templates:   p.Templates,
		users:       p.Users,
		metrics:     p.Metrics,
		validator:   p.Validator,
		logger:      p.Logger,
		grace:       p.GracePeriod,
		now:         schedule.Now,
	}
}

// MarkAttendance records attended or missed on an enrolled booking. Only the
// instructor or assigned staff may mark, and missed is only accepted once the
// grace period after class start has passed.
func (s *AttendanceService) MarkAttendance(ctx context.Context, staffID, enrollmentID string, req dto.MarkAttendanceRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	status := models.EnrollmentStatus(req.Status)

	var enrollment *models.Enrollment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		staff, err := loadUser(ctx, s.users, staffID, models.RoleStaff, "staff member not found")
		if err != nil {
			return err
		}
		enrollment, err = s.enrollments.FindByID(ctx, enrollmentID)
		if err != nil {
			if isNoRows(err) {
				return appErrors.Clone(appErrors.ErrEnrollmentNotFound, "")
			}
			return appErrors.Internal(err, "failed to load enrollment")
		}
		instance, tmpl, err := s.loadInstance(ctx, enrollment.InstanceID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, staff, tmpl); err != nil {
			return err
		}
		if !enrollment.Status.CanTransitionTo(status) {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("enrollment is %s and cannot be marked %s", enrollment.Status, status))
		}
		now := s.now()
		if status == models.EnrollmentStatusMissed && now.Before(instance.StartTime.Add(s.grace)) {
			return appErrors.Clone(appErrors.ErrTooEarlyToMarkMissed, "")
		}
		if err := s.enrollments.MarkAttendance(ctx, enrollment.ID, status, staff.ID, now); err != nil {
			if isNoRows(err) {
				return appErrors.Clone(appErrors.ErrConflict, "enrollment changed while marking attendance")
			}
			return appErrors.Internal(err, "failed to mark attendance")
		}
		enrollment.Status = status
		enrollment.AttendanceMarkedAt = &now
		enrollment.MarkedByStaffID = &staff.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordAttendance(string(status))
	logger.WithContext(ctx, s.logger).Info("attendance marked",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("status", string(status)),
		zap.String("staff_id", staffID),
	)
	return enrollment, nil
}

// Roster returns the enrolled, attended and missed students of an instance.
// Management may view any roster, staff only those of classes they teach or
// are assigned to.
func (s *AttendanceService) Roster(ctx context.Context, viewerID, instanceID string) (*models.Roster, error) {
	viewer, err := loadUser(ctx, s.users, viewerID, "", "user not found")
	if err != nil {
		return nil, err
	}
	instance, tmpl, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if !viewer.Is(models.RoleManagement) {
		if err := s.authorize(ctx, viewer, tmpl); err != nil {
			return nil, err
		}
	}

	entries, err := s.enrollments.ListRoster(ctx, instanceID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load roster")
	}
	return &models.Roster{
		InstanceID:    instance.InstanceID,
		ClassName:     tmpl.Name,
		StartTime:     instance.StartTime,
		EndTime:       instance.EndTime,
		MaxCapacity:   instance.MaxCapacity,
		EnrolledCount: models.EnrolledCount(entries),
		Students:      entries,
	}, nil
}

// RosterExport is a rendered roster document.
type RosterExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportRoster renders the roster of an instance as CSV or PDF.
func (s *AttendanceService) ExportRoster(ctx context.Context, viewerID, instanceID, format string) (*RosterExport, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	roster, err := s.Roster(ctx, viewerID, instanceID)
	if err != nil {
		return nil, err
	}
	data, err := export.Render(f, rosterDataset(roster))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render roster")
	}
	return &RosterExport{
		Filename:    fmt.Sprintf("roster_%s.%s", roster.InstanceID, f),
		ContentType: f.ContentType(),
		Data:        data,
	}, nil
}

func rosterDataset(r *models.Roster) export.Dataset {
	headers := []string{"Name", "Email", "Status", "Payment", "Marked At"}
	rows := make([]map[string]string, 0, len(r.Students))
	for _, st := range r.Students {
		marked := ""
		if st.AttendanceMarkedAt != nil {
			marked = st.AttendanceMarkedAt.Format("2006-01-02 15:04")
		}
		rows = append(rows, map[string]string{
			"Name":      st.FullName,
			"Email":     st.Email,
			"Status":    string(st.Status),
			"Payment":   string(st.PaymentType),
			"Marked At": marked,
		})
	}
	return export.Dataset{
		Title: r.ClassName,
		Subtitle: []string{
			fmt.Sprintf("%s - %s", r.StartTime.Format("2006-01-02 15:04"), r.EndTime.Format("15:04")),
			fmt.Sprintf("Enrolled %d / %d", r.EnrolledCount, r.MaxCapacity),
		},
		Headers: headers,
		Rows:    rows,
	}
}

// AssignedClasses lists upcoming instances of templates the staff member
// teaches or is assigned to.
func (s *AttendanceService) AssignedClasses(ctx context.Context, staffID string) ([]models.ClassInstanceDetail, error) {
	if _, err := loadUser(ctx, s.users, staffID, models.RoleStaff, "staff member not found"); err != nil {
		return nil, err
	}
	ids, err := s.templates.ListIDsForStaff(ctx, staffID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load assigned classes")
	}
	if len(ids) == 0 {
		return []models.ClassInstanceDetail{}, nil
	}
	instances, err := s.instances.ListUpcoming(ctx, models.InstanceFilter{From: s.now(), TemplateIDs: ids})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list assigned classes")
	}
	for i := range instances {
		instances[i].IsInstructor = instances[i].InstructorID == staffID
	}
	return instances, nil
}

// BookedClasses lists the classes a staff member booked for themselves.
func (s *AttendanceService) BookedClasses(ctx context.Context, staffID string) ([]models.EnrollmentDetail, error) {
	if _, err := loadUser(ctx, s.users, staffID, models.RoleStaff, "staff member not found"); err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListActiveByStudent(ctx, staffID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list booked classes")
	}
	return enrollments, nil
}

func (s *AttendanceService) loadInstance(ctx context.Context, instanceID string) (*models.ClassInstance, *models.ClassTemplate, error) {
	instance, err := s.instances.FindByID(ctx, instanceID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "class instance not found")
		}
		return nil, nil, appErrors.Internal(err, "failed to load class instance")
	}
	tmpl, err := s.templates.FindByID(ctx, instance.TemplateID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, nil, appErrors.Internal(err, "failed to load class")
	}
	return instance, tmpl, nil
}

func (s *AttendanceService) authorize(ctx context.Context, staff *models.User, tmpl *models.ClassTemplate) error {
	if tmpl.InstructorID == staff.ID {
		return nil
	}
	assigned, err := s.templates.IsStaffAssigned(ctx, tmpl.ID, staff.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to check staff assignment")
	}
	if !assigned {
		return appErrors.Clone(appErrors.ErrForbidden, "staff member is not assigned to this class")
	}
	return nil
}

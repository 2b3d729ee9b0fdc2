package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-booking-api/internal/dto"
	"github.com/noah-isme/studio-booking-api/internal/models"
	"github.com/noah-isme/studio-booking-api/internal/schedule"
	appErrors "github.com/noah-isme/studio-booking-api/pkg/errors"
	"github.com/noah-isme/studio-booking-api/pkg/logger"
)

type classTemplateRepository interface {
	Create(ctx context.Context, tmpl *models.ClassTemplate) error
	FindByID(ctx context.Context, id string) (*models.ClassTemplate, error)
	List(ctx context.Context, filter models.ClassTemplateFilter) ([]models.ClassTemplate, int, error)
	UpdateInstructor(ctx context.Context, id, instructorID string) error
	AddStaff(ctx context.Context, templateID, userID string) error
	RemoveStaff(ctx context.Context, templateID, userID string) error
	ListStaff(ctx context.Context, templateID string) ([]models.User, error)
	AddManager(ctx context.Context, templateID, userID string) error
}

type classInstanceRepository interface {
	BulkCreate(ctx context.Context, instances []models.ClassInstance) (int, error)
	ListUpcoming(ctx context.Context, filter models.InstanceFilter) ([]models.ClassInstanceDetail, error)
}

// ClassServiceParams groups the collaborators of ClassService.
type ClassServiceParams struct {
	Tx        transactor
	Templates classTemplateRepository
	Instances classInstanceRepository
	Users     userReader
	Cache     *CacheService
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Horizon   time.Duration
}

// ClassService manages class templates, their staff and the generated instances.
type ClassService struct {
	tx        transactor
	templates classTemplateRepository
	instances classInstanceRepository
	users     userReader
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	horizon   time.Duration
	now       clock
}

// NewClassService constructs a ClassService.
func NewClassService(p ClassServiceParams) *ClassService {
	if p.Validator == nil {
		p.Validator = validator.New()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Horizon <= 0 {
		p.Horizon = schedule.DefaultHorizon
	}
	return &ClassService{
		tx:        p.Tx,
		templates: p.Templates,
		instances: p.Instances,
		users:     p.Users,
		cache:     p.Cache,
		metrics:   p.Metrics,
		validator: p.Validator,
		logger:    p.Logger,
		horizon:   p.Horizon,
		now:       schedule.Now,
	}
}

// CreateTemplate stores a template and expands it into instances. The
// template is committed before expansion, so an expansion failure leaves the
// template without instances and reports the error.
func (s *ClassService) CreateTemplate(ctx context.Context, creatorID string, req dto.CreateClassTemplateRequest) (*models.ClassTemplateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	instructor, err := loadUser(ctx, s.users, req.InstructorID, "", "instructor not found")
	if err != nil {
		return nil, err
	}
	var creator *models.User
	if creatorID != "" {
		if creator, err = loadUser(ctx, s.users, creatorID, "", "creator not found"); err != nil {
			return nil, err
		}
	}

	tmpl := &models.ClassTemplate{
		Name:              req.Name,
		Description:       req.Description,
		StartTime:         schedule.Naive(req.StartTime),
		DurationMinutes:   req.DurationMinutes,
		InstructorID:      instructor.ID,
		MaxCapacity:       req.MaxCapacity,
		RecurrencePattern: models.ParseRecurrence(req.RecurrencePattern),
		Requirements:      req.Requirements,
		RecommendedAttire: req.RecommendedAttire,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.templates.Create(ctx, tmpl); err != nil {
			return appErrors.Internal(err, "failed to create class")
		}
		if instructor.Is(models.RoleStaff) {
			if err := s.templates.AddStaff(ctx, tmpl.ID, instructor.ID); err != nil {
				return appErrors.Internal(err, "failed to assign instructor")
			}
		}
		if creator.Is(models.RoleManagement) {
			if err := s.templates.AddManager(ctx, tmpl.ID, creator.ID); err != nil {
				return appErrors.Internal(err, "failed to assign manager")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	instances, err := s.ExpandTemplate(ctx, tmpl)
	if err != nil {
		logger.WithContext(ctx, s.logger).Error("template expansion failed", zap.String("template_id", tmpl.ID), zap.Error(err))
		return nil, err
	}
	return &models.ClassTemplateResult{Template: *tmpl, Instances: instances}, nil
}

// ExpandTemplate generates the template's instances up to the horizon and
// persists them in one transaction. Instances that already exist are kept.
func (s *ClassService) ExpandTemplate(ctx context.Context, tmpl *models.ClassTemplate) ([]models.ClassInstance, error) {
	instances, err := schedule.Expand(*tmpl, s.now(), s.horizon)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "cannot expand class")
	}

	var inserted int
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.instances.BulkCreate(ctx, instances)
		if err != nil {
			return appErrors.Internal(err, "failed to create class instances")
		}
		inserted = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInstancesGenerated(inserted)
	s.cache.InvalidateUpcoming(ctx)
	logger.WithContext(ctx, s.logger).Info("template expanded",
		zap.String("template_id", tmpl.ID),
		zap.String("pattern", string(tmpl.RecurrencePattern)),
		zap.Int("instances", len(instances)),
		zap.Int("inserted", inserted),
	)
	return instances, nil
}

// GetTemplate returns one template.
func (s *ClassService) GetTemplate(ctx context.Context, id string) (*models.ClassTemplate, error) {
	tmpl, err := s.templates.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to load class")
	}
	return tmpl, nil
}

// ListTemplates returns templates with pagination metadata.
func (s *ClassService) ListTemplates(ctx context.Context, filter models.ClassTemplateFilter) ([]models.ClassTemplate, *models.Pagination, error) {
	templates, total, err := s.templates.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return templates, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// AddStaff assigns a staff member to a template and returns the staff set.
func (s *ClassService) AddStaff(ctx context.Context, templateID string, req dto.AssignStaffRequest) ([]models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid staff payload")
	}
	if _, err := s.GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	if _, err := loadUser(ctx, s.users, req.StaffID, models.RoleStaff, "staff member not found"); err != nil {
		return nil, err
	}
	if err := s.templates.AddStaff(ctx, templateID, req.StaffID); err != nil {
		return nil, appErrors.Internal(err, "failed to assign staff")
	}
	return s.ListStaff(ctx, templateID)
}

// RemoveStaff unassigns a staff member from a template.
func (s *ClassService) RemoveStaff(ctx context.Context, templateID, staffID string) error {
	if _, err := s.GetTemplate(ctx, templateID); err != nil {
		return err
	}
	if _, err := loadUser(ctx, s.users, staffID, "", "staff member not found"); err != nil {
		return err
	}
	if err := s.templates.RemoveStaff(ctx, templateID, staffID); err != nil {
		return appErrors.Internal(err, "failed to remove staff")
	}
	return nil
}

// ListStaff returns the staff set of a template.
func (s *ClassService) ListStaff(ctx context.Context, templateID string) ([]models.User, error) {
	staff, err := s.templates.ListStaff(ctx, templateID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list staff")
	}
	return staff, nil
}

// ChangeInstructor reassigns the template's instructor. Existing instances
// are not altered.
func (s *ClassService) ChangeInstructor(ctx context.Context, templateID string, req dto.ChangeInstructorRequest) (*models.ClassTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instructor payload")
	}
	if _, err := s.GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	if _, err := loadUser(ctx, s.users, req.InstructorID, models.RoleStaff, "instructor not found"); err != nil {
		return nil, err
	}
	if err := s.templates.UpdateInstructor(ctx, templateID, req.InstructorID); err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to change instructor")
	}
	s.cache.InvalidateUpcoming(ctx)
	return s.GetTemplate(ctx, templateID)
}

// ListUpcoming returns non-cancelled instances that have not started yet,
// optionally restricted to a set of templates.
func (s *ClassService) ListUpcoming(ctx context.Context, templateIDs []string) ([]models.ClassInstanceDetail, error) {
	now := s.now()
	key := UpcomingKey(templateIDs)
	if cached, ok := s.cache.GetUpcoming(ctx, key); ok {
		return startingFrom(cached, now), nil
	}

	instances, err := s.instances.ListUpcoming(ctx, models.InstanceFilter{From: now, TemplateIDs: templateIDs})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list upcoming classes")
	}
	s.cache.SetUpcoming(ctx, key, instances)
	return instances, nil
}

func startingFrom(instances []models.ClassInstanceDetail, from time.Time) []models.ClassInstanceDetail {
	out := make([]models.ClassInstanceDetail, 0, len(instances))
	for _, inst := range instances {
		if !inst.StartTime.Before(from) {
			out = append(out, inst)
		}
	}
	return out
}

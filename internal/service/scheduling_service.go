package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
	appErrors "github.com/asliddin-dev/edu-crm-api/pkg/errors"
)

type schedulingRepository interface {
	ScheduleTrial(ctx context.Context, id int64, when time.Time) (*models.Registration, error)
	ScheduleLesson(ctx context.Context, id int64, when time.Time) (*models.Registration, error)
	ScheduleConsultation(ctx context.Context, id int64) error
}

// ScheduleRequest carries an RFC 3339 timestamp for a scheduling operation.
type ScheduleRequest struct {
	Time string `json:"time" validate:"required"`
}

// SchedulingService assigns consultation, trial lesson and regular
// lesson times. Trial and lesson scheduling also move the registration
// to the matching status in the same transaction.
type SchedulingService struct {
	repo      schedulingRepository
	metrics   transitionObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSchedulingService constructs SchedulingService.
func NewSchedulingService(repo schedulingRepository, metrics transitionObserver, validate *validator.Validate, logger *zap.Logger) *SchedulingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulingService{repo: repo, metrics: metrics, validator: validate, logger: logger}
}

// ScheduleTrial records the trial lesson time and moves the
// registration to the trial status. An unparseable timestamp fails
// before any write happens.
func (s *SchedulingService) ScheduleTrial(ctx context.Context, id int64, req ScheduleRequest) (*models.Registration, error) {
	when, err := s.parseTime(req)
	if err != nil {
		return nil, err
	}
	reg, err := s.repo.ScheduleTrial(ctx, id, when)
	if err != nil {
		return nil, s.mapErr(err, "failed to schedule trial lesson")
	}
	if s.metrics != nil && reg.Status == models.StatusTrial {
		s.metrics.ObserveTransition(models.StatusActive, models.StatusTrial, false)
	}
	s.logger.Info("trial lesson scheduled",
		zap.Int64("registration_id", id),
		zap.Time("trial_lesson_time", when))
	return reg, nil
}

// ScheduleLesson records the regular lesson time and moves the
// registration to the studying status.
func (s *SchedulingService) ScheduleLesson(ctx context.Context, id int64, req ScheduleRequest) (*models.Registration, error) {
	when, err := s.parseTime(req)
	if err != nil {
		return nil, err
	}
	reg, err := s.repo.ScheduleLesson(ctx, id, when)
	if err != nil {
		return nil, s.mapErr(err, "failed to schedule lesson")
	}
	s.logger.Info("lesson scheduled",
		zap.Int64("registration_id", id),
		zap.Time("lesson_time", when))
	return reg, nil
}

// ScheduleConsultation stamps the consultation time with the current
// server time. The status is untouched.
func (s *SchedulingService) ScheduleConsultation(ctx context.Context, id int64) error {
	if err := s.repo.ScheduleConsultation(ctx, id); err != nil {
		return s.mapErr(err, "failed to record consultation")
	}
	s.logger.Info("consultation recorded", zap.Int64("registration_id", id))
	return nil
}

func (s *SchedulingService) parseTime(req ScheduleRequest) (time.Time, error) {
	if err := s.validator.Struct(req); err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	when, err := time.Parse(time.RFC3339, req.Time)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "time must be RFC 3339")
	}
	return when, nil
}

func (s *SchedulingService) mapErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
}

package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	appErrors "github.com/asliddin-dev/edu-crm-api/pkg/errors"
)

type notificationRepository interface {
	MarkNotified(ctx context.Context, id int64) error
	MarkReminderSent(ctx context.Context, id int64) error
	UpdateProgress(ctx context.Context, id int64, progress float64) error
	UpdateAttendance(ctx context.Context, id int64, attendance int) error
	UpdateGrade(ctx context.Context, id int64, grade string) error
}

// ProgressRequest is a partial update of the academic tracking fields.
// Only the provided fields are written.
type ProgressRequest struct {
	Progress   *float64 `json:"progress" validate:"omitempty,gte=0,lte=100"`
	Attendance *int     `json:"attendance" validate:"omitempty,gte=0"`
	Grade      *string  `json:"grade"`
}

// NotificationService flips the per-registration notification flags and
// maintains the academic tracking fields. Flag writes are idempotent.
type NotificationService struct {
	repo   notificationRepository
	logger *zap.Logger
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(repo notificationRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, logger: logger}
}

// MarkNotified records that the welcome notification was delivered.
func (s *NotificationService) MarkNotified(ctx context.Context, id int64) error {
	if err := s.repo.MarkNotified(ctx, id); err != nil {
		return s.mapErr(err, "failed to mark notified")
	}
	s.logger.Info("registration marked notified", zap.Int64("registration_id", id))
	return nil
}

// MarkReminderSent records that the trial lesson reminder was delivered.
func (s *NotificationService) MarkReminderSent(ctx context.Context, id int64) error {
	if err := s.repo.MarkReminderSent(ctx, id); err != nil {
		return s.mapErr(err, "failed to mark reminder sent")
	}
	s.logger.Info("registration reminder marked sent", zap.Int64("registration_id", id))
	return nil
}

// UpdateProgress applies the provided academic tracking fields.
func (s *NotificationService) UpdateProgress(ctx context.Context, id int64, req ProgressRequest) error {
	if req.Progress == nil && req.Attendance == nil && req.Grade == nil {
		return appErrors.Clone(appErrors.ErrValidation, "no tracking fields provided")
	}
	if req.Progress != nil {
		if *req.Progress < 0 || *req.Progress > 100 {
			return appErrors.Clone(appErrors.ErrValidation, "progress must be between 0 and 100")
		}
		if err := s.repo.UpdateProgress(ctx, id, *req.Progress); err != nil {
			return s.mapErr(err, "failed to update progress")
		}
	}
	if req.Attendance != nil {
		if *req.Attendance < 0 {
			return appErrors.Clone(appErrors.ErrValidation, "attendance must not be negative")
		}
		if err := s.repo.UpdateAttendance(ctx, id, *req.Attendance); err != nil {
			return s.mapErr(err, "failed to update attendance")
		}
	}
	if req.Grade != nil {
		if err := s.repo.UpdateGrade(ctx, id, *req.Grade); err != nil {
			return s.mapErr(err, "failed to update grade")
		}
	}
	s.logger.Info("registration tracking updated", zap.Int64("registration_id", id))
	return nil
}

func (s *NotificationService) mapErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
}

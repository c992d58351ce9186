package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
	appErrors "github.com/asliddin-dev/edu-crm-api/pkg/errors"
)

type registrationRepository interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByID(ctx context.Context, id int64) (*models.Registration, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]models.Registration, error)
	UpdateStatus(ctx context.Context, id int64, decide func(models.Status) (models.Status, error)) (*models.Registration, error)
	Delete(ctx context.Context, id int64) error
	ResyncPartitions(ctx context.Context) (int64, int64, error)
}

type auditWriter interface {
	Create(ctx context.Context, entry *models.TransitionAudit) error
}

type transitionObserver interface {
	ObserveTransition(from, to models.Status, forced bool)
}

// CreateRegistrationRequest describes registration creation. Course,
// training type, schedule and price are snapshotted verbatim.
type CreateRegistrationRequest struct {
	OwnerID      int64  `json:"owner_id" validate:"required"`
	FullName     string `json:"full_name" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	Course       string `json:"course" validate:"required"`
	TrainingType string `json:"training_type" validate:"required"`
	Schedule     string `json:"schedule" validate:"required"`
	Price        string `json:"price" validate:"required"`
}

// TransitionRequest carries the target status for a transition.
type TransitionRequest struct {
	Status string `json:"status" validate:"required"`
}

// ForceTransitionRequest carries the target status and reason for an
// administrative override.
type ForceTransitionRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// RegistrationService is the lifecycle engine: it validates transitions
// against the status graph and performs the canonical mutations.
type RegistrationService struct {
	repo      registrationRepository
	audit     auditWriter
	metrics   transitionObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRegistrationService constructs RegistrationService.
func NewRegistrationService(repo registrationRepository, audit auditWriter, metrics transitionObserver, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{repo: repo, audit: audit, metrics: metrics, validator: validate, logger: logger}
}

// Create registers a new enrollment attempt with the initial status.
func (s *RegistrationService) Create(ctx context.Context, req CreateRegistrationRequest) (*models.Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	reg := &models.Registration{
		OwnerID:      req.OwnerID,
		FullName:     req.FullName,
		Phone:        req.Phone,
		Course:       req.Course,
		TrainingType: req.TrainingType,
		Schedule:     req.Schedule,
		Price:        req.Price,
		Status:       models.StatusInitial,
	}
	if err := s.repo.Create(ctx, reg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
	}
	s.logger.Info("registration created",
		zap.Int64("registration_id", reg.ID),
		zap.Int64("owner_id", reg.OwnerID),
		zap.String("course", reg.Course))
	return reg, nil
}

// Get returns a registration by identifier.
func (s *RegistrationService) Get(ctx context.Context, id int64) (*models.Registration, error) {
	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return reg, nil
}

// List returns registrations with pagination metadata.
func (s *RegistrationService) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}
	regs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return regs, pagination, nil
}

// ListByOwner returns every registration belonging to one owner.
func (s *RegistrationService) ListByOwner(ctx context.Context, ownerID int64) ([]models.Registration, error) {
	regs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return regs, nil
}

// Transition moves a registration along a valid edge of the status
// graph. Transitioning to the current status is a successful no-op.
func (s *RegistrationService) Transition(ctx context.Context, id int64, req TransitionRequest) (*models.Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}
	target, err := models.ParseStatus(req.Status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown target status")
	}

	var from models.Status
	reg, err := s.repo.UpdateStatus(ctx, id, func(current models.Status) (models.Status, error) {
		from = current
		if current == target {
			return current, nil
		}
		if !models.CanTransition(current, target) {
			return "", appErrors.Clone(appErrors.ErrInvalidTransition,
				"cannot transition from "+string(current)+" to "+string(target))
		}
		return target, nil
	})
	if err != nil {
		return nil, s.mapStatusErr(err)
	}

	if from != target {
		if s.metrics != nil {
			s.metrics.ObserveTransition(from, target, false)
		}
		s.logger.Info("registration transitioned",
			zap.Int64("registration_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(target)))
	}
	return reg, nil
}

// ForceTransition bypasses the edge validation. It is a distinct,
// audited administrative operation; the regular Transition path never
// skips the graph.
func (s *RegistrationService) ForceTransition(ctx context.Context, id int64, req ForceTransitionRequest, actor string) (*models.Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}
	target, err := models.ParseStatus(req.Status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown target status")
	}

	var from models.Status
	reg, err := s.repo.UpdateStatus(ctx, id, func(current models.Status) (models.Status, error) {
		from = current
		return target, nil
	})
	if err != nil {
		return nil, s.mapStatusErr(err)
	}

	if from != target {
		if s.metrics != nil {
			s.metrics.ObserveTransition(from, target, true)
		}
		s.logger.Warn("registration force-transitioned",
			zap.Int64("registration_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(target)),
			zap.String("actor", actor),
			zap.String("reason", req.Reason))
		if s.audit != nil {
			entry := &models.TransitionAudit{
				RegistrationID: id,
				Actor:          actor,
				Action:         models.AuditActionForceTransition,
				OldStatus:      &from,
				NewStatus:      &target,
				Reason:         req.Reason,
			}
			if err := s.audit.Create(ctx, entry); err != nil {
				s.logger.Error("failed to write transition audit", zap.Error(err), zap.Int64("registration_id", id))
			}
		}
	}
	return reg, nil
}

// Delete removes a registration entirely. Administrative only; normal
// lifecycle operations never delete, completion is a terminal status.
func (s *RegistrationService) Delete(ctx context.Context, id int64, actor string) error {
	reg, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapStatusErr(err)
	}
	s.logger.Warn("registration deleted",
		zap.Int64("registration_id", id),
		zap.String("actor", actor))
	if s.audit != nil {
		entry := &models.TransitionAudit{
			RegistrationID: id,
			Actor:          actor,
			Action:         models.AuditActionDelete,
			OldStatus:      &reg.Status,
			Reason:         "administrative deletion",
		}
		if err := s.audit.Create(ctx, entry); err != nil {
			s.logger.Error("failed to write deletion audit", zap.Error(err), zap.Int64("registration_id", id))
		}
	}
	return nil
}

// ResyncPartitions rebuilds the partition index from the canonical table.
func (s *RegistrationService) ResyncPartitions(ctx context.Context, actor string) (int64, int64, error) {
	removed, added, err := s.repo.ResyncPartitions(ctx)
	if err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resync partitions")
	}
	s.logger.Info("partition index resynced",
		zap.Int64("removed", removed),
		zap.Int64("added", added),
		zap.String("actor", actor))
	if s.audit != nil && (removed > 0 || added > 0) {
		entry := &models.TransitionAudit{
			Actor:  actor,
			Action: models.AuditActionPartitionResync,
			Reason: "partition index rebuild",
		}
		if err := s.audit.Create(ctx, entry); err != nil {
			s.logger.Error("failed to write resync audit", zap.Error(err))
		}
	}
	return removed, added, nil
}

func (s *RegistrationService) mapStatusErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update registration")
}

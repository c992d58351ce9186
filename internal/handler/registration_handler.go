// Package handler exposes the HTTP surface of the registration API.
package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/asliddin-dev/edu-crm-api/internal/middleware"
	"github.com/asliddin-dev/edu-crm-api/internal/models"
	"github.com/asliddin-dev/edu-crm-api/internal/service"
	appErrors "github.com/asliddin-dev/edu-crm-api/pkg/errors"
	"github.com/asliddin-dev/edu-crm-api/pkg/response"
)

type registrationService interface {
	Create(ctx context.Context, req service.CreateRegistrationRequest) (*models.Registration, error)
	Get(ctx context.Context, id int64) (*models.Registration, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, *models.Pagination, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]models.Registration, error)
	Transition(ctx context.Context, id int64, req service.TransitionRequest) (*models.Registration, error)
	ForceTransition(ctx context.Context, id int64, req service.ForceTransitionRequest, actor string) (*models.Registration, error)
	Delete(ctx context.Context, id int64, actor string) error
	ResyncPartitions(ctx context.Context, actor string) (int64, int64, error)
}

type schedulingService interface {
	ScheduleTrial(ctx context.Context, id int64, req service.ScheduleRequest) (*models.Registration, error)
	ScheduleLesson(ctx context.Context, id int64, req service.ScheduleRequest) (*models.Registration, error)
	ScheduleConsultation(ctx context.Context, id int64) error
}

type notificationService interface {
	MarkNotified(ctx context.Context, id int64) error
	MarkReminderSent(ctx context.Context, id int64) error
	UpdateProgress(ctx context.Context, id int64, req service.ProgressRequest) error
}

type auditReader interface {
	ListByRegistration(ctx context.Context, registrationID int64) ([]models.TransitionAudit, error)
}

// RegistrationHandler serves the registration lifecycle endpoints.
type RegistrationHandler struct {
	registrations registrationService
	scheduling    schedulingService
	notifications notificationService
	audit         auditReader
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registrations registrationService, scheduling schedulingService, notifications notificationService, audit auditReader) *RegistrationHandler {
	return &RegistrationHandler{
		registrations: registrations,
		scheduling:    scheduling,
		notifications: notifications,
		audit:         audit,
	}
}

// Create godoc
// @Summary Create registration
// @Description Registers a new enrollment attempt with the initial status
// @Tags registrations
// @Accept json
// @Produce json
// @Param payload body service.CreateRegistrationRequest true "Registration payload"
// @Success 201 {object} response.Envelope{data=models.Registration}
// @Failure 400 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Create(c *gin.Context) {
	var req service.CreateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	reg, err := h.registrations.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// List godoc
// @Summary List registrations
// @Description Lists registrations with optional status, owner and phone filters
// @Tags registrations
// @Produce json
// @Param status query string false "Status filter"
// @Param owner_id query int false "Owner filter"
// @Param phone query string false "Phone filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope{data=[]models.Registration}
// @Router /registrations [get]
func (h *RegistrationHandler) List(c *gin.Context) {
	filter := models.RegistrationFilter{
		Status:    models.Status(c.Query("status")),
		Phone:     c.Query("phone"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	filter.OwnerID, _ = strconv.ParseInt(c.Query("owner_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	regs, pagination, err := h.registrations.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, 200, regs, pagination)
}

// Get godoc
// @Summary Get registration
// @Tags registrations
// @Produce json
// @Param id path int true "Registration ID"
// @Success 200 {object} response.Envelope{data=models.Registration}
// @Failure 404 {object} response.Envelope
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	reg, err := h.registrations.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, 200, reg, nil)
}

// ListByOwner godoc
// @Summary List registrations for one owner
// @Tags registrations
// @Produce json
// @Param owner_id path int true "Owner ID"
// @Success 200 {object} response.Envelope{data=[]models.Registration}
// @Router /registrations/owner/{owner_id} [get]
func (h *RegistrationHandler) ListByOwner(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Param("owner_id"), 10, 64)
	if err != nil || ownerID <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid owner id"))
		return
	}
	regs, listErr := h.registrations.ListByOwner(c.Request.Context(), ownerID)
	if listErr != nil {
		response.Error(c, listErr)
		return
	}
	response.JSON(c, 200, regs, nil)
}

// Transition godoc
// @Summary Transition registration status
// @Description Moves the registration along a valid edge of the status graph
// @Tags registrations
// @Accept json
// @Produce json
// @Param id path int true "Registration ID"
// @Param payload body service.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope{data=models.Registration}
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/transition [post]
func (h *RegistrationHandler) Transition(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	var req service.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	reg, err := h.registrations.Transition(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, 200, reg, nil)
}

// ForceTransition godoc
// @Summary Force a status transition
// @Description Administrative override that bypasses edge validation and is audited
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Registration ID"
// @Param payload body service.ForceTransitionRequest true "Target status and reason"
// @Success 200 {object} response.Envelope{data=models.Registration}
// @Failure 401 {object} response.Envelope
// @Router /registrations/{id}/force-transition [post]
func (h *RegistrationHandler) ForceTransition(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	var req service.ForceTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	reg, err := h.registrations.ForceTransition(c.Request.Context(), id, req, h.actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, 200, reg, nil)
}

// ScheduleTrial godoc
// @Summary Schedule trial lesson
// @Description Sets the trial lesson time and moves the registration to trial
// @Tags registrations
// @Accept json
// @Produce json
// @Param id path int true "Registration ID"
// @Param payload body service.ScheduleRequest true "RFC 3339 timestamp"
// @Success 200 {object} response.Envelope{data=models.Registration}
// @Router /registrations/{id}/trial [post]
func (h *RegistrationHandler) ScheduleTrial(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	var req service.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	reg, err := h.scheduling.ScheduleTrial(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, 200, reg, nil)
}

// ScheduleLesson godoc
// @Summary Schedule regular lesson
// @Description Sets the lesson time and moves the registration to studying
// @Tags registrations
// @Accept json
// @Produce json
// @Param id path int true "Registration ID"
// @Param payload body service.ScheduleRequest true "RFC 3339 timestamp"
// @Success 200 {object} response.Envelope{data=models.Registration}
// @Router /registrations/{id}/lesson [post]
func (h *RegistrationHandler) ScheduleLesson(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	var req service.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	reg, err := h.scheduling.ScheduleLesson(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, 200, reg, nil)
}

// ScheduleConsultation godoc
// @Summary Record consultation
// @Description Stamps the consultation time with the current server time
// @Tags registrations
// @Produce json
// @Param id path int true "Registration ID"
// @Success 204
// @Router /registrations/{id}/consultation [post]
func (h *RegistrationHandler) ScheduleConsultation(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	if err := h.scheduling.ScheduleConsultation(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkNotified godoc
// @Summary Mark welcome notification delivered
// @Tags registrations
// @Produce json
// @Param id path int true "Registration ID"
// @Success 204
// @Router /registrations/{id}/notified [post]
func (h *RegistrationHandler) MarkNotified(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	if err := h.notifications.MarkNotified(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkReminderSent godoc
// @Summary Mark trial reminder delivered
// @Tags registrations
// @Produce json
// @Param id path int true "Registration ID"
// @Success 204
// @Router /registrations/{id}/reminder-sent [post]
func (h *RegistrationHandler) MarkReminderSent(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	if err := h.notifications.MarkReminderSent(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateProgress godoc
// @Summary Update academic tracking fields
// @Tags registrations
// @Accept json
// @Produce json
// @Param id path int true "Registration ID"
// @Param payload body service.ProgressRequest true "Tracking fields"
// @Success 204
// @Router /registrations/{id}/progress [patch]
func (h *RegistrationHandler) UpdateProgress(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	var req service.ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	if err := h.notifications.UpdateProgress(c.Request.Context(), id, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AuditTrail godoc
// @Summary List audit entries for a registration
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "Registration ID"
// @Success 200 {object} response.Envelope{data=[]models.TransitionAudit}
// @Router /registrations/{id}/audit [get]
func (h *RegistrationHandler) AuditTrail(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	entries, err := h.audit.ListByRegistration(c.Request.Context(), id)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail"))
		return
	}
	response.JSON(c, 200, entries, nil)
}

// Delete godoc
// @Summary Delete registration
// @Description Administrative removal of a registration, audited
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "Registration ID"
// @Success 204
// @Failure 401 {object} response.Envelope
// @Router /registrations/{id} [delete]
func (h *RegistrationHandler) Delete(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	if err := h.registrations.Delete(c.Request.Context(), id, h.actor(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ResyncPartitions godoc
// @Summary Rebuild the partition index
// @Description Reconciles the per-status partition tables against the canonical table
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /partitions/resync [post]
func (h *RegistrationHandler) ResyncPartitions(c *gin.Context) {
	removed, added, err := h.registrations.ResyncPartitions(c.Request.Context(), h.actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, 200, gin.H{"removed": removed, "added": added}, nil)
}

func (h *RegistrationHandler) registrationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid registration id"))
		return 0, false
	}
	return id, true
}

func (h *RegistrationHandler) actor(c *gin.Context) string {
	if claims, ok := middleware.AdminFromContext(c); ok {
		return claims.Username
	}
	return "unknown"
}

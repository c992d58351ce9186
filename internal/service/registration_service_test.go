package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
	appErrors "github.com/asliddin-dev/edu-crm-api/pkg/errors"
)

type mockRegistrationRepo struct {
	regs        map[int64]*models.Registration
	nextID      int64
	deleted     []int64
	resyncCalls int
}

func newMockRegistrationRepo(regs ...*models.Registration) *mockRegistrationRepo {
	m := &mockRegistrationRepo{regs: make(map[int64]*models.Registration), nextID: 1}
	for _, reg := range regs {
		m.regs[reg.ID] = reg
		if reg.ID >= m.nextID {
			m.nextID = reg.ID + 1
		}
	}
	return m
}

func (m *mockRegistrationRepo) Create(ctx context.Context, reg *models.Registration) error {
	reg.ID = m.nextID
	m.nextID++
	m.regs[reg.ID] = reg
	return nil
}

func (m *mockRegistrationRepo) FindByID(ctx context.Context, id int64) (*models.Registration, error) {
	if reg, ok := m.regs[id]; ok {
		copied := *reg
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRegistrationRepo) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	var out []models.Registration
	for _, reg := range m.regs {
		out = append(out, *reg)
	}
	return out, len(out), nil
}

func (m *mockRegistrationRepo) ListByStatus(ctx context.Context, status models.Status) ([]models.Registration, error) {
	var out []models.Registration
	for _, reg := range m.regs {
		if reg.Status == status {
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (m *mockRegistrationRepo) ListByOwner(ctx context.Context, ownerID int64) ([]models.Registration, error) {
	var out []models.Registration
	for _, reg := range m.regs {
		if reg.OwnerID == ownerID {
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (m *mockRegistrationRepo) UpdateStatus(ctx context.Context, id int64, decide func(models.Status) (models.Status, error)) (*models.Registration, error) {
	reg, ok := m.regs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	next, err := decide(reg.Status)
	if err != nil {
		return nil, err
	}
	reg.Status = next
	copied := *reg
	return &copied, nil
}

func (m *mockRegistrationRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.regs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.regs, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockRegistrationRepo) ResyncPartitions(ctx context.Context) (int64, int64, error) {
	m.resyncCalls++
	return 2, 3, nil
}

type mockAuditWriter struct {
	entries []models.TransitionAudit
	err     error
}

func (m *mockAuditWriter) Create(ctx context.Context, entry *models.TransitionAudit) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *entry)
	return nil
}

type mockObserver struct {
	mu          sync.Mutex
	transitions []string
	reminders   int
}

func (m *mockObserver) ObserveTransition(from, to models.Status, forced bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	label := string(from) + ">" + string(to)
	if forced {
		label += "!"
	}
	m.transitions = append(m.transitions, label)
}

func (m *mockObserver) ObserveReminder() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders++
}

func newRegistrationService(repo *mockRegistrationRepo, audit *mockAuditWriter, metrics *mockObserver) *RegistrationService {
	return NewRegistrationService(repo, audit, metrics, validator.New(), zap.NewNop())
}

func validCreateRequest() CreateRegistrationRequest {
	return CreateRegistrationRequest{
		OwnerID:      700,
		FullName:     "Aziza Karimova",
		Phone:        "+998901234567",
		Course:       "English B1",
		TrainingType: "group",
		Schedule:     "Mon/Wed/Fri 18:00",
		Price:        "450000",
	}
}

func TestRegistrationServiceCreate(t *testing.T) {
	repo := newMockRegistrationRepo()
	svc := newRegistrationService(repo, &mockAuditWriter{}, &mockObserver{})

	reg, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, reg.Status)
	assert.NotZero(t, reg.ID)
	assert.Len(t, repo.regs, 1)
}

func TestRegistrationServiceCreateMissingFields(t *testing.T) {
	svc := newRegistrationService(newMockRegistrationRepo(), &mockAuditWriter{}, &mockObserver{})

	req := validCreateRequest()
	req.Phone = ""
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceGetNotFound(t *testing.T) {
	svc := newRegistrationService(newMockRegistrationRepo(), &mockAuditWriter{}, &mockObserver{})

	_, err := svc.Get(context.Background(), 99)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceTransitionValid(t *testing.T) {
	repo := newMockRegistrationRepo(&models.Registration{ID: 1, Status: models.StatusStudying})
	metrics := &mockObserver{}
	svc := newRegistrationService(repo, &mockAuditWriter{}, metrics)

	reg, err := svc.Transition(context.Background(), 1, TransitionRequest{Status: "frozen"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFrozen, reg.Status)
	assert.Equal(t, []string{"studying>frozen"}, metrics.transitions)
}

func TestRegistrationServiceTransitionInvalidEdge(t *testing.T) {
	repo := newMockRegistrationRepo(&models.Registration{ID: 1, Status: models.StatusActive})
	svc := newRegistrationService(repo, &mockAuditWriter{}, &mockObserver{})

	_, err := svc.Transition(context.Background(), 1, TransitionRequest{Status: "completed"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.StatusActive, repo.regs[1].Status)
}

func TestRegistrationServiceTransitionNoOp(t *testing.T) {
	repo := newMockRegistrationRepo(&models.Registration{ID: 1, Status: models.StatusTrial})
	metrics := &mockObserver{}
	svc := newRegistrationService(repo, &mockAuditWriter{}, metrics)

	reg, err := svc.Transition(context.Background(), 1, TransitionRequest{Status: "trial"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusTrial, reg.Status)
	assert.Empty(t, metrics.transitions)
}

func TestRegistrationServiceTransitionFromTerminal(t *testing.T) {
	repo := newMockRegistrationRepo(&models.Registration{ID: 1, Status: models.StatusCompleted})
	svc := newRegistrationService(repo, &mockAuditWriter{}, &mockObserver{})

	_, err := svc.Transition(context.Background(), 1, TransitionRequest{Status: "studying"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceTransitionUnknownStatus(t *testing.T) {
	repo := newMockRegistrationRepo(&models.Registration{ID: 1, Status: models.StatusActive})
	svc := newRegistrationService(repo, &mockAuditWriter{}, &mockObserver{})

	_, err := svc.Transition(context.Background(), 1, TransitionRequest{Status: "graduated"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceTransitionNotFound(t *testing.T) {
	svc := newRegistrationService(newMockRegistrationRepo(), &mockAuditWriter{}, &mockObserver{})

	_, err := svc.Transition(context.Background(), 42, TransitionRequest{Status: "trial"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceForceTransition(t *testing.T) {
	repo := newMockRegistrationRepo(&models.Registration{ID: 1, Status: models.StatusActive})
	audit := &mockAuditWriter{}
	metrics := &mockObserver{}
	svc := newRegistrationService(repo, audit, metrics)

	reg, err := svc.ForceTransition(context.Background(), 1,
		ForceTransitionRequest{Status: "waiting_payment", Reason: "payment pending"}, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitingPayment, reg.Status)
	assert.Equal(t, []string{"active>waiting_payment!"}, metrics.transitions)

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, models.AuditActionForceTransition, entry.Action)
	assert.Equal(t, "admin", entry.Actor)
	assert.Equal(t, models.StatusActive, *entry.OldStatus)
	assert.Equal(t, models.StatusWaitingPayment, *entry.NewStatus)
}

func TestRegistrationServiceForceTransitionRequiresReason(t *testing.T) {
	repo := newMockRegistrationRepo(&models.Registration{ID: 1, Status: models.StatusActive})
	svc := newRegistrationService(repo, &mockAuditWriter{}, &mockObserver{})

	_, err := svc.ForceTransition(context.Background(), 1,
		ForceTransitionRequest{Status: "waiting_payment"}, "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceForceTransitionAuditFailureDoesNotFail(t *testing.T) {
	repo := newMockRegistrationRepo(&models.Registration{ID: 1, Status: models.StatusActive})
	audit := &mockAuditWriter{err: errors.New("audit down")}
	svc := newRegistrationService(repo, audit, &mockObserver{})

	reg, err := svc.ForceTransition(context.Background(), 1,
		ForceTransitionRequest{Status: "studying", Reason: "fixup"}, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.StatusStudying, reg.Status)
}

func TestRegistrationServiceDelete(t *testing.T) {
	repo := newMockRegistrationRepo(&models.Registration{ID: 1, Status: models.StatusFrozen})
	audit := &mockAuditWriter{}
	svc := newRegistrationService(repo, audit, &mockObserver{})

	require.NoError(t, svc.Delete(context.Background(), 1, "admin"))
	assert.Contains(t, repo.deleted, int64(1))
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionDelete, audit.entries[0].Action)
	assert.Equal(t, models.StatusFrozen, *audit.entries[0].OldStatus)
}

func TestRegistrationServiceDeleteNotFound(t *testing.T) {
	svc := newRegistrationService(newMockRegistrationRepo(), &mockAuditWriter{}, &mockObserver{})

	err := svc.Delete(context.Background(), 42, "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceResyncPartitions(t *testing.T) {
	repo := newMockRegistrationRepo()
	audit := &mockAuditWriter{}
	svc := newRegistrationService(repo, audit, &mockObserver{})

	removed, added, err := svc.ResyncPartitions(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Equal(t, int64(3), added)
	assert.Equal(t, 1, repo.resyncCalls)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionPartitionResync, audit.entries[0].Action)
}

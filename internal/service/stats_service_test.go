package service

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
	appErrors "github.com/asliddin-dev/edu-crm-api/pkg/errors"
)

type mockStatsRepo struct {
	counts     []models.StatusCount
	weekly     models.WeeklyStats
	byStatus   []models.Registration
	countCalls int
}

func (m *mockStatsRepo) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	m.countCalls++
	return m.counts, nil
}

func (m *mockStatsRepo) WeeklyStats(ctx context.Context) (*models.WeeklyStats, error) {
	weekly := m.weekly
	return &weekly, nil
}

func (m *mockStatsRepo) ListByStatus(ctx context.Context, status models.Status) ([]models.Registration, error) {
	return m.byStatus, nil
}

type mockStatsCache struct {
	values map[string][]byte
	sets   int
}

func newMockStatsCache() *mockStatsCache {
	return &mockStatsCache{values: make(map[string][]byte)}
}

func (m *mockStatsCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockStatsCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	m.sets++
	return nil
}

func TestStatsServiceCountByStatusZeroFills(t *testing.T) {
	repo := &mockStatsRepo{counts: []models.StatusCount{
		{Status: models.StatusActive, Count: 3},
		{Status: models.StatusStudying, Count: 12},
	}}
	svc := NewStatsService(repo, nil, time.Minute, zap.NewNop())

	counts, err := svc.CountByStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, len(models.AllStatuses))

	byStatus := make(map[models.Status]models.StatusCount)
	for _, sc := range counts {
		byStatus[sc.Status] = sc
	}
	assert.Equal(t, 3, byStatus[models.StatusActive].Count)
	assert.Equal(t, 12, byStatus[models.StatusStudying].Count)
	assert.Equal(t, 0, byStatus[models.StatusFrozen].Count)
	assert.Equal(t, "Frozen", byStatus[models.StatusFrozen].Label)
}

func TestStatsServiceCountByStatusUsesCache(t *testing.T) {
	repo := &mockStatsRepo{counts: []models.StatusCount{{Status: models.StatusActive, Count: 1}}}
	cache := newMockStatsCache()
	svc := NewStatsService(repo, cache, time.Minute, zap.NewNop())

	_, err := svc.CountByStatus(context.Background())
	require.NoError(t, err)
	_, err = svc.CountByStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, repo.countCalls)
	assert.Equal(t, 1, cache.sets)
}

func TestStatsServiceWeekly(t *testing.T) {
	repo := &mockStatsRepo{weekly: models.WeeklyStats{NewRegistrations: 5, Completed: 2}}
	svc := NewStatsService(repo, newMockStatsCache(), time.Minute, zap.NewNop())

	stats, err := svc.Weekly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.NewRegistrations)
	assert.Equal(t, 2, stats.Completed)
}

func TestStatsServiceExportCSV(t *testing.T) {
	repo := &mockStatsRepo{byStatus: []models.Registration{
		{ID: 1, FullName: "Aziza Karimova", Phone: "+998901234567", Course: "English B1", TrainingType: "group", Schedule: "MWF", Price: "450000", CreatedAt: time.Now()},
	}}
	svc := NewStatsService(repo, nil, time.Minute, zap.NewNop())

	data, contentType, err := svc.Export(context.Background(), models.StatusStudying, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.True(t, bytes.Contains(data, []byte("Aziza Karimova")))
}

func TestStatsServiceExportPDF(t *testing.T) {
	repo := &mockStatsRepo{}
	svc := NewStatsService(repo, nil, time.Minute, zap.NewNop())

	data, contentType, err := svc.Export(context.Background(), models.StatusActive, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestStatsServiceExportRejectsUnknownFormat(t *testing.T) {
	svc := NewStatsService(&mockStatsRepo{}, nil, time.Minute, zap.NewNop())

	_, _, err := svc.Export(context.Background(), models.StatusActive, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStatsServiceExportRejectsUnknownStatus(t *testing.T) {
	svc := NewStatsService(&mockStatsRepo{}, nil, time.Minute, zap.NewNop())

	_, _, err := svc.Export(context.Background(), models.Status("bogus"), "csv")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

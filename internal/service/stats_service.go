package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
	"github.com/asliddin-dev/edu-crm-api/pkg/export"
	appErrors "github.com/asliddin-dev/edu-crm-api/pkg/errors"
)

const (
	statusCountsCacheKey = "stats:status_counts"
	weeklyStatsCacheKey  = "stats:weekly"
)

type statsRepository interface {
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	WeeklyStats(ctx context.Context) (*models.WeeklyStats, error)
	ListByStatus(ctx context.Context, status models.Status) ([]models.Registration, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// StatsService aggregates registration counts and renders exports. Read
// endpoints are cached in Redis for the configured TTL.
type StatsService struct {
	repo   statsRepository
	cache  statsCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatsService constructs StatsService.
func NewStatsService(repo statsRepository, cache statsCache, ttl time.Duration, logger *zap.Logger) *StatsService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// CountByStatus returns one counter per known status, zero-filled so
// every status appears even with no rows.
func (s *StatsService) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	if s.cache != nil {
		var cached []models.StatusCount
		if err := s.cache.Get(ctx, statusCountsCacheKey, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("stats cache read failed", zap.Error(err))
		}
	}

	raw, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count registrations")
	}

	byStatus := make(map[models.Status]int, len(raw))
	for _, sc := range raw {
		byStatus[sc.Status] = sc.Count
	}
	counts := make([]models.StatusCount, 0, len(models.AllStatuses))
	for _, status := range models.AllStatuses {
		counts = append(counts, models.StatusCount{
			Status: status,
			Label:  status.Label(),
			Count:  byStatus[status],
		})
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, statusCountsCacheKey, counts, s.ttl); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return counts, nil
}

// Weekly returns lifecycle movement over the trailing seven days.
func (s *StatsService) Weekly(ctx context.Context) (*models.WeeklyStats, error) {
	if s.cache != nil {
		var cached models.WeeklyStats
		if err := s.cache.Get(ctx, weeklyStatsCacheKey, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("stats cache read failed", zap.Error(err))
		}
	}

	stats, err := s.repo.WeeklyStats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly stats")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, weeklyStatsCacheKey, stats, s.ttl); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

// Export renders the registrations in one status as CSV or PDF.
func (s *StatsService) Export(ctx context.Context, status models.Status, format string) ([]byte, string, error) {
	if !status.Valid() {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unknown status")
	}

	regs, err := s.repo.ListByStatus(ctx, status)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}

	table := export.Table{
		Title:   fmt.Sprintf("Registrations: %s", status.Label()),
		Headers: []string{"ID", "Full Name", "Phone", "Course", "Training Type", "Schedule", "Price", "Created"},
	}
	for _, reg := range regs {
		table.Rows = append(table.Rows, []string{
			strconv.FormatInt(reg.ID, 10),
			reg.FullName,
			reg.Phone,
			reg.Course,
			reg.TrainingType,
			reg.Schedule,
			reg.Price,
			reg.CreatedAt.Format("2006-01-02"),
		})
	}

	switch format {
	case "csv":
		data, err := export.RenderCSV(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return data, "text/csv", nil
	case "pdf":
		data, err := export.RenderPDF(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return data, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

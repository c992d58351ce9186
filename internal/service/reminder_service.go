package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
	"github.com/asliddin-dev/edu-crm-api/pkg/config"
	"github.com/asliddin-dev/edu-crm-api/pkg/jobs"
)

type reminderRepository interface {
	ListUpcomingTrials(ctx context.Context, days int) ([]models.Registration, error)
	MarkReminderSent(ctx context.Context, id int64) error
}

type reminderObserver interface {
	ObserveReminder()
}

// ReminderService periodically sweeps registrations with an upcoming
// trial lesson and no reminder yet, fanning the flag writes out through
// a worker queue. Each registration receives at most one reminder.
type ReminderService struct {
	repo      reminderRepository
	metrics   reminderObserver
	logger    *zap.Logger
	interval  time.Duration
	lookahead int

	queue  *jobs.Queue
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReminderService constructs ReminderService from the reminder config.
func NewReminderService(repo reminderRepository, metrics reminderObserver, cfg config.ReminderConfig, logger *zap.Logger) *ReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	lookahead := cfg.LookaheadDays
	if lookahead <= 0 {
		lookahead = 1
	}

	s := &ReminderService{
		repo:      repo,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		lookahead: lookahead,
	}
	s.queue = jobs.NewQueue("trial-reminders", s.handle, jobs.QueueConfig{
		Workers: cfg.Workers,
		Logger:  logger,
	})
	return s
}

// Start launches the sweep loop and the dispatch workers.
func (s *ReminderService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.queue.Start(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.sweep(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
	s.logger.Info("reminder sweep started",
		zap.Duration("interval", s.interval),
		zap.Int("lookahead_days", s.lookahead))
}

// Stop shuts the sweep loop and workers down.
func (s *ReminderService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.queue.Stop()
}

func (s *ReminderService) sweep(ctx context.Context) {
	regs, err := s.repo.ListUpcomingTrials(ctx, s.lookahead)
	if err != nil {
		s.logger.Error("reminder sweep failed", zap.Error(err))
		return
	}
	for _, reg := range regs {
		job := jobs.Job{
			ID:             fmt.Sprintf("reminder-%d", reg.ID),
			RegistrationID: reg.ID,
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue reminder", zap.Error(err), zap.Int64("registration_id", reg.ID))
			return
		}
	}
	if len(regs) > 0 {
		s.logger.Info("reminder sweep enqueued", zap.Int("count", len(regs)))
	}
}

func (s *ReminderService) handle(ctx context.Context, job jobs.Job) error {
	if err := s.repo.MarkReminderSent(ctx, job.RegistrationID); err != nil {
		return fmt.Errorf("mark reminder sent for %d: %w", job.RegistrationID, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveReminder()
	}
	s.logger.Info("trial reminder dispatched", zap.Int64("registration_id", job.RegistrationID))
	return nil
}

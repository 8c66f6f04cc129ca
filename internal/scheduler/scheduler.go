package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/example/phonicsbot/internal/cache"
	"github.com/example/phonicsbot/internal/config"
	"github.com/example/phonicsbot/internal/database"
	"github.com/example/phonicsbot/internal/mastery"
	"github.com/example/phonicsbot/internal/progress"
)

// Scheduler manages the background jobs: practice reminders, cache
// maintenance, and retries for failed progress writes.
type Scheduler struct {
	scheduler *gocron.Scheduler
	notifier  Notifier
	cfg       *config.Config
	mastery   *mastery.Model
	cache     *cache.Cache
	tracker   *progress.Tracker
	logger    *zap.Logger
}

// Notifier interface for sending practice reminders
type Notifier interface {
	SendReminder(userID int64, dueCount int) error
}

// New creates a new scheduler instance
func New(notifier Notifier, cfg *config.Config, m *mastery.Model, c *cache.Cache,
	tracker *progress.Tracker, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		notifier:  notifier,
		cfg:       cfg,
		mastery:   m,
		cache:     c,
		tracker:   tracker,
		logger:    logger,
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start() {
	// Hourly check for users who want a reminder at the current hour
	s.scheduler.Every(1).Hour().Do(s.checkAndSendReminders)

	// Drop expired cache entries, in memory and on disk
	s.scheduler.Every(1).Hour().Do(s.evictExpiredCache)

	// Retry progress snapshots that failed to persist
	s.scheduler.Every(5).Minutes().Do(s.flushPendingProgress)

	s.scheduler.StartAsync()
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// checkAndSendReminders notifies users with due reviews whose preferred
// notification hour matches the current hour
func (s *Scheduler) checkAndSendReminders() {
	currentHour := time.Now().UTC().Hour()

	if currentHour < s.cfg.NotificationStartHour || currentHour > s.cfg.NotificationEndHour {
		s.logger.Debug("outside notification hours, skipping reminders",
			zap.Int("hour", currentHour))
		return
	}

	userRepo := database.NewUserRepository()
	users, err := userRepo.GetUsersForNotification(currentHour)
	if err != nil {
		s.logger.Error("failed to get users for notification", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, user := range users {
		due, err := s.mastery.DueItems(ctx, user.ID, time.Now())
		if err != nil {
			s.logger.Error("failed to get due items",
				zap.Int64("user", user.ID), zap.Error(err))
			continue
		}
		if len(due) == 0 {
			continue
		}

		count := len(due)
		if count > user.ItemsPerSession {
			count = user.ItemsPerSession
		}
		if err := s.notifier.SendReminder(user.ID, count); err != nil {
			s.logger.Error("failed to send reminder",
				zap.Int64("user", user.ID), zap.Error(err))
		}
	}
}

// evictExpiredCache removes expired entries from the response cache
func (s *Scheduler) evictExpiredCache() {
	if removed := s.cache.EvictExpired(); removed > 0 {
		s.logger.Info("evicted expired cache entries", zap.Int("removed", removed))
	}
}

// flushPendingProgress retries persistence of progress snapshots
func (s *Scheduler) flushPendingProgress() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if flushed := s.tracker.FlushPending(ctx); flushed > 0 {
		s.logger.Info("flushed pending progress snapshots", zap.Int("flushed", flushed))
	}
}

// RunManualCheck forces a reminder check for a specific user
func (s *Scheduler) RunManualCheck(ctx context.Context, userID int64) error {
	due, err := s.mastery.DueItems(ctx, userID, time.Now())
	if err != nil {
		return err
	}
	if len(due) > 0 {
		return s.notifier.SendReminder(userID, len(due))
	}
	return nil
}

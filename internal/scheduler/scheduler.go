package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockusage/internal/config"
	"github.com/mamadbah2/stockusage/internal/domain/models"
)

// SessionEvictor drops idle working sessions.
type SessionEvictor interface {
	EvictIdle(ttl time.Duration) int
}

// DigestBuilder renders the daily variance digest.
type DigestBuilder interface {
	DailyDigest(ctx context.Context, day time.Time) (string, error)
}

// Messenger delivers the digest.
type Messenger interface {
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron      *cron.Cron
	sessions  SessionEvictor
	digest    DigestBuilder
	messenger Messenger
	cfg       config.Config
	now       func() time.Time
	logger    *zap.Logger
}

// NewScheduler creates a new scheduler instance. The digest job is only
// registered when both digest and messenger are set.
func NewScheduler(cfg config.Config, location *time.Location, sessions SessionEvictor, digest DigestBuilder, messenger Messenger, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.Local
	}

	return &Scheduler{
		cron:      cron.New(cron.WithLocation(location)),
		sessions:  sessions,
		digest:    digest,
		messenger: messenger,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	if s.sessions != nil {
		if _, err := s.cron.AddFunc(s.cfg.Usage.EvictSchedule, s.evictIdleSessions); err != nil {
			return fmt.Errorf("schedule session eviction %q: %w", s.cfg.Usage.EvictSchedule, err)
		}
	}

	if s.digest != nil && s.messenger != nil {
		if _, err := s.cron.AddFunc(s.cfg.Reporting.CronSchedule, s.sendDailyDigest); err != nil {
			return fmt.Errorf("schedule daily digest %q: %w", s.cfg.Reporting.CronSchedule, err)
		}
	} else {
		s.logger.Info("daily digest disabled")
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) evictIdleSessions() {
	if n := s.sessions.EvictIdle(s.cfg.Usage.SessionTTL); n > 0 {
		s.logger.Info("idle sessions evicted", zap.Int("count", n))
	}
}

func (s *Scheduler) sendDailyDigest() {
	s.logger.Info("generating daily digest")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	message, err := s.digest.DailyDigest(ctx, s.now())
	if err != nil {
		s.logger.Error("failed to generate daily digest", zap.Error(err))
		return
	}

	req := models.OutboundMessageRequest{
		To:      s.cfg.WhatsApp.ManagerID,
		Message: message,
	}

	if err := s.messenger.SendOutbound(ctx, req); err != nil {
		s.logger.Error("failed to send daily digest", zap.Error(err))
	} else {
		s.logger.Info("daily digest sent successfully")
	}
}

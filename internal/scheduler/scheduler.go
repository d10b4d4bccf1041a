package scheduler

import (
	"context"
	"log/slog"
	"time"

	"feedsync/internal/domain"
	"feedsync/internal/service"
)

// BatchSyncer defines the interface for batch sync operations.
type BatchSyncer interface {
	SyncAll(ctx context.Context, ownerID string, onProgress service.ProgressFunc) (*domain.BatchResult, error)
}

type Scheduler struct {
	syncer   BatchSyncer
	ownerID  string
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(syncer BatchSyncer, ownerID string, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		ownerID:  ownerID,
		interval: interval,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	result, err := s.syncer.SyncAll(syncCtx, s.ownerID, nil)
	if err != nil {
		s.logger.Error("batch sync failed", "error", err)
		return
	}
	s.logger.Info("batch sync run complete",
		"sources", result.TotalSources,
		"successful", result.Successful,
		"failed", result.Failed,
		"new_articles", result.NewArticles,
	)
}

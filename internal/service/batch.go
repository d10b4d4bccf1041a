package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"feedsync/internal/config"
	"feedsync/internal/domain"
)

// ProgressFunc is invoked after every attempted source during a batch sync,
// success or failure.
type ProgressFunc func(domain.Progress)

// BatchService runs the sync orchestrator across all of an owner's sources
// with bounded concurrency and per-source isolation: one broken source never
// aborts the batch or other in-flight workers.
type BatchService struct {
	syncer  SourceSyncer
	sources SourceStore
	logger  *slog.Logger
	config  config.SyncConfig
}

func NewBatchService(
	syncer SourceSyncer,
	sources SourceStore,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *BatchService {
	return &BatchService{
		syncer:  syncer,
		sources: sources,
		logger:  logger,
		config:  cfg,
	}
}

// SyncAll synchronizes every eligible source belonging to ownerID. Sources
// at or past the failure threshold are skipped without counting as failed.
// Cancellation is cooperative: a cancelled batch stops dispatching, waits
// for in-flight workers and returns partial aggregate counts, not an error.
func (b *BatchService) SyncAll(ctx context.Context, ownerID string, onProgress ProgressFunc) (*domain.BatchResult, error) {
	sources, err := b.sources.ListSyncable(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	pending := make([]domain.Source, 0, len(sources))
	for _, src := range sources {
		if src.ConsecutiveFailures >= b.config.FailureThreshold {
			b.logger.Warn("skipping source past failure threshold",
				"source_id", src.ID,
				"consecutive_failures", src.ConsecutiveFailures,
			)
			continue
		}
		pending = append(pending, src)
	}

	result := &domain.BatchResult{TotalSources: len(pending)}

	b.logger.Info("starting batch sync",
		"owner", ownerID,
		"sources", len(pending),
		"skipped", len(sources)-len(pending),
		"workers", b.config.Workers,
	)

	var (
		mu        sync.Mutex
		attempted int
	)
	hosts := newHostLocks()

	g := new(errgroup.Group)
	g.SetLimit(b.config.Workers)

	for _, src := range pending {
		if ctx.Err() != nil {
			break
		}

		src := src
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			// Courtesy cap: one in-flight request per upstream host.
			unlock := hosts.lock(src.FeedURL)
			syncResult, syncErr := b.syncer.SyncSource(ctx, src.ID, ownerID)
			unlock()

			mu.Lock()
			defer mu.Unlock()

			attempted++
			if syncErr != nil {
				result.Failed++
				b.logger.Error("source sync failed",
					"source_id", src.ID,
					"title", src.Title,
					"error", syncErr,
				)
			} else {
				result.Successful++
				result.NewArticles += syncResult.NewArticles
			}

			if onProgress != nil {
				onProgress(domain.Progress{
					Index:       attempted,
					Total:       result.TotalSources,
					SourceTitle: src.Title,
				})
			}
			return nil
		})
	}

	_ = g.Wait()

	b.logger.Info("batch sync finished",
		"owner", ownerID,
		"successful", result.Successful,
		"failed", result.Failed,
		"new_articles", result.NewArticles,
	)

	return result, nil
}

// hostLocks serializes requests per upstream host while distinct hosts run
// in parallel.
type hostLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newHostLocks() *hostLocks {
	return &hostLocks{locks: make(map[string]*sync.Mutex)}
}

func (h *hostLocks) lock(rawURL string) (unlock func()) {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}

	h.mu.Lock()
	l, ok := h.locks[host]
	if !ok {
		l = &sync.Mutex{}
		h.locks[host] = l
	}
	h.mu.Unlock()

	l.Lock()
	return l.Unlock
}

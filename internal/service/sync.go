package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"feedsync/internal/config"
	"feedsync/internal/domain"
	"feedsync/internal/feed"
	"feedsync/internal/fetcher"
	"feedsync/internal/search"
)

// SyncService drives one source through the fetch, parse, diff, persist
// cycle. It owns the source's conditional-request state and failure
// bookkeeping. Callers must serialize syncs per source id; each source is
// exclusively mutated by the sync currently running it.
type SyncService struct {
	sources   SourceStore
	articles  ArticleStore
	fetcher   Fetcher
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	config    config.SyncConfig
}

func NewSyncService(
	sources SourceStore,
	articles ArticleStore,
	fetch Fetcher,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		sources:   sources,
		articles:  articles,
		fetcher:   fetch,
		txManager: txManager,
		publisher: publisher,
		logger:    logger,
		config:    cfg,
	}
}

// SyncSource synchronizes a single source. A paused source is a deliberate
// no-op. Failures update the source's health counters and are re-raised so
// a single-source caller sees them; the batch coordinator absorbs them.
func (s *SyncService) SyncSource(ctx context.Context, sourceID int64, ownerID string) (*domain.SyncResult, error) {
	src, err := s.sources.GetByID(ctx, sourceID, ownerID)
	if err != nil {
		return nil, err
	}

	if src.IsPaused {
		return &domain.SyncResult{}, nil
	}

	logger := s.logger.With("source_id", src.ID, "url", src.FeedURL)

	resp, err := s.fetcher.Fetch(ctx, fetcher.Request{
		URL:          src.FeedURL,
		ETag:         src.ETag,
		LastModified: src.LastModified,
	})
	if err != nil {
		return nil, s.recordFailure(ctx, src, err)
	}

	if resp.NotModified {
		logger.Debug("source not modified")
		s.markSynced(src)
		if err := s.sources.Update(ctx, src); err != nil {
			return nil, fmt.Errorf("update source: %w", err)
		}
		return &domain.SyncResult{}, nil
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err := &domain.FetchError{URL: src.FeedURL, StatusCode: resp.StatusCode}
		return nil, s.recordFailure(ctx, src, err)
	}

	parsed, err := feed.Parse(resp.Body, src.FeedURL)
	if err != nil {
		return nil, s.recordFailure(ctx, src, err)
	}

	// Sources can rename or reclassify themselves upstream.
	if parsed.Title != "" {
		src.Title = parsed.Title
	}
	if parsed.SiteURL != "" {
		siteURL := parsed.SiteURL
		src.SiteURL = &siteURL
	}
	src.Kind = parsed.Kind

	// New validators win; absent ones keep the previous values.
	if resp.ETag != "" {
		etag := resp.ETag
		src.ETag = &etag
	}
	if resp.LastModified != "" {
		lastModified := resp.LastModified
		src.LastModified = &lastModified
	}

	// The diff either commits a source's full entry set or nothing: no
	// partial persists on failure.
	var result *domain.SyncResult
	var publishes []publishItem
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var txErr error
		result, publishes, txErr = s.reconcile(txCtx, src, parsed.Entries)
		return txErr
	})
	if err != nil {
		return nil, s.recordFailure(ctx, src, err)
	}

	for _, p := range publishes {
		s.publish(ctx, p.article, p.isNew)
	}

	s.prune(ctx, src)

	s.markSynced(src)
	if err := s.sources.Update(ctx, src); err != nil {
		return nil, fmt.Errorf("update source: %w", err)
	}

	logger.Info("source synced",
		"entries", len(parsed.Entries),
		"new", result.NewArticles,
		"updated", result.Updated,
		"kind", src.Kind,
	)

	return result, nil
}

type publishItem struct {
	article *domain.Article
	isNew   bool
}

// reconcile diffs parsed entries against stored articles in feed order.
// Each entry is inserted, updated in place, or left untouched; syncing an
// unchanged feed twice is a no-op. Publishes are collected and emitted by
// the caller after the transaction commits.
func (s *SyncService) reconcile(ctx context.Context, src *domain.Source, entries []domain.Article) (*domain.SyncResult, []publishItem, error) {
	result := &domain.SyncResult{}
	var publishes []publishItem

	for i := range entries {
		entry := &entries[i]
		entry.SourceID = src.ID

		existing, err := s.articles.GetBySourceAndExternalID(ctx, src.ID, entry.ExternalID)
		if err != nil {
			return nil, nil, fmt.Errorf("lookup article %q: %w", entry.ExternalID, err)
		}

		if existing == nil {
			entry.SearchDigest = search.BuildDigest(entry.Title, entry.Summary, entry.Content)
			if err := s.articles.Insert(ctx, entry); err != nil {
				return nil, nil, fmt.Errorf("insert article %q: %w", entry.ExternalID, err)
			}
			result.NewArticles++
			publishes = append(publishes, publishItem{article: entry, isNew: true})
			continue
		}

		// Strict string inequality on the three content fields; no fuzzy
		// diffing.
		if entry.Title == existing.Title &&
			strValue(entry.Summary) == strValue(existing.Summary) &&
			strValue(entry.Content) == strValue(existing.Content) {
			continue
		}

		existing.Title = entry.Title
		existing.Summary = entry.Summary
		existing.Content = entry.Content
		existing.ThumbnailURL = entry.ThumbnailURL
		existing.SearchDigest = search.BuildDigest(entry.Title, entry.Summary, entry.Content)
		if err := s.articles.Update(ctx, existing); err != nil {
			return nil, nil, fmt.Errorf("update article %q: %w", entry.ExternalID, err)
		}
		result.Updated++
		publishes = append(publishes, publishItem{article: existing, isNew: false})
	}

	return result, publishes, nil
}

// prune enforces the per-source retention cap. Best-effort maintenance:
// errors are logged, never failed on.
func (s *SyncService) prune(ctx context.Context, src *domain.Source) {
	count, err := s.articles.CountBySource(ctx, src.ID)
	if err != nil {
		s.logger.Warn("count articles for pruning", "source_id", src.ID, "error", err)
		return
	}
	if count <= s.config.RetentionCap {
		return
	}

	pruned, err := s.articles.PruneOldest(ctx, src.ID, s.config.RetentionCap)
	if err != nil {
		s.logger.Warn("prune articles", "source_id", src.ID, "error", err)
		return
	}
	s.logger.Info("pruned articles", "source_id", src.ID, "pruned", pruned)
}

func (s *SyncService) publish(ctx context.Context, article *domain.Article, isNew bool) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, article, isNew); err != nil {
		s.logger.Warn("publish article", "article_id", article.ID, "error", err)
	}
}

func (s *SyncService) markSynced(src *domain.Source) {
	now := time.Now().UTC()
	src.LastSyncAt = &now
	src.LastError = nil
	src.ConsecutiveFailures = 0
}

// recordFailure updates the source's health state and re-raises the original
// error. Stored article state is never touched on the failure path.
func (s *SyncService) recordFailure(ctx context.Context, src *domain.Source, cause error) error {
	msg := cause.Error()
	src.LastError = &msg
	src.ConsecutiveFailures++

	if err := s.sources.Update(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("record sync failure", "source_id", src.ID, "error", err)
	}

	return cause
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

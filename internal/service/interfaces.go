package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"feedsync/internal/domain"
	"feedsync/internal/fetcher"
)

type SourceStore interface {
	// GetByID returns the source only when it belongs to ownerID;
	// domain.ErrSourceNotFound otherwise.
	GetByID(ctx context.Context, id int64, ownerID string) (*domain.Source, error)
	// ListSyncable returns all non-paused sources for an owner.
	ListSyncable(ctx context.Context, ownerID string) ([]domain.Source, error)
	Update(ctx context.Context, source *domain.Source) error
}

type ArticleStore interface {
	// GetBySourceAndExternalID returns (nil, nil) when no article exists.
	GetBySourceAndExternalID(ctx context.Context, sourceID int64, externalID string) (*domain.Article, error)
	Insert(ctx context.Context, article *domain.Article) error
	Update(ctx context.Context, article *domain.Article) error
	CountBySource(ctx context.Context, sourceID int64) (int, error)
	// PruneOldest deletes all but the keep most recent articles by
	// published_at, treating NULL publish dates as oldest.
	PruneOldest(ctx context.Context, sourceID int64, keep int) (int64, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, req fetcher.Request) (*fetcher.Result, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, article *domain.Article, isNew bool) error
	Close() error
}

// SourceSyncer is the per-source operation the batch coordinator drives.
type SourceSyncer interface {
	SyncSource(ctx context.Context, sourceID int64, ownerID string) (*domain.SyncResult, error)
}

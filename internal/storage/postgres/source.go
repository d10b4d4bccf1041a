package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

type SourceStore struct {
	db *sqlx.DB
}

func NewSourceStore(db *sqlx.DB) *SourceStore {
	return &SourceStore{db: db}
}

const sourceColumns = `
	id, owner_id, feed_url, site_url, title, kind, etag, last_modified,
	last_sync_at, last_error, consecutive_failures, is_paused,
	created_at, updated_at`

// GetByID loads one source, scoped to its owner. Soft-deleted sources are
// invisible to the engine.
func (s *SourceStore) GetByID(ctx context.Context, id int64, ownerID string) (*domain.Source, error) {
	query := `
		SELECT` + sourceColumns + `
		FROM sources
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`

	var src domain.Source
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &src, query, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// ListSyncable returns all non-paused, non-deleted sources for an owner.
func (s *SourceStore) ListSyncable(ctx context.Context, ownerID string) ([]domain.Source, error) {
	query := `
		SELECT` + sourceColumns + `
		FROM sources
		WHERE owner_id = $1 AND is_paused = FALSE AND deleted_at IS NULL
		ORDER BY id`

	var sources []domain.Source
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &sources, query, ownerID)
	return sources, err
}

// Create registers a new subscription. Title, site URL and kind are refined
// by the first successful sync.
func (s *SourceStore) Create(ctx context.Context, src *domain.Source) error {
	query := `
		INSERT INTO sources (owner_id, feed_url, site_url, title, kind, is_paused)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		src.OwnerID,
		src.FeedURL,
		src.SiteURL,
		src.Title,
		src.Kind,
		src.IsPaused,
	).Scan(&src.ID, &src.CreatedAt, &src.UpdatedAt)
}

// Update persists the mutable sync state: metadata refreshed from a parse,
// cache validators, and health counters.
func (s *SourceStore) Update(ctx context.Context, src *domain.Source) error {
	query := `
		UPDATE sources SET
			title = $2,
			site_url = $3,
			kind = $4,
			etag = $5,
			last_modified = $6,
			last_sync_at = $7,
			last_error = $8,
			consecutive_failures = $9,
			is_paused = $10,
			updated_at = NOW()
		WHERE id = $1`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		src.ID,
		src.Title,
		src.SiteURL,
		src.Kind,
		src.ETag,
		src.LastModified,
		src.LastSyncAt,
		src.LastError,
		src.ConsecutiveFailures,
		src.IsPaused,
	)
	return err
}

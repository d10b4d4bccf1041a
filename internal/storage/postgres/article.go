package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

const articleColumns = `
	id, source_id, external_id, title, author, summary, content, url,
	published_at, media_kind, thumbnail_url, enclosure_url, enclosure_type,
	search_digest, created_at, updated_at`

// GetBySourceAndExternalID returns the stored article for an entry, or
// (nil, nil) when it has never been seen.
func (s *ArticleStore) GetBySourceAndExternalID(ctx context.Context, sourceID int64, externalID string) (*domain.Article, error) {
	query := `
		SELECT` + articleColumns + `
		FROM articles
		WHERE source_id = $1 AND external_id = $2`

	var article domain.Article
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &article, query, sourceID, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &article, nil
}

func (s *ArticleStore) Insert(ctx context.Context, article *domain.Article) error {
	query := `
		INSERT INTO articles (
			id, source_id, external_id, title, author, summary, content, url,
			published_at, media_kind, thumbnail_url, enclosure_url,
			enclosure_type, search_digest
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		ON CONFLICT (id) DO NOTHING`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		article.ID,
		article.SourceID,
		article.ExternalID,
		article.Title,
		article.Author,
		article.Summary,
		article.Content,
		article.URL,
		article.PublishedAt,
		article.MediaKind,
		article.ThumbnailURL,
		article.EnclosureURL,
		article.EnclosureType,
		article.SearchDigest,
	)
	return err
}

// Update rewrites the fields the diff step refreshes on a changed entry.
func (s *ArticleStore) Update(ctx context.Context, article *domain.Article) error {
	query := `
		UPDATE articles SET
			title = $2,
			summary = $3,
			content = $4,
			thumbnail_url = $5,
			search_digest = $6,
			updated_at = NOW()
		WHERE id = $1`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		article.ID,
		article.Title,
		article.Summary,
		article.Content,
		article.ThumbnailURL,
		article.SearchDigest,
	)
	return err
}

func (s *ArticleStore) CountBySource(ctx context.Context, sourceID int64) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &count,
		"SELECT COUNT(*) FROM articles WHERE source_id = $1", sourceID)
	return count, err
}

// PruneOldest deletes everything beyond the keep most recent articles for a
// source. Articles with a NULL publish date sort as oldest so malformed
// feeds cannot grow without bound.
func (s *ArticleStore) PruneOldest(ctx context.Context, sourceID int64, keep int) (int64, error) {
	query := `
		DELETE FROM articles
		WHERE source_id = $1
		  AND id NOT IN (
			SELECT id FROM articles
			WHERE source_id = $1
			ORDER BY published_at DESC NULLS LAST, created_at DESC
			LIMIT $2
		  )`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, sourceID, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

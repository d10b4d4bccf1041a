package domain

import "time"

// SourceKind is the refined classification of a feed. It is often
// indistinguishable from the URL alone, so it is re-derived after every
// successful parse.
type SourceKind string

const (
	KindPlainFeed          SourceKind = "plain-feed"
	KindLinkAggregatorFeed SourceKind = "link-aggregator-feed"
	KindVideoChannelFeed   SourceKind = "video-channel-feed"
	KindPodcastFeed        SourceKind = "podcast-feed"
	KindStructuredJSONFeed SourceKind = "structured-json-feed"
)

// Source is a subscribed feed endpoint plus its sync and health metadata.
type Source struct {
	ID                  int64      `db:"id"`
	OwnerID             string     `db:"owner_id"`
	FeedURL             string     `db:"feed_url"`
	SiteURL             *string    `db:"site_url"`
	Title               string     `db:"title"`
	Kind                SourceKind `db:"kind"`
	ETag                *string    `db:"etag"`
	LastModified        *string    `db:"last_modified"`
	LastSyncAt          *time.Time `db:"last_sync_at"`
	LastError           *string    `db:"last_error"`
	ConsecutiveFailures int        `db:"consecutive_failures"`
	IsPaused            bool       `db:"is_paused"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

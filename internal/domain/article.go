package domain

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// MediaKind classifies an article's primary media payload.
type MediaKind string

const (
	MediaNone          MediaKind = "none"
	MediaVideo         MediaKind = "video"
	MediaAudioPodcast  MediaKind = "audio-podcast"
	MediaEmbeddedVideo MediaKind = "embedded-video"
)

// Article is one normalized content item belonging to a Source.
type Article struct {
	ID            string     `db:"id"`
	SourceID      int64      `db:"source_id"`
	ExternalID    string     `db:"external_id"`
	Title         string     `db:"title"`
	Author        *string    `db:"author"`
	Summary       *string    `db:"summary"`
	Content       *string    `db:"content"`
	URL           *string    `db:"url"`
	PublishedAt   *time.Time `db:"published_at"`
	MediaKind     MediaKind  `db:"media_kind"`
	ThumbnailURL  *string    `db:"thumbnail_url"`
	EnclosureURL  *string    `db:"enclosure_url"`
	EnclosureType *string    `db:"enclosure_type"`
	SearchDigest  string     `db:"search_digest"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// ArticleID derives the stable article identifier from the feed URL and the
// entry's external identity token. Repeated parses of the same raw content
// always produce the same ID, which is the basis for de-duplication.
func ArticleID(feedURL, externalID string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(feedURL+"\x00"+externalID))
}

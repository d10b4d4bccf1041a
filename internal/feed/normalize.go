package feed

import (
	"fmt"
	"regexp"
	"strings"

	"feedsync/internal/domain"
)

// Fallback chains are explicit ordered extractor lists: the first non-empty
// result wins. Keeping them as data makes the precedence rules auditable.
var (
	titleExtractors = []func(*node) string{
		func(e *node) string { return e.childText("title") },
		func(e *node) string { return e.childText("media:title") },
		entryLink,
	}

	identityExtractors = []func(*node) string{
		func(e *node) string { return e.childText("guid") },
		func(e *node) string { return e.childText("id") },
		entryLink,
		func(e *node) string { return e.childText("title") },
	}

	contentExtractors = []func(*node) string{
		func(e *node) string { return e.childText("content:encoded") },
		func(e *node) string { return e.childText("content") },
		func(e *node) string { return e.childText("description") },
		func(e *node) string { return e.childText("summary") },
	}

	summaryExtractors = []func(*node) string{
		func(e *node) string { return e.childText("description") },
		func(e *node) string { return e.childText("summary") },
		func(e *node) string { return e.childText("media:description") },
	}

	authorExtractors = []func(*node) string{
		func(e *node) string { return e.childText("dc:creator") },
		func(e *node) string {
			a := e.child("author")
			if name := a.childText("name"); name != "" {
				return name
			}
			return a.textValue()
		},
		func(e *node) string { return e.childText("itunes:author") },
	}

	dateExtractors = []func(*node) string{
		func(e *node) string { return e.childText("pubDate") },
		func(e *node) string { return e.childText("published") },
		func(e *node) string { return e.childText("updated") },
		func(e *node) string { return e.childText("dc:date") },
	}
)

func firstNonEmpty(e *node, extractors []func(*node) string) string {
	for _, extract := range extractors {
		if v := strings.TrimSpace(extract(e)); v != "" {
			return v
		}
	}
	return ""
}

// entryLink resolves an entry's link, which may be a bare text node or an
// attributed node carrying the target in href. Atom entries can carry
// several links; the alternate one wins.
func entryLink(e *node) string {
	var alternate string
	for _, l := range e.childList("link") {
		if v := l.value(); v != "" {
			return v
		}
		rel := l.attr("rel")
		if href := l.attr("href"); href != "" && (rel == "" || rel == "alternate") && alternate == "" {
			alternate = href
		}
	}
	return alternate
}

// normalizeEntry converts one raw entry node into a domain Article. Content
// is stored as provided, HTML retained; stripping belongs to the search and
// presentation layers.
func normalizeEntry(e *node, feedURL string, kind domain.SourceKind) domain.Article {
	title := firstNonEmpty(e, titleExtractors)
	if title == "" {
		title = "Untitled"
	}

	externalID := firstNonEmpty(e, identityExtractors)

	a := domain.Article{
		ID:         domain.ArticleID(feedURL, externalID),
		ExternalID: externalID,
		Title:      title,
		MediaKind:  domain.MediaNone,
	}

	if link := entryLink(e); link != "" {
		a.URL = &link
	}
	if author := firstNonEmpty(e, authorExtractors); author != "" {
		a.Author = &author
	}
	if summary := firstNonEmpty(e, summaryExtractors); summary != "" {
		a.Summary = &summary
	}
	if content := firstNonEmpty(e, contentExtractors); content != "" {
		a.Content = &content
	}
	a.PublishedAt = parseDate(firstNonEmpty(e, dateExtractors))

	classifyMedia(&a, e)
	extractThumbnail(&a, e, kind)

	return a
}

// classifyMedia sets the article's media kind: enclosure MIME type first,
// then a namespaced video id.
func classifyMedia(a *domain.Article, e *node) {
	encURL, encType := entryEnclosure(e)
	if encURL != "" {
		a.EnclosureURL = &encURL
	}
	if encType != "" {
		a.EnclosureType = &encType
	}

	switch {
	case strings.HasPrefix(encType, "audio/"):
		a.MediaKind = domain.MediaAudioPodcast
	case strings.HasPrefix(encType, "video/"):
		a.MediaKind = domain.MediaEmbeddedVideo
	case e.childText("yt:videoId") != "":
		a.MediaKind = domain.MediaVideo
	}
}

// entryEnclosure finds the entry's enclosure: an RSS <enclosure url type>
// element or an Atom link with rel="enclosure".
func entryEnclosure(e *node) (url, mimeType string) {
	if enc := e.child("enclosure"); enc != nil {
		return enc.attr("url"), enc.attr("type")
	}
	for _, l := range e.childList("link") {
		if l.attr("rel") == "enclosure" {
			return l.attr("href"), l.attr("type")
		}
	}
	return "", ""
}

var (
	imgTagPattern    = regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["']`)
	redditImgPattern = regexp.MustCompile(`https://i\.redd\.it/[^"'&\s<>]+`)
)

// extractThumbnail resolves a thumbnail in precedence order: declared media
// thumbnail, podcast artwork, a synthesized video still, and finally — for
// link-aggregator entries only — best-effort pattern matching over the entry
// body. The scrape is inherently fragile; a miss leaves the field nil and
// never affects the rest of the entry.
func extractThumbnail(a *domain.Article, e *node, kind domain.SourceKind) {
	if thumb := e.child("media:thumbnail").attr("url"); thumb != "" {
		a.ThumbnailURL = &thumb
		return
	}
	if thumb := e.child("itunes:image").attr("href"); thumb != "" {
		a.ThumbnailURL = &thumb
		return
	}
	if videoID := e.childText("yt:videoId"); videoID != "" {
		thumb := fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", videoID)
		a.ThumbnailURL = &thumb
		return
	}

	if kind != domain.KindLinkAggregatorFeed {
		return
	}
	var body string
	if a.Content != nil {
		body = *a.Content
	} else if a.Summary != nil {
		body = *a.Summary
	}
	if m := imgTagPattern.FindStringSubmatch(body); m != nil {
		a.ThumbnailURL = &m[1]
		return
	}
	if m := redditImgPattern.FindString(body); m != "" {
		a.ThumbnailURL = &m
	}
}

package feed

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"feedsync/internal/domain"
)

// ParsedFeed is the normalized result of parsing one feed document.
type ParsedFeed struct {
	Title   string
	SiteURL string
	Kind    domain.SourceKind
	Entries []domain.Article
}

// Parse turns raw response bytes plus the feed URL into a ParsedFeed. It
// accepts JSON Feed, RSS 2.0, Atom and RDF/RSS 1.0 documents and fails with
// domain.ErrUnparsableContent only when none of them can be extracted.
//
// Parse performs no I/O and is safe to call from any number of concurrent
// workers on independent inputs.
func Parse(raw []byte, feedURL string) (*ParsedFeed, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, domain.ErrUnparsableContent
	}

	// A body that opens with '{' is most likely a JSON Feed, but malformed
	// JSON falls through to the XML branch rather than erroring immediately.
	if trimmed[0] == '{' {
		if pf, err := parseJSONFeed(trimmed, feedURL); err == nil {
			return pf, nil
		}
	}

	return parseXMLFeed(trimmed, feedURL)
}

func parseXMLFeed(raw []byte, feedURL string) (*ParsedFeed, error) {
	root, err := decodeTree(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnparsableContent, err)
	}

	var channel *node
	var entries []*node

	switch {
	case root.child("rss") != nil:
		channel = root.child("rss").child("channel")
		entries = channel.childList("item")
	case root.child("feed") != nil:
		channel = root.child("feed")
		entries = channel.childList("entry")
	case root.child("rdf:RDF") != nil:
		rdf := root.child("rdf:RDF")
		channel = rdf.child("channel")
		// RSS 1.0 places items as siblings of the channel, directly under
		// the RDF root; some producers nest them anyway.
		entries = rdf.childList("item")
		if len(entries) == 0 {
			entries = channel.childList("item")
		}
	}

	if channel == nil {
		return nil, domain.ErrUnparsableContent
	}

	kind := inferKind(feedURL, raw)

	pf := &ParsedFeed{
		Title:   channel.childText("title"),
		SiteURL: channelLink(channel),
		Kind:    kind,
	}

	pf.Entries = make([]domain.Article, 0, len(entries))
	for _, e := range entries {
		pf.Entries = append(pf.Entries, normalizeEntry(e, feedURL, kind))
	}

	// An RSS feed whose entries carry audio enclosures is a podcast; only
	// the entries can tell.
	if pf.Kind == domain.KindPlainFeed {
		for _, a := range pf.Entries {
			if a.MediaKind == domain.MediaAudioPodcast {
				pf.Kind = domain.KindPodcastFeed
				break
			}
		}
	}

	return pf, nil
}

// inferKind classifies a feed from its URL and raw body. The URL alone is
// often not enough: a video channel exported as RSS only reveals itself
// through namespaced video-id elements in the body.
func inferKind(feedURL string, raw []byte) domain.SourceKind {
	host := ""
	if u, err := url.Parse(feedURL); err == nil {
		host = strings.ToLower(u.Hostname())
	}

	switch {
	case strings.HasSuffix(host, "youtube.com"),
		strings.HasSuffix(host, "youtu.be"),
		bytes.Contains(raw, []byte("yt:videoId")),
		bytes.Contains(raw, []byte("xmlns:yt")):
		return domain.KindVideoChannelFeed
	case strings.HasSuffix(host, "reddit.com"):
		return domain.KindLinkAggregatorFeed
	}
	return domain.KindPlainFeed
}

// channelLink resolves the feed's canonical site link: a bare <link> text
// node in RSS, or an href-attributed alternate link in Atom.
func channelLink(channel *node) string {
	var alternate string
	for _, l := range channel.childList("link") {
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

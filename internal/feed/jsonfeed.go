package feed

import (
	"encoding/json"
	"strconv"
	"strings"

	"feedsync/internal/domain"
)

// jsonFeed mirrors the JSON Feed document structure.
type jsonFeed struct {
	Version     string     `json:"version"`
	Title       string     `json:"title"`
	HomePageURL string     `json:"home_page_url"`
	Items       []jsonItem `json:"items"`
}

type jsonItem struct {
	ID            flexString       `json:"id"`
	URL           string           `json:"url"`
	ExternalURL   string           `json:"external_url"`
	Title         string           `json:"title"`
	ContentHTML   string           `json:"content_html"`
	ContentText   string           `json:"content_text"`
	Summary       string           `json:"summary"`
	Image         string           `json:"image"`
	DatePublished string           `json:"date_published"`
	Author        *jsonAuthor      `json:"author"`
	Attachments   []jsonAttachment `json:"attachments"`
}

type jsonAuthor struct {
	Name string `json:"name"`
}

type jsonAttachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// flexString tolerates producers that emit numeric item ids.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func parseJSONFeed(raw []byte, feedURL string) (*ParsedFeed, error) {
	var doc jsonFeed
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	pf := &ParsedFeed{
		Title:   doc.Title,
		SiteURL: doc.HomePageURL,
		Kind:    domain.KindStructuredJSONFeed,
	}

	pf.Entries = make([]domain.Article, 0, len(doc.Items))
	for i, item := range doc.Items {
		pf.Entries = append(pf.Entries, normalizeJSONItem(item, feedURL, i))
	}

	return pf, nil
}

func normalizeJSONItem(item jsonItem, feedURL string, index int) domain.Article {
	externalID := firstNonEmptyString(string(item.ID), item.URL, item.Title)
	if externalID == "" {
		externalID = "item-" + strconv.Itoa(index)
	}

	title := firstNonEmptyString(item.Title, item.URL)
	if title == "" {
		title = "Untitled"
	}

	a := domain.Article{
		ID:         domain.ArticleID(feedURL, externalID),
		ExternalID: externalID,
		Title:      title,
		MediaKind:  domain.MediaNone,
	}

	if link := firstNonEmptyString(item.URL, item.ExternalURL); link != "" {
		a.URL = &link
	}
	if item.Author != nil && item.Author.Name != "" {
		author := item.Author.Name
		a.Author = &author
	}
	if item.Summary != "" {
		summary := item.Summary
		a.Summary = &summary
	}
	if content := firstNonEmptyString(item.ContentHTML, item.ContentText, item.Summary); content != "" {
		a.Content = &content
	}
	if item.Image != "" {
		image := item.Image
		a.ThumbnailURL = &image
	}
	a.PublishedAt = parseDate(item.DatePublished)

	for _, att := range item.Attachments {
		switch {
		case strings.HasPrefix(att.MimeType, "audio/"):
			a.MediaKind = domain.MediaAudioPodcast
		case strings.HasPrefix(att.MimeType, "video/"):
			a.MediaKind = domain.MediaEmbeddedVideo
		default:
			continue
		}
		encURL, encType := att.URL, att.MimeType
		a.EnclosureURL = &encURL
		a.EnclosureType = &encType
		break
	}

	return a
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

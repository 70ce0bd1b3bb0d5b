package domain

import (
	"strings"
	"time"
)

// ArticleMetadata describes the resolved article body plus everything the
// retrieval boundary could discover about it.
type ArticleMetadata struct {
	URL         string
	Title       string
	Source      string
	PublishedAt *time.Time
	Language    string
	Text        string
	WordCount   int
}

// NewArticleMetadata normalizes the extracted text and fills the word count.
func NewArticleMetadata(url, title, source, language, text string, publishedAt *time.Time) ArticleMetadata {
	text = strings.TrimSpace(text)
	return ArticleMetadata{
		URL:         url,
		Title:       strings.TrimSpace(title),
		Source:      source,
		PublishedAt: publishedAt,
		Language:    language,
		Text:        text,
		WordCount:   len(strings.Fields(text)),
	}
}

// ReferenceDate returns the publish date when known, otherwise the fallback.
// Age alignment is computed against this date.
func (a ArticleMetadata) ReferenceDate(fallback time.Time) time.Time {
	if a.PublishedAt != nil {
		return *a.PublishedAt
	}
	return fallback
}

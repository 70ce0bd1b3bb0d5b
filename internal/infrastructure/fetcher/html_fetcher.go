package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"AdverseScreener/internal/domain"
	"AdverseScreener/internal/ports"
)

// HTMLFetcher resolves article URLs into clean text for screening. It
// strips navigation and script noise and keeps the readable body.
type HTMLFetcher struct {
	client    *http.Client
	userAgent string
	maxChars  int
}

var _ ports.ArticleSource = (*HTMLFetcher)(nil)

// NewHTMLFetcher wires an HTTP client; maxChars bounds the extracted text.
func NewHTMLFetcher(client *http.Client, userAgent string, maxChars int) *HTMLFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = "AdverseScreener/1.0"
	}
	return &HTMLFetcher{client: client, userAgent: userAgent, maxChars: maxChars}
}

// Fetch downloads and parses one article page. All failures wrap
// ports.ErrRetrieval so the pipeline can treat them uniformly.
func (f *HTMLFetcher) Fetch(ctx context.Context, rawURL string) (domain.ArticleMetadata, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return domain.ArticleMetadata{}, fmt.Errorf("invalid article url %q: %w", rawURL, ports.ErrRetrieval)
	}

	doc, err := f.fetchDocument(ctx, rawURL)
	if err != nil {
		return domain.ArticleMetadata{}, err
	}

	doc.Find("script, style, noscript, nav, header, footer, aside").Remove()

	title := extractTitle(doc)
	text := extractText(doc)
	if f.maxChars > 0 && len(text) > f.maxChars {
		text = text[:f.maxChars]
	}

	language, _ := doc.Find("html").Attr("lang")
	article := domain.NewArticleMetadata(rawURL, title, parsed.Host, language, text, extractPublishedAt(doc))
	if article.Text == "" {
		return domain.ArticleMetadata{}, fmt.Errorf("no readable text at %s: %w", rawURL, ports.ErrRetrieval)
	}
	return article, nil
}

func (f *HTMLFetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", ports.ErrRetrieval)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request article: %v: %w", err, ports.ErrRetrieval)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("article server returned %s: %w", resp.Status, ports.ErrRetrieval)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse article html: %w", ports.ErrRetrieval)
	}
	return doc, nil
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// extractText prefers paragraphs inside an article element; pages without
// one fall back to all paragraphs, then to the whole body.
func extractText(doc *goquery.Document) string {
	var parts []string
	collect := func(i int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	}

	doc.Find("article p").Each(collect)
	if len(parts) == 0 {
		doc.Find("p").Each(collect)
	}
	if len(parts) == 0 {
		return strings.TrimSpace(doc.Find("body").Text())
	}
	return strings.Join(parts, "\n\n")
}

func extractPublishedAt(doc *goquery.Document) *time.Time {
	raw, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content")
	if !ok {
		raw, _ = doc.Find(`meta[name="date"]`).Attr("content")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed
		}
	}
	return nil
}

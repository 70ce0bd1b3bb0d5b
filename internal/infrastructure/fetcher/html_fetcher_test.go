package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"AdverseScreener/internal/ports"
)

const articlePage = `<!DOCTYPE html>
<html lang="en">
<head>
<title>Fallback title</title>
<meta property="og:title" content="Executive charged with fraud">
<meta property="article:published_time" content="2024-06-15T10:30:00Z">
<script>var tracking = true;</script>
</head>
<body>
<nav>Home | News | Sports</nav>
<article>
<p>John Smith, 45 years old, was charged with fraud on Friday.</p>
<p>Prosecutors allege a multi-year scheme.</p>
</article>
<footer>Copyright</footer>
</body>
</html>`

func TestFetchParsesArticle(t *testing.T) {
	t.Parallel()

	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(articlePage))
	}))
	defer server.Close()

	f := NewHTMLFetcher(server.Client(), "screener-test/1.0", 0)
	article, err := f.Fetch(context.Background(), server.URL+"/news/fraud")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotUA != "screener-test/1.0" {
		t.Errorf("user agent = %q", gotUA)
	}
	if article.Title != "Executive charged with fraud" {
		t.Errorf("title = %q", article.Title)
	}
	if article.Language != "en" {
		t.Errorf("language = %q", article.Language)
	}
	if !strings.Contains(article.Text, "charged with fraud") {
		t.Errorf("text missing article body: %q", article.Text)
	}
	if strings.Contains(article.Text, "tracking") || strings.Contains(article.Text, "Home | News") {
		t.Errorf("text contains page chrome: %q", article.Text)
	}
	if article.PublishedAt == nil || article.PublishedAt.Year() != 2024 {
		t.Errorf("published at = %v", article.PublishedAt)
	}
	if article.WordCount == 0 {
		t.Error("word count not computed")
	}
}

func TestFetchTruncatesLongArticles(t *testing.T) {
	t.Parallel()

	long := "<html><body><p>" + strings.Repeat("word ", 5000) + "</p></body></html>"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(long))
	}))
	defer server.Close()

	f := NewHTMLFetcher(server.Client(), "", 100)
	article, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(article.Text) > 100 {
		t.Errorf("text length = %d, want <= 100", len(article.Text))
	}
}

func TestFetchErrorsWrapRetrieval(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewHTMLFetcher(server.Client(), "", 0)

	cases := []struct {
		name string
		url  string
	}{
		{name: "http error status", url: server.URL + "/missing"},
		{name: "invalid url", url: "::not-a-url::"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := f.Fetch(context.Background(), tc.url)
			if !errors.Is(err, ports.ErrRetrieval) {
				t.Fatalf("error %v does not wrap retrieval failure", err)
			}
		})
	}
}

func TestFetchRejectsEmptyPages(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html><body><script>only noise</script></body></html>"))
	}))
	defer server.Close()

	f := NewHTMLFetcher(server.Client(), "", 0)
	_, err := f.Fetch(context.Background(), server.URL)
	if !errors.Is(err, ports.ErrRetrieval) {
		t.Fatalf("error %v does not wrap retrieval failure", err)
	}
}

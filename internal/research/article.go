package research

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"kite-agent-bridge/internal/api"
	"kite-agent-bridge/internal/logger"
)

const (
	articleSelector = "article p, main p, div.article-body p, div.content-body p, div.story-content p"
	maxSnippet      = 400
)

// ArticleReader fetches a page and pulls a short text summary out of it.
type ArticleReader struct {
	client *api.Client
}

func NewArticleReader(client *api.Client) *ArticleReader {
	return &ArticleReader{client: client}
}

// Summary returns the opening paragraphs of the article at articleURL, or the
// page description when no article body is found.
func (r *ArticleReader) Summary(ctx context.Context, articleURL string) (string, error) {
	headers := api.BrowserHeaders()
	headers["Accept"] = "text/html,application/xhtml+xml"

	resp, err := r.client.GET(ctx, articleURL, headers)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("article fetch returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("failed to parse article: %w", err)
	}

	var paragraphs []string
	doc.Find(articleSelector).Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if len(text) > 20 {
			paragraphs = append(paragraphs, text)
		}
	})
	summary := strings.Join(paragraphs, " ")
	if summary == "" {
		summary, _ = doc.Find(`meta[name="description"], meta[property="og:description"]`).First().Attr("content")
	}

	logger.Debug(ctx, "Article summarised", "paragraphs", len(paragraphs), "length", len(summary))
	return truncate(strings.TrimSpace(summary), maxSnippet), nil
}

// htmlText strips markup from an HTML fragment
func htmlText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndex(s[:n], " ")
	if cut <= 0 {
		cut = n
	}
	return s[:cut] + "..."
}

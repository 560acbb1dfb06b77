package research

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/types"
)

const (
	googleNewsURL = "https://news.google.com"
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// GoogleNews searches the Google News RSS feed. It needs no API key.
type GoogleNews struct {
	baseURL string
	timeout time.Duration
}

// NewGoogleNews creates a provider; an empty baseURL means news.google.com.
func NewGoogleNews(baseURL string, timeout time.Duration) *GoogleNews {
	if baseURL == "" {
		baseURL = googleNewsURL
	}
	return &GoogleNews{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

func (g *GoogleNews) Name() string { return "google_news" }

// Search scrapes up to max items for query
func (g *GoogleNews) Search(ctx context.Context, query string, max int) ([]types.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	articles := []types.Article{}

	c := colly.NewCollector(
		colly.AllowedDomains(hostname(g.baseURL)),
		colly.UserAgent(userAgent),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(g.timeout)

	c.OnXML("//item", func(e *colly.XMLElement) {
		if len(articles) >= max {
			return
		}
		title := strings.TrimSpace(e.ChildText("title"))
		link := strings.TrimSpace(e.ChildText("link"))
		if title == "" || link == "" {
			return
		}
		source := strings.TrimSpace(e.ChildText("source"))
		if source != "" {
			title = strings.TrimSuffix(title, " - "+source)
		} else {
			source = "Google News"
		}
		// Feed descriptions usually repeat the headline and source only.
		snippet := htmlText(e.ChildText("description"))
		if strings.HasPrefix(snippet, title) {
			snippet = ""
		}
		articles = append(articles, types.Article{
			Title:       title,
			URL:         link,
			Snippet:     snippet,
			Source:      source,
			PublishedAt: strings.TrimSpace(e.ChildText("pubDate")),
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.ErrorWithErr(ctx, "Google News request failed", err, "status", r.StatusCode)
	})

	searchURL := fmt.Sprintf("%s/rss/search?q=%s&hl=en-IN&gl=IN&ceid=IN:en", g.baseURL, url.QueryEscape(query))
	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("failed to scrape Google News: %w", err)
	}
	c.Wait()

	logger.Debug(ctx, "Google News scraping completed", "query", query, "articles", len(articles))
	return articles, nil
}

// hostname extracts the host from a URL
func hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

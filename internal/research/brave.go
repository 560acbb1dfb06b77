package research

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kite-agent-bridge/internal/api"
	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/types"
)

const braveBaseURL = "https://api.search.brave.com"

// Brave searches the Brave Search news API.
type Brave struct {
	client *api.Client
}

type braveResponse struct {
	Results []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Age         string `json:"age"`
		MetaURL     struct {
			Hostname string `json:"hostname"`
		} `json:"meta_url"`
	} `json:"results"`
}

// NewBrave creates a provider; an empty baseURL means the public API.
func NewBrave(apiKey, baseURL string, timeout time.Duration) (*Brave, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("BRAVE_API_KEY missing")
	}
	if baseURL == "" {
		baseURL = braveBaseURL
	}
	client := api.NewClient(
		api.WithBaseURL(strings.TrimRight(baseURL, "/")),
		api.WithTimeout(timeout),
		api.WithHeader("Accept", "application/json"),
		api.WithHeader("X-Subscription-Token", apiKey),
		api.WithLogging(logger.IsDebugEnabled()),
	)
	return &Brave{client: client}, nil
}

func (b *Brave) Name() string { return "brave" }

func (b *Brave) Search(ctx context.Context, query string, max int) ([]types.Article, error) {
	req := api.NewRequest(http.MethodGet, "/res/v1/news/search").
		WithContext(ctx).
		WithQuery("q", query).
		WithQuery("count", strconv.Itoa(max))

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search failed: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("brave search returned %d", resp.StatusCode)
	}

	var body braveResponse
	if err := resp.ParseJSON(&body); err != nil {
		return nil, err
	}

	articles := make([]types.Article, 0, len(body.Results))
	for _, r := range body.Results {
		if len(articles) >= max {
			break
		}
		source := r.MetaURL.Hostname
		if source == "" {
			source = hostname(r.URL)
		}
		articles = append(articles, types.Article{
			Title:       htmlText(r.Title),
			URL:         r.URL,
			Snippet:     htmlText(r.Description),
			Source:      source,
			PublishedAt: r.Age,
		})
	}
	return articles, nil
}

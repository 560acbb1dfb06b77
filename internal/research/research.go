// Package research answers open-web questions for the research agent. It
// never touches the broker session and is the only place results are cached.
package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kite-agent-bridge/internal/api"
	"kite-agent-bridge/internal/interfaces"
	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/store"
	"kite-agent-bridge/internal/types"
)

// Provider returns articles for a query.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, max int) ([]types.Article, error)
}

// Summarizer turns an article URL into a short text.
type Summarizer interface {
	Summary(ctx context.Context, articleURL string) (string, error)
}

// Service combines a provider with caching, rate limiting and optional
// article enrichment.
type Service struct {
	provider      Provider
	reader        Summarizer
	cache         *resultCache
	limiter       *RateLimiter
	maxResults    int
	fetchArticles int
}

var _ interfaces.Researcher = (*Service)(nil)

type Option func(*Service)

// WithProvider replaces the configured provider
func WithProvider(p Provider) Option {
	return func(s *Service) { s.provider = p }
}

// WithSummarizer replaces the article reader
func WithSummarizer(r Summarizer) Option {
	return func(s *Service) { s.reader = r }
}

// WithRateLimiter replaces the default limiter of one search every two seconds
// with a burst of three.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Service) { s.limiter = rl }
}

// NewService builds the service described by cfg
func NewService(cfg store.ResearchConfig, opts ...Option) (*Service, error) {
	s := &Service{
		cache:         newResultCache(cfg.CacheTTL),
		limiter:       NewRateLimiter(3, 2*time.Second),
		maxResults:    cfg.MaxResults,
		fetchArticles: cfg.FetchArticles,
	}
	if s.maxResults <= 0 {
		s.maxResults = 5
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.provider == nil {
		switch cfg.Provider {
		case "brave":
			b, err := NewBrave(cfg.BraveAPIKey, "", cfg.Timeout)
			if err != nil {
				return nil, err
			}
			s.provider = b
		default:
			s.provider = NewGoogleNews("", cfg.Timeout)
		}
	}
	if s.reader == nil && s.fetchArticles > 0 {
		s.reader = NewArticleReader(api.NewClient(
			api.WithTimeout(cfg.Timeout),
			api.WithLogging(logger.IsDebugEnabled()),
		))
	}
	return s, nil
}

// Research returns the cached result for query or searches the provider.
func (s *Service) Research(ctx context.Context, query string) (types.ResearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return types.ResearchResult{}, fmt.Errorf("%w: query", types.ErrMissingParameters)
	}

	if cached, ok := s.cache.get(query); ok {
		logger.Info(ctx, "Using cached research", "query", query, "age", time.Since(cached.FetchedAt).Round(time.Second))
		return cached, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return types.ResearchResult{}, err
	}

	logger.Info(ctx, "Searching the web", "query", query, "provider", s.provider.Name())
	articles, err := s.provider.Search(ctx, query, s.maxResults)
	if err != nil {
		logger.ErrorWithErr(ctx, "Research search failed", err, "provider", s.provider.Name())
		return types.ResearchResult{}, fmt.Errorf("%s search failed: %w", s.provider.Name(), err)
	}
	s.enrich(ctx, articles)

	result := types.ResearchResult{
		Query:     query,
		Provider:  s.provider.Name(),
		Answer:    answer(query, articles),
		Articles:  articles,
		FetchedAt: time.Now().UTC(),
	}
	s.cache.set(query, result)
	return result, nil
}

// ClearCache drops every cached result
func (s *Service) ClearCache() {
	s.cache.clear()
}

// enrich replaces thin snippets of the leading articles with page text.
// Failures keep the provider's snippet.
func (s *Service) enrich(ctx context.Context, articles []types.Article) {
	if s.reader == nil {
		return
	}
	for i := 0; i < len(articles) && i < s.fetchArticles; i++ {
		if len(articles[i].Snippet) >= 100 {
			continue
		}
		summary, err := s.reader.Summary(ctx, articles[i].URL)
		if err != nil {
			logger.Debug(ctx, "Article enrichment skipped", "url", articles[i].URL, "error", err)
			continue
		}
		if summary != "" {
			articles[i].Snippet = summary
		}
	}
}

func answer(query string, articles []types.Article) string {
	if len(articles) == 0 {
		return fmt.Sprintf("No recent results found for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d results for %q. Leading story: %s (%s).", len(articles), query, articles[0].Title, articles[0].Source)
	if s := articles[0].Snippet; s != "" && s != articles[0].Title {
		b.WriteString(" ")
		b.WriteString(s)
	}
	return b.String()
}

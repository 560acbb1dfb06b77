package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"kite-agent-bridge/internal/logger"
)

// Client represents an HTTP client with common configuration and utilities
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	useLogging bool
}

// logDebug logs debug messages using the global logger
func (c *Client) logDebug(ctx context.Context, msg string, args ...any) {
	if c.useLogging {
		logger.Debug(ctx, msg, args...)
	}
}

// logWarn logs warning messages using the global logger
func (c *Client) logWarn(ctx context.Context, msg string, args ...any) {
	if c.useLogging {
		logger.Warn(ctx, msg, args...)
	}
}

// logError logs error messages using the global logger
func (c *Client) logError(ctx context.Context, msg string, args ...any) {
	if c.useLogging {
		logger.Error(ctx, msg, args...)
	}
}

// ClientOption configures the API client
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithBaseURL sets the base URL for all requests
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHeader sets a default header for all requests
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithLogging enables logging for the API client
func WithLogging(enabled bool) ClientOption {
	return func(c *Client) {
		c.useLogging = enabled
	}
}

// NewClient creates a new API client with the given options
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers:    make(map[string]string),
		useLogging: false,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// BaseURL returns the prefix applied to relative request URLs
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request represents an HTTP request configuration
type Request struct {
	Method  string
	URL     string
	Body    any
	Query   url.Values
	Headers map[string]string
	ctx     context.Context
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// NewRequest creates a new request
func NewRequest(method, url string) *Request {
	return &Request{
		Method:  method,
		URL:     url,
		Headers: make(map[string]string),
		ctx:     context.Background(),
	}
}

// WithContext sets the context for the request
func (r *Request) WithContext(ctx context.Context) *Request {
	r.ctx = ctx
	return r
}

// WithBody sets the request body (will be JSON encoded)
func (r *Request) WithBody(body any) *Request {
	r.Body = body
	return r
}

// WithQuery sets query string parameters; empty values are dropped
func (r *Request) WithQuery(key, value string) *Request {
	if value == "" {
		return r
	}
	if r.Query == nil {
		r.Query = url.Values{}
	}
	r.Query.Set(key, value)
	return r
}

// WithHeader sets a request-specific header
func (r *Request) WithHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

// FullURL resolves the request URL against the client's base URL
func (c *Client) FullURL(req *Request) string {
	u := req.URL
	if c.baseURL != "" {
		u = c.baseURL + req.URL
	}
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

// Do executes the HTTP request. Error statuses are returned as a Response,
// not an error; only transport and encoding failures produce an error.
func (c *Client) Do(req *Request) (*Response, error) {
	url := c.FullURL(req)

	var bodyReader io.Reader
	if req.Body != nil {
		jsonBody, err := json.Marshal(req.Body)
		if err != nil {
			c.logError(req.ctx, "Failed to marshal request body", "error", err)
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(req.ctx, req.Method, url, bodyReader)
	if err != nil {
		c.logError(req.ctx, "Failed to create HTTP request", "error", err)
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	for key, value := range c.headers {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	c.logDebug(req.ctx, "HTTP Request", "method", req.Method, "url", req.URL)

	startTime := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logError(req.ctx, "HTTP request failed", "method", req.Method, "url", req.URL, "error", err)
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.logError(req.ctx, "Failed to read response body", "error", err)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logDebug(req.ctx, "HTTP Response",
		"method", req.Method,
		"url", req.URL,
		"status", httpResp.StatusCode,
		"duration", time.Since(startTime),
		"bodySize", len(body))

	if httpResp.StatusCode >= 400 {
		c.logWarn(req.ctx, "HTTP error response",
			"method", req.Method,
			"url", req.URL,
			"status", httpResp.StatusCode)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		Headers:    httpResp.Header,
	}, nil
}

// GET performs a GET request
func (c *Client) GET(ctx context.Context, url string, headers ...map[string]string) (*Response, error) {
	req := NewRequest(http.MethodGet, url).WithContext(ctx)
	if len(headers) > 0 {
		for key, value := range headers[0] {
			req.WithHeader(key, value)
		}
	}
	return c.Do(req)
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ParseJSON parses the response body as JSON into the given struct
func (r *Response) ParseJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

// String returns the response body as a string
func (r *Response) String() string {
	return string(r.Body)
}

// BrowserHeaders returns common browser headers to mimic a real browser request
func BrowserHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9",
	}
}

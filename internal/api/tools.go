package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kite-agent-bridge/internal/interfaces"
	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/types"
)

const (
	DefaultProxyURL = "http://127.0.0.1:5000"
	// ToolTimeout bounds every proxy call. A timeout is reported like a
	// refused connection.
	ToolTimeout = 10 * time.Second
)

// ToolClient mirrors the proxy routes one method per route. Every method
// returns an envelope; transport failures never surface as Go errors.
type ToolClient struct {
	http        *Client
	openBrowser func(string) error
}

var _ interfaces.ToolClient = (*ToolClient)(nil)

type ToolOption func(*ToolClient)

// WithBrowserOpener replaces the function used by InitiateLoginFlow.
func WithBrowserOpener(fn func(string) error) ToolOption {
	return func(tc *ToolClient) {
		tc.openBrowser = fn
	}
}

// WithHTTPClientOptions forwards options to the underlying HTTP client.
func WithHTTPClientOptions(opts ...ClientOption) ToolOption {
	return func(tc *ToolClient) {
		for _, opt := range opts {
			opt(tc.http)
		}
	}
}

func NewToolClient(baseURL string, opts ...ToolOption) *ToolClient {
	if baseURL == "" {
		baseURL = DefaultProxyURL
	}
	tc := &ToolClient{
		http: NewClient(
			WithBaseURL(strings.TrimRight(baseURL, "/")),
			WithTimeout(ToolTimeout),
			WithHeader("Accept", "application/json"),
			WithLogging(true),
		),
		openBrowser: OpenBrowser,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

func (tc *ToolClient) BaseURL() string {
	return tc.http.BaseURL()
}

// call performs one proxy request. A JSON envelope in the response is
// returned as is, whatever the HTTP status.
func (tc *ToolClient) call(req *Request) types.Envelope {
	full := tc.http.FullURL(req)
	logger.Debug(req.ctx, "Calling proxy", "method", req.Method, "path", req.URL)

	resp, err := tc.http.Do(req)
	if err != nil {
		return transportFailure(req.ctx, full, err)
	}

	var env types.Envelope
	perr := resp.ParseJSON(&env)
	if perr == nil && (env.Status == types.StatusSuccess || env.Status == types.StatusError) {
		return env
	}
	if !resp.OK() {
		msg := fmt.Sprintf("HTTP Error: %d for %s. Response: %s", resp.StatusCode, full, strings.TrimSpace(resp.String()))
		logger.Warn(req.ctx, "Proxy returned a non-envelope error", "status", resp.StatusCode, "path", req.URL)
		return types.Failure(msg)
	}
	if perr == nil {
		perr = errors.New("missing status field")
	}
	return types.Failure(fmt.Sprintf("Request failed: invalid response from %s: %v", full, perr))
}

func transportFailure(ctx context.Context, full string, err error) types.Envelope {
	if errors.Is(err, context.Canceled) {
		return types.Failure(fmt.Sprintf("Request failed: %v", err))
	}
	var uerr *url.Error
	if errors.As(err, &uerr) || errors.Is(err, context.DeadlineExceeded) {
		logger.Warn(ctx, "Proxy unreachable", "url", full, "error", err.Error())
		return types.Failure(fmt.Sprintf("Connection Error: Could not connect to the server at %s. Is it running?", full))
	}
	return types.Failure(fmt.Sprintf("Request failed: %v", err))
}

func (tc *ToolClient) get(ctx context.Context, path string) *Request {
	return NewRequest(http.MethodGet, path).WithContext(ctx)
}

func (tc *ToolClient) send(ctx context.Context, method, path string, body any) types.Envelope {
	return tc.call(NewRequest(method, path).WithContext(ctx).WithBody(body))
}

// InitiateLoginFlow fetches the login URL and opens it in a browser. A browser
// that fails to open does not fail the call; the URL is still returned.
func (tc *ToolClient) InitiateLoginFlow(ctx context.Context) types.Envelope {
	env := tc.call(tc.get(ctx, "/login"))
	if !env.OK() {
		return env
	}

	var data struct {
		LoginURL string `json:"login_url"`
	}
	if err := env.DecodeData(&data); err != nil || data.LoginURL == "" {
		return types.Failure("Login URL missing from server response.")
	}
	if tc.openBrowser == nil {
		env.Message = "Open the login URL in your browser to continue."
		return env
	}
	if err := tc.openBrowser(data.LoginURL); err != nil {
		logger.Warn(ctx, "Could not open browser", "error", err.Error())
		env.Message = "Open the login URL in your browser to continue."
		return env
	}
	env.Message = "Login URL opened in browser. Please authenticate and then run other functions."
	return env
}

func (tc *ToolClient) CheckAuthenticationStatus(ctx context.Context) types.Envelope {
	return tc.call(tc.get(ctx, "/api/auth/check"))
}

func (tc *ToolClient) SetAccessToken(ctx context.Context, accessToken string) types.Envelope {
	return tc.send(ctx, http.MethodPost, "/api/auth/token/set", types.SetAccessTokenReq{AccessToken: accessToken})
}

func (tc *ToolClient) RenewAccessToken(ctx context.Context, refreshToken string) types.Envelope {
	return tc.send(ctx, http.MethodPost, "/api/auth/token/renew", types.RenewAccessTokenReq{RefreshToken: refreshToken})
}

func (tc *ToolClient) GetProfile(ctx context.Context) types.Envelope {
	return tc.call(tc.get(ctx, "/api/user/profile"))
}

// GetMargins returns all segments when segment is empty.
func (tc *ToolClient) GetMargins(ctx context.Context, segment string) types.Envelope {
	return tc.call(tc.get(ctx, "/api/user/margins").WithQuery("segment", segment))
}

func (tc *ToolClient) GetHoldings(ctx context.Context) types.Envelope {
	return tc.call(tc.get(ctx, "/api/portfolio/holdings"))
}

func (tc *ToolClient) GetPositions(ctx context.Context) types.Envelope {
	return tc.call(tc.get(ctx, "/api/portfolio/positions"))
}

func (tc *ToolClient) ConvertPosition(ctx context.Context, req types.ConvertPositionReq) types.Envelope {
	return tc.send(ctx, http.MethodPut, "/api/portfolio/positions/convert", req)
}

func (tc *ToolClient) PlaceOrder(ctx context.Context, req types.OrderReq) types.Envelope {
	return tc.send(ctx, http.MethodPost, "/api/orders/place", req)
}

func (tc *ToolClient) ModifyOrder(ctx context.Context, req types.ModifyOrderReq) types.Envelope {
	return tc.send(ctx, http.MethodPut, "/api/orders/modify", req)
}

func (tc *ToolClient) CancelOrder(ctx context.Context, req types.CancelOrderReq) types.Envelope {
	return tc.call(cancelRequest(ctx, "cancel", req))
}

func (tc *ToolClient) ExitOrder(ctx context.Context, req types.CancelOrderReq) types.Envelope {
	return tc.call(cancelRequest(ctx, "exit", req))
}

func cancelRequest(ctx context.Context, action string, req types.CancelOrderReq) *Request {
	path := fmt.Sprintf("/api/orders/%s/%s/%s", action, url.PathEscape(req.Variety), url.PathEscape(req.OrderID))
	return NewRequest(http.MethodDelete, path).
		WithContext(ctx).
		WithQuery("parent_order_id", req.ParentOrderID)
}

func (tc *ToolClient) GetTrades(ctx context.Context) types.Envelope {
	return tc.call(tc.get(ctx, "/api/trades"))
}

func (tc *ToolClient) PlaceGTT(ctx context.Context, req types.GTTReq) types.Envelope {
	return tc.send(ctx, http.MethodPost, "/api/gtt/place", req)
}

func (tc *ToolClient) DeleteGTT(ctx context.Context, triggerID int) types.Envelope {
	return tc.call(NewRequest(http.MethodDelete, "/api/gtt/delete/"+strconv.Itoa(triggerID)).WithContext(ctx))
}

func (tc *ToolClient) GetHistoricalData(ctx context.Context, req types.HistoricalReq) types.Envelope {
	return tc.send(ctx, http.MethodPost, "/api/market/historical", req)
}

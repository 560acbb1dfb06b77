package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"kite-agent-bridge/internal/interfaces"
	"kite-agent-bridge/internal/types"
)

// fakeBroker is a session holder stand-in. Methods the tests never reach
// fall through to the nil embedded interface and panic.
type fakeBroker struct {
	interfaces.Broker

	mu          sync.Mutex
	token       string
	apiKey      string
	creds       types.Credentials
	exchangeErr error
	brokerErr   error
	exchanges   int
	calls       int
	lastCancel  types.CancelOrderReq
	lastOrder   types.OrderReq
	lastModify  types.ModifyOrderReq
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{apiKey: "key"}
}

func (f *fakeBroker) LoginURL(ctx context.Context) (string, error) {
	if f.apiKey == "" {
		return "", types.ErrNotConfigured
	}
	return "https://kite.zerodha.com/connect/login?v=3&api_key=" + f.apiKey, nil
}

func (f *fakeBroker) GenerateSession(ctx context.Context, requestToken string) (types.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges++
	if f.exchangeErr != nil {
		return types.Credentials{}, f.exchangeErr
	}
	f.token = f.creds.AccessToken
	return f.creds, nil
}

func (f *fakeBroker) SetAccessToken(ctx context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = accessToken
	return nil
}

func (f *fakeBroker) RenewAccessToken(ctx context.Context, refreshToken string) (types.TokenBundle, error) {
	return types.TokenBundle{UserID: "AB1234", AccessToken: "renewed-access-0001", RefreshToken: "renewed-refresh-0002"}, nil
}

func (f *fakeBroker) Authenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token != ""
}

func (f *fakeBroker) State() types.SessionState {
	return types.SessionState{Initialized: true, Authenticated: f.Authenticated()}
}

func (f *fakeBroker) Holdings(ctx context.Context) (kiteconnect.Holdings, error) {
	f.calls++
	if f.brokerErr != nil {
		return nil, f.brokerErr
	}
	return kiteconnect.Holdings{{Tradingsymbol: "INFY", Quantity: 10}}, nil
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (kiteconnect.OrderResponse, error) {
	f.calls++
	f.lastOrder = req
	return kiteconnect.OrderResponse{OrderID: "151220000000000"}, nil
}

func (f *fakeBroker) ModifyOrder(ctx context.Context, req types.ModifyOrderReq) (kiteconnect.OrderResponse, error) {
	f.calls++
	f.lastModify = req
	return kiteconnect.OrderResponse{OrderID: req.OrderID}, nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, req types.CancelOrderReq) (kiteconnect.OrderResponse, error) {
	f.calls++
	f.lastCancel = req
	return kiteconnect.OrderResponse{OrderID: req.OrderID}, nil
}

func (f *fakeBroker) DeleteGTT(ctx context.Context, triggerID int) (kiteconnect.GTTResponse, error) {
	f.calls++
	return kiteconnect.GTTResponse{TriggerID: triggerID}, nil
}

func do(t *testing.T, s *Server, method, target, body string) (int, types.Envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env types.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: response is not an envelope: %v (%s)", method, target, err, rec.Body.String())
	}
	return rec.Code, env
}

func TestPrivilegedRoutesRequireSession(t *testing.T) {
	b := newFakeBroker()
	s := NewServer(b, Options{})

	privileged := []struct{ method, path, body string }{
		{http.MethodGet, "/api/user/profile", ""},
		{http.MethodGet, "/api/user/margins", ""},
		{http.MethodGet, "/api/portfolio/holdings", ""},
		{http.MethodGet, "/api/portfolio/positions", ""},
		{http.MethodPut, "/api/portfolio/positions/convert", `{"exchange":"NSE"}`},
		{http.MethodPost, "/api/orders/place", `{"exchange":"NSE"}`},
		{http.MethodPut, "/api/orders/modify", `{"order_id":"1"}`},
		{http.MethodDelete, "/api/orders/cancel/regular/1", ""},
		{http.MethodDelete, "/api/orders/exit/co/1", ""},
		{http.MethodGet, "/api/trades", ""},
		{http.MethodPost, "/api/gtt/place", `{"trigger_type":"single"}`},
		{http.MethodDelete, "/api/gtt/delete/7", ""},
		{http.MethodPost, "/api/market/historical", `{"instrument_token":1}`},
	}

	for _, p := range privileged {
		code, env := do(t, s, p.method, p.path, p.body)
		if code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", p.method, p.path, code)
		}
		if env.Status != types.StatusError || env.Message != msgNotAuthenticated {
			t.Errorf("%s %s: expected not-authenticated envelope, got %+v", p.method, p.path, env)
		}
	}
	if b.calls != 0 {
		t.Errorf("Expected no broker calls, got %d", b.calls)
	}
}

func TestSetTokenOpensGate(t *testing.T) {
	b := newFakeBroker()
	s := NewServer(b, Options{})

	code, env := do(t, s, http.MethodGet, "/api/auth/check", "")
	if code != http.StatusUnauthorized || env.Message != msgNotAuthenticated {
		t.Fatalf("Expected 401 before token, got %d %+v", code, env)
	}

	code, env = do(t, s, http.MethodPost, "/api/auth/token/set", `{"access_token":"abc123"}`)
	if code != http.StatusOK || env.Message != "Access token set successfully." {
		t.Fatalf("Expected token set, got %d %+v", code, env)
	}

	code, env = do(t, s, http.MethodGet, "/api/auth/check", "")
	if code != http.StatusOK || env.Message != "Session is authenticated." {
		t.Errorf("Expected authenticated, got %d %+v", code, env)
	}

	code, env = do(t, s, http.MethodGet, "/api/portfolio/holdings", "")
	if code != http.StatusOK || !env.OK() {
		t.Fatalf("Expected holdings, got %d %+v", code, env)
	}
	var holdings []struct {
		Tradingsymbol string `json:"tradingsymbol"`
		Quantity      int    `json:"quantity"`
	}
	if err := env.DecodeData(&holdings); err != nil || len(holdings) != 1 || holdings[0].Tradingsymbol != "INFY" {
		t.Errorf("Expected INFY holding, got %v (%v)", holdings, err)
	}
}

func TestTokenRoutesRequireBodyField(t *testing.T) {
	s := NewServer(newFakeBroker(), Options{})

	for _, body := range []string{"", "{}", `{"access_token":""}`} {
		code, env := do(t, s, http.MethodPost, "/api/auth/token/set", body)
		if code != http.StatusBadRequest || env.Message != "Missing 'access_token' in request body." {
			t.Errorf("body %q: expected missing access_token, got %d %+v", body, code, env)
		}
	}

	code, env := do(t, s, http.MethodPost, "/api/auth/token/renew", "{}")
	if code != http.StatusBadRequest || env.Message != "Missing 'refresh_token' in request body." {
		t.Errorf("Expected missing refresh_token, got %d %+v", code, env)
	}
}

func TestRenewMasksTokensByDefault(t *testing.T) {
	s := NewServer(newFakeBroker(), Options{})
	_, env := do(t, s, http.MethodPost, "/api/auth/token/renew", `{"refresh_token":"r"}`)

	var tokens types.TokenBundle
	if err := env.DecodeData(&tokens); err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if tokens.AccessToken == "renewed-access-0001" || !strings.HasSuffix(tokens.AccessToken, "0001") {
		t.Errorf("Expected masked access token, got %s", tokens.AccessToken)
	}

	exposed := NewServer(newFakeBroker(), Options{ExposeCredentials: true})
	_, env = do(t, exposed, http.MethodPost, "/api/auth/token/renew", `{"refresh_token":"r"}`)
	if err := env.DecodeData(&tokens); err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if tokens.AccessToken != "renewed-access-0001" {
		t.Errorf("Expected raw access token, got %s", tokens.AccessToken)
	}
}

func TestRedirectFailedStatusLeavesSessionAlone(t *testing.T) {
	b := newFakeBroker()
	s := NewServer(b, Options{})

	code, env := do(t, s, http.MethodGet, "/trade/redirect?request_token=tok&status=FAILED", "")
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", code)
	}
	if env.Message != "Login was not successful. Status: FAILED" {
		t.Errorf("Unexpected message %q", env.Message)
	}
	if b.exchanges != 0 || b.Authenticated() {
		t.Errorf("Expected no exchange and no session, got %d exchanges", b.exchanges)
	}
}

func TestRedirectWithoutToken(t *testing.T) {
	s := NewServer(newFakeBroker(), Options{})
	code, env := do(t, s, http.MethodGet, "/trade/redirect?status=success", "")
	if code != http.StatusBadRequest || env.Message != msgMissingToken {
		t.Errorf("Expected missing token, got %d %+v", code, env)
	}
}

func TestRedirectSuccessReturnsBundle(t *testing.T) {
	b := newFakeBroker()
	b.creds = types.Credentials{UserID: "AB1234", UserName: "Asha", AccessToken: "access-token-9876", RefreshToken: "refresh-5432"}
	s := NewServer(b, Options{ExposeCredentials: true})

	code, env := do(t, s, http.MethodGet, "/trade/redirect?request_token=tok&action=login&status=success", "")
	if code != http.StatusOK || env.Message != "Authentication successful!" {
		t.Fatalf("Expected success, got %d %+v", code, env)
	}
	var got types.Credentials
	if err := env.DecodeData(&got); err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if got != b.creds {
		t.Errorf("Expected %+v, got %+v", b.creds, got)
	}
	if !b.Authenticated() {
		t.Error("Expected session after redirect")
	}
}

func TestRedirectMasksCredentialsByDefault(t *testing.T) {
	b := newFakeBroker()
	b.creds = types.Credentials{UserID: "AB1234", AccessToken: "access-token-9876"}
	s := NewServer(b, Options{})

	_, env := do(t, s, http.MethodGet, "/trade/redirect?request_token=tok", "")
	if strings.Contains(string(env.Data), "access-token-9876") {
		t.Errorf("Expected access token to be masked, got %s", env.Data)
	}
}

func TestRedirectExchangeFailureEchoesParameters(t *testing.T) {
	b := newFakeBroker()
	b.exchangeErr = types.NewBrokerError("generate_session", errors.New("Token is invalid or has expired."))
	s := NewServer(b, Options{})

	code, env := do(t, s, http.MethodGet, "/trade/redirect?request_token=secret-request-token&action=login&status=success", "")
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", code)
	}
	if !strings.HasPrefix(env.Message, "Authentication failed: Token is invalid or has expired.") {
		t.Errorf("Unexpected message %q", env.Message)
	}
	if !strings.Contains(env.Message, "action=login") || strings.Contains(env.Message, "secret-request-token") {
		t.Errorf("Expected echoed parameters with masked token, got %q", env.Message)
	}
	if b.exchanges != 1 {
		t.Errorf("Expected one exchange, got %d", b.exchanges)
	}
}

func TestLoginWithoutAPIKey(t *testing.T) {
	b := newFakeBroker()
	b.apiKey = ""
	code, env := do(t, NewServer(b, Options{}), http.MethodGet, "/login", "")
	if code != http.StatusInternalServerError || env.Message != msgNotConfigured {
		t.Errorf("Expected not configured, got %d %+v", code, env)
	}
}

func TestLoginReturnsURL(t *testing.T) {
	_, env := do(t, NewServer(newFakeBroker(), Options{}), http.MethodGet, "/login", "")
	var data map[string]string
	if err := env.DecodeData(&data); err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if !strings.Contains(data["login_url"], "api_key=key") {
		t.Errorf("Unexpected login_url %q", data["login_url"])
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	b := newFakeBroker()
	b.token = "t"
	s := NewServer(b, Options{})

	tests := []struct {
		name string
		body string
		code int
	}{
		{"empty", "{}", http.StatusBadRequest},
		{"unknown field", `{"exchange":"NSE","tradingsymbol":"INFY","transaction_type":"BUY","quantity":1,"product":"CNC","order_type":"MARKET","colour":"red"}`, http.StatusBadRequest},
		{"limit without price", `{"exchange":"NSE","tradingsymbol":"INFY","transaction_type":"BUY","quantity":1,"product":"CNC","order_type":"LIMIT"}`, http.StatusBadRequest},
		{"bad side", `{"exchange":"NSE","tradingsymbol":"INFY","transaction_type":"HOLD","quantity":1,"product":"CNC","order_type":"MARKET"}`, http.StatusBadRequest},
		{"market", `{"exchange":"NSE","tradingsymbol":"INFY","transaction_type":"BUY","quantity":1,"product":"CNC","order_type":"MARKET"}`, http.StatusOK},
	}

	for _, tt := range tests {
		code, env := do(t, s, http.MethodPost, "/api/orders/place", tt.body)
		if code != tt.code {
			t.Errorf("%s: expected %d, got %d (%s)", tt.name, tt.code, code, env.Message)
		}
	}
	if b.calls != 1 {
		t.Errorf("Expected exactly one broker call, got %d", b.calls)
	}
	if b.lastOrder.Tradingsymbol != "INFY" {
		t.Errorf("Expected INFY forwarded, got %+v", b.lastOrder)
	}
}

func TestPlaceOrderVarietyFields(t *testing.T) {
	b := newFakeBroker()
	b.token = "t"
	s := NewServer(b, Options{})
	base := `"exchange":"NSE","tradingsymbol":"INFY","transaction_type":"BUY","quantity":1,"product":"CNC","order_type":"MARKET"`

	tests := []struct {
		name string
		body string
		code int
	}{
		{"auction without number", `{"variety":"auction",` + base + `}`, http.StatusBadRequest},
		{"iceberg without legs", `{"variety":"iceberg","iceberg_quantity":10,` + base + `}`, http.StatusBadRequest},
		{"iceberg", `{"variety":"iceberg","iceberg_legs":2,"iceberg_quantity":10,` + base + `}`, http.StatusOK},
		{"auction", `{"variety":"auction","auction_number":"12",` + base + `}`, http.StatusOK},
	}
	for _, tt := range tests {
		code, env := do(t, s, http.MethodPost, "/api/orders/place", tt.body)
		if code != tt.code {
			t.Errorf("%s: expected %d, got %d (%s)", tt.name, tt.code, code, env.Message)
		}
	}
	if b.lastOrder.AuctionNumber != "12" {
		t.Errorf("Expected auction number forwarded, got %+v", b.lastOrder)
	}
}

func TestInvalidBodyIsNotReportedAsMissing(t *testing.T) {
	b := newFakeBroker()
	b.token = "t"
	s := NewServer(b, Options{})

	for _, body := range []string{`{"exchange":`, `{"colour":"red"}`} {
		code, env := do(t, s, http.MethodPost, "/api/orders/place", body)
		if code != http.StatusBadRequest || !strings.HasPrefix(env.Message, "invalid request body:") {
			t.Errorf("body %q: expected invalid body error, got %d %q", body, code, env.Message)
		}
		if strings.Contains(env.Message, "missing parameters") {
			t.Errorf("body %q: expected no missing-parameters wording, got %q", body, env.Message)
		}
	}
	if b.calls != 0 {
		t.Errorf("Expected no broker calls, got %d", b.calls)
	}
}

func TestModifyOrderForwardsParentID(t *testing.T) {
	b := newFakeBroker()
	b.token = "t"
	code, env := do(t, NewServer(b, Options{}), http.MethodPut, "/api/orders/modify",
		`{"variety":"co","order_id":"LEG-2","parent_order_id":"PARENT-9","trigger_price":1480}`)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d %+v", code, env)
	}
	if b.lastModify.ParentOrderID != "PARENT-9" {
		t.Errorf("Expected parent id forwarded, got %+v", b.lastModify)
	}
}

func TestBrokerErrorIsVerbatim(t *testing.T) {
	b := newFakeBroker()
	b.token = "t"
	b.brokerErr = types.NewBrokerError("get_holdings", errors.New("Incorrect `api_key` or `access_token`."))
	code, env := do(t, NewServer(b, Options{}), http.MethodGet, "/api/portfolio/holdings", "")

	if code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", code)
	}
	if env.Message != "Incorrect `api_key` or `access_token`." {
		t.Errorf("Expected verbatim broker message, got %q", env.Message)
	}
	if len(env.Data) != 0 {
		t.Errorf("Expected no data on error, got %s", env.Data)
	}
}

func TestCancelOrderUsesPathAndQuery(t *testing.T) {
	b := newFakeBroker()
	b.token = "t"
	s := NewServer(b, Options{})

	code, env := do(t, s, http.MethodDelete, "/api/orders/cancel/co/2001?parent_order_id=2000", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d %+v", code, env)
	}
	want := types.CancelOrderReq{Variety: "co", OrderID: "2001", ParentOrderID: "2000"}
	if b.lastCancel != want {
		t.Errorf("Expected %+v, got %+v", want, b.lastCancel)
	}

	code, _ = do(t, s, http.MethodDelete, "/api/orders/cancel/weekly/2001", "")
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown variety, got %d", code)
	}
}

func TestDeleteGTTRejectsNonNumericID(t *testing.T) {
	b := newFakeBroker()
	b.token = "t"
	s := NewServer(b, Options{})

	code, _ := do(t, s, http.MethodDelete, "/api/gtt/delete/abc", "")
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", code)
	}
	code, env := do(t, s, http.MethodDelete, "/api/gtt/delete/99", "")
	if code != http.StatusOK || string(env.Data) != `{"trigger_id":99}` {
		t.Errorf("Expected trigger 99, got %d %s", code, env.Data)
	}
}

func TestUnknownRouteIsEnveloped(t *testing.T) {
	code, env := do(t, NewServer(newFakeBroker(), Options{}), http.MethodGet, "/api/nope", "")
	if code != http.StatusNotFound || env.Status != types.StatusError {
		t.Errorf("Expected 404 envelope, got %d %+v", code, env)
	}
}

func TestInfoListsRoutes(t *testing.T) {
	_, env := do(t, NewServer(newFakeBroker(), Options{}), http.MethodGet, "/api/info", "")
	var info struct {
		Version   string  `json:"version"`
		Endpoints []route `json:"endpoints"`
	}
	if err := env.DecodeData(&info); err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if info.Version != ServiceVersion {
		t.Errorf("Expected version %s, got %s", ServiceVersion, info.Version)
	}
	if len(info.Endpoints) != 21 {
		t.Errorf("Expected 21 endpoints, got %d", len(info.Endpoints))
	}
}

func TestRunOnceRequestsShutdownAfterLogin(t *testing.T) {
	b := newFakeBroker()
	b.creds = types.Credentials{AccessToken: "a"}
	s := NewServer(b, Options{RunOnce: true, ShutdownDelay: 20 * time.Millisecond})

	_, env := do(t, s, http.MethodGet, "/trade/redirect?request_token=tok", "")
	if env.Message != "Authentication successful! Thank you! Server will close automatically." {
		t.Errorf("Unexpected message %q", env.Message)
	}

	select {
	case <-s.ShutdownRequested():
	case <-time.After(2 * time.Second):
		t.Fatal("Expected shutdown to be requested")
	}
}

func TestCancelShutdown(t *testing.T) {
	s := NewServer(newFakeBroker(), Options{})
	if s.CancelShutdown() {
		t.Error("Expected nothing to cancel")
	}

	s.ScheduleShutdown(time.Hour)
	if !s.CancelShutdown() {
		t.Error("Expected pending shutdown to be cancelled")
	}
	select {
	case <-s.ShutdownRequested():
		t.Error("Expected no shutdown after cancel")
	default:
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := NewServer(newFakeBroker(), Options{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case addr := <-s.Listening():
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			t.Fatalf("GET /health failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected 200, got %d", resp.StatusCode)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Server did not start")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not stop")
	}
}

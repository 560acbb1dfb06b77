package zerodha

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"kite-agent-bridge/internal/types"
)

// stubBroker records every call made through any client it hands out.
type stubBroker struct {
	mu         sync.Mutex
	calls      []string
	tokens     []string
	creds      types.Credentials
	renewed    types.TokenBundle
	failWith   error
	exchangeFn func(requestToken string) (types.Credentials, error)

	lastVariety string
	lastParams  kiteconnect.OrderParams
	lastParent  *string
}

func (s *stubBroker) keepOrder(variety string, params kiteconnect.OrderParams, parent *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastVariety = variety
	s.lastParams = params
	s.lastParent = parent
}

func (s *stubBroker) factory() ClientFactory {
	return func(apiKey, accessToken string) KiteAPI {
		return &stubKite{broker: s, token: accessToken}
	}
}

func (s *stubBroker) record(call, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	s.tokens = append(s.tokens, token)
}

func (s *stubBroker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubKite struct {
	broker *stubBroker
	token  string
}

func (k *stubKite) GetLoginURL() string {
	return "https://kite.zerodha.com/connect/login?v=3&api_key=key"
}

func (k *stubKite) GenerateSession(requestToken, apiSecret string) (types.Credentials, error) {
	k.broker.record("generate_session", k.token)
	if k.broker.exchangeFn != nil {
		return k.broker.exchangeFn(requestToken)
	}
	return k.broker.creds, k.broker.failWith
}

func (k *stubKite) RenewAccessToken(refreshToken, apiSecret string) (types.TokenBundle, error) {
	k.broker.record("renew_access_token", k.token)
	return k.broker.renewed, k.broker.failWith
}

func (k *stubKite) GetUserProfile() (kiteconnect.UserProfile, error) {
	k.broker.record("get_profile", k.token)
	return kiteconnect.UserProfile{UserName: "Test User"}, k.broker.failWith
}

func (k *stubKite) GetUserMargins() (kiteconnect.AllMargins, error) {
	k.broker.record("get_margins", k.token)
	return kiteconnect.AllMargins{}, k.broker.failWith
}

func (k *stubKite) GetUserSegmentMargins(segment string) (kiteconnect.Margins, error) {
	k.broker.record("get_segment_margins", k.token)
	return kiteconnect.Margins{}, k.broker.failWith
}

func (k *stubKite) GetHoldings() (kiteconnect.Holdings, error) {
	k.broker.record("get_holdings", k.token)
	return kiteconnect.Holdings{{Tradingsymbol: "INFY", Quantity: 10, LastPrice: 1500}}, k.broker.failWith
}

func (k *stubKite) GetPositions() (kiteconnect.Positions, error) {
	k.broker.record("get_positions", k.token)
	return kiteconnect.Positions{}, k.broker.failWith
}

func (k *stubKite) ConvertPosition(params kiteconnect.ConvertPositionParams) (bool, error) {
	k.broker.record("convert_position", k.token)
	return k.broker.failWith == nil, k.broker.failWith
}

func (k *stubKite) PlaceOrder(variety string, params kiteconnect.OrderParams) (kiteconnect.OrderResponse, error) {
	k.broker.record("place_order", k.token)
	k.broker.keepOrder(variety, params, nil)
	if k.broker.failWith != nil {
		return kiteconnect.OrderResponse{}, k.broker.failWith
	}
	return kiteconnect.OrderResponse{OrderID: "151220000000000"}, nil
}

func (k *stubKite) ModifyOrder(variety, orderID string, params kiteconnect.OrderParams, parentOrderID *string) (kiteconnect.OrderResponse, error) {
	k.broker.record("modify_order", k.token)
	k.broker.keepOrder(variety, params, parentOrderID)
	return kiteconnect.OrderResponse{OrderID: orderID}, k.broker.failWith
}

func (k *stubKite) CancelOrder(variety, orderID string, parentOrderID *string) (kiteconnect.OrderResponse, error) {
	k.broker.record("cancel_order", k.token)
	return kiteconnect.OrderResponse{OrderID: orderID}, k.broker.failWith
}

func (k *stubKite) ExitOrder(variety, orderID string, parentOrderID *string) (kiteconnect.OrderResponse, error) {
	k.broker.record("exit_order", k.token)
	return kiteconnect.OrderResponse{OrderID: orderID}, k.broker.failWith
}

func (k *stubKite) GetTrades() (kiteconnect.Trades, error) {
	k.broker.record("get_trades", k.token)
	return kiteconnect.Trades{}, k.broker.failWith
}

func (k *stubKite) PlaceGTT(params kiteconnect.GTTParams) (kiteconnect.GTTResponse, error) {
	k.broker.record("place_gtt", k.token)
	return kiteconnect.GTTResponse{TriggerID: 123}, k.broker.failWith
}

func (k *stubKite) DeleteGTT(triggerID int) (kiteconnect.GTTResponse, error) {
	k.broker.record("delete_gtt", k.token)
	return kiteconnect.GTTResponse{TriggerID: triggerID}, k.broker.failWith
}

func (k *stubKite) GetHistoricalData(instrumentToken int, interval string, from, to time.Time, continuous, oi bool) ([]kiteconnect.HistoricalData, error) {
	k.broker.record("get_historical_data", k.token)
	return []kiteconnect.HistoricalData{}, k.broker.failWith
}

func newTestHolder(stub *stubBroker) *Holder {
	return NewHolder(Params{APIKey: "key", APISecret: "secret", Factory: stub.factory()})
}

func validOrder() types.OrderReq {
	return types.OrderReq{
		Exchange:        "NSE",
		Tradingsymbol:   "INFY",
		TransactionType: "BUY",
		Quantity:        1,
		Product:         "CNC",
		OrderType:       "MARKET",
	}
}

func TestPrivilegedCallsRequireAccessToken(t *testing.T) {
	ctx := context.Background()
	stub := &stubBroker{}
	h := newTestHolder(stub)

	calls := map[string]func() error{
		"profile":   func() error { _, err := h.Profile(ctx); return err },
		"margins":   func() error { _, err := h.Margins(ctx, ""); return err },
		"holdings":  func() error { _, err := h.Holdings(ctx); return err },
		"positions": func() error { _, err := h.Positions(ctx); return err },
		"convert":   func() error { _, err := h.ConvertPosition(ctx, types.ConvertPositionReq{}); return err },
		"place":     func() error { _, err := h.PlaceOrder(ctx, validOrder()); return err },
		"modify":    func() error { _, err := h.ModifyOrder(ctx, types.ModifyOrderReq{}); return err },
		"cancel":    func() error { _, err := h.CancelOrder(ctx, types.CancelOrderReq{}); return err },
		"exit":      func() error { _, err := h.ExitOrder(ctx, types.CancelOrderReq{}); return err },
		"trades":    func() error { _, err := h.Trades(ctx); return err },
		"gtt":       func() error { _, err := h.PlaceGTT(ctx, types.GTTReq{}); return err },
		"gtt_del":   func() error { _, err := h.DeleteGTT(ctx, 1); return err },
		"history":   func() error { _, err := h.HistoricalData(ctx, types.HistoricalReq{}); return err },
	}

	for name, call := range calls {
		if err := call(); !errors.Is(err, types.ErrUnauthenticated) {
			t.Errorf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
	}

	if n := stub.callCount(); n != 0 {
		t.Errorf("Expected no broker calls, got %d", n)
	}
}

func TestLoginURLCreatesSessionWithoutToken(t *testing.T) {
	stub := &stubBroker{}
	h := newTestHolder(stub)

	if h.State().Initialized {
		t.Fatal("Expected no session before login")
	}

	url, err := h.LoginURL(context.Background())
	if err != nil {
		t.Fatalf("LoginURL failed: %v", err)
	}
	if url == "" {
		t.Error("Expected a login URL")
	}

	state := h.State()
	if !state.Initialized || state.Authenticated {
		t.Errorf("Expected initialized unauthenticated session, got %+v", state)
	}
}

func TestLoginURLWithoutAPIKey(t *testing.T) {
	h := NewHolder(Params{Factory: (&stubBroker{}).factory()})

	if _, err := h.LoginURL(context.Background()); !errors.Is(err, types.ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestSetAccessTokenIsUsedImmediately(t *testing.T) {
	ctx := context.Background()
	stub := &stubBroker{}
	h := newTestHolder(stub)

	if err := h.SetAccessToken(ctx, "token-A"); err != nil {
		t.Fatalf("SetAccessToken failed: %v", err)
	}

	holdings, err := h.Holdings(ctx)
	if err != nil {
		t.Fatalf("Holdings failed: %v", err)
	}
	if len(holdings) != 1 || holdings[0].Tradingsymbol != "INFY" {
		t.Errorf("Expected stub holdings, got %+v", holdings)
	}
	if stub.tokens[0] != "token-A" {
		t.Errorf("Expected call with token-A, got %q", stub.tokens[0])
	}

	if err := h.SetAccessToken(ctx, ""); !errors.Is(err, types.ErrMissingParameters) {
		t.Errorf("Expected ErrMissingParameters for empty token, got %v", err)
	}
}

func TestRenewBeforeSessionFails(t *testing.T) {
	stub := &stubBroker{}
	h := newTestHolder(stub)

	_, err := h.RenewAccessToken(context.Background(), "refresh")
	if !errors.Is(err, types.ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
	if stub.callCount() != 0 {
		t.Error("Expected renew not to reach the broker")
	}
}

func TestGenerateSessionInstallsBundle(t *testing.T) {
	ctx := context.Background()
	stub := &stubBroker{creds: types.Credentials{
		UserID:       "AB1234",
		UserName:     "Test User",
		Email:        "test@example.com",
		AccessToken:  "access-1",
		PublicToken:  "public-1",
		RefreshToken: "refresh-1",
	}}
	h := newTestHolder(stub)

	creds, err := h.GenerateSession(ctx, "req-token")
	if err != nil {
		t.Fatalf("GenerateSession failed: %v", err)
	}
	if creds != stub.creds {
		t.Errorf("Expected returned bundle %+v, got %+v", stub.creds, creds)
	}

	h.mu.RLock()
	got := *h.sess
	h.mu.RUnlock()
	want := session{
		accessToken:  "access-1",
		userID:       "AB1234",
		userName:     "Test User",
		email:        "test@example.com",
		publicToken:  "public-1",
		refreshToken: "refresh-1",
	}
	if got != want {
		t.Errorf("Expected session %+v, got %+v", want, got)
	}
}

func TestGenerateSessionFailureLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	stub := &stubBroker{failWith: errors.New("Token is invalid or has expired.")}
	h := newTestHolder(stub)

	_, err := h.GenerateSession(ctx, "bad-token")
	if !types.IsBrokerError(err) {
		t.Fatalf("Expected broker error, got %v", err)
	}
	if err.Error() != "Token is invalid or has expired." {
		t.Errorf("Expected broker message verbatim, got %q", err.Error())
	}
	if h.State().Initialized {
		t.Error("Expected no session after failed exchange")
	}
}

func TestRenewReplacesTokensKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	stub := &stubBroker{
		creds:   types.Credentials{UserID: "AB1234", UserName: "Test User", AccessToken: "old", RefreshToken: "refresh-old"},
		renewed: types.TokenBundle{AccessToken: "new", RefreshToken: "refresh-new"},
	}
	h := newTestHolder(stub)

	if _, err := h.GenerateSession(ctx, "req"); err != nil {
		t.Fatalf("GenerateSession failed: %v", err)
	}

	bundle, err := h.RenewAccessToken(ctx, "refresh-old")
	if err != nil {
		t.Fatalf("RenewAccessToken failed: %v", err)
	}
	if bundle.UserID != "AB1234" {
		t.Errorf("Expected user id AB1234 in bundle, got %q", bundle.UserID)
	}

	state := h.State()
	if state.UserID != "AB1234" || state.UserName != "Test User" {
		t.Errorf("Expected identity kept, got %+v", state)
	}

	if _, err := h.Trades(ctx); err != nil {
		t.Fatalf("Trades failed: %v", err)
	}
	if last := stub.tokens[len(stub.tokens)-1]; last != "new" {
		t.Errorf("Expected trades with renewed token, got %q", last)
	}
	if h.sess.refreshToken != "refresh-new" {
		t.Errorf("Expected refresh token replaced, got %q", h.sess.refreshToken)
	}
}

func TestBrokerFailureMessageIsVerbatim(t *testing.T) {
	ctx := context.Background()
	stub := &stubBroker{failWith: errors.New("Insufficient funds. Required margin is 95417.84")}
	h := newTestHolder(stub)
	_ = h.SetAccessToken(ctx, "tok")

	_, err := h.PlaceOrder(ctx, validOrder())
	if !types.IsBrokerError(err) {
		t.Fatalf("Expected broker error, got %v", err)
	}
	if err.Error() != "Insufficient funds. Required margin is 95417.84" {
		t.Errorf("Unexpected message: %q", err.Error())
	}
	if stub.callCount() != 1 {
		t.Errorf("Expected exactly one attempt, got %d", stub.callCount())
	}
}

func TestHistoricalDataRejectsBadDatesBeforeBroker(t *testing.T) {
	ctx := context.Background()
	stub := &stubBroker{}
	h := newTestHolder(stub)
	_ = h.SetAccessToken(ctx, "tok")

	_, err := h.HistoricalData(ctx, types.HistoricalReq{
		InstrumentToken: 408065,
		FromDate:        "2024-01-05T09:15",
		ToDate:          "2024-01-06",
		Interval:        "day",
	})
	if !errors.Is(err, types.ErrInvalidDate) {
		t.Errorf("Expected ErrInvalidDate, got %v", err)
	}
	if stub.callCount() != 0 {
		t.Error("Expected no broker call for an invalid date")
	}

	_, err = h.HistoricalData(ctx, types.HistoricalReq{
		InstrumentToken: 408065,
		FromDate:        "2024-01-05",
		ToDate:          "2024-01-06 15:30:00",
		Interval:        "day",
	})
	if err != nil {
		t.Errorf("Expected valid range to succeed, got %v", err)
	}
}

func TestPlaceGTTChecksLegs(t *testing.T) {
	ctx := context.Background()
	stub := &stubBroker{}
	h := newTestHolder(stub)
	_ = h.SetAccessToken(ctx, "tok")

	req := types.GTTReq{
		TriggerType:   types.GTTTypeTwoLeg,
		Tradingsymbol: "INFY",
		Exchange:      "NSE",
		TriggerValues: []float64{1400},
		LastPrice:     1500,
		Orders:        []types.GTTOrder{{TransactionType: "SELL", Quantity: 1, Price: 1400}},
	}
	if _, err := h.PlaceGTT(ctx, req); !errors.Is(err, types.ErrMissingParameters) {
		t.Errorf("Expected ErrMissingParameters, got %v", err)
	}

	req.TriggerValues = []float64{1400, 1700}
	req.Orders = append(req.Orders, types.GTTOrder{TransactionType: "SELL", Quantity: 1, Price: 1700})
	resp, err := h.PlaceGTT(ctx, req)
	if err != nil {
		t.Fatalf("PlaceGTT failed: %v", err)
	}
	if resp.TriggerID != 123 {
		t.Errorf("Expected trigger id 123, got %d", resp.TriggerID)
	}
}

func TestConcurrentOrdersAndRenewSeeWholeTokens(t *testing.T) {
	ctx := context.Background()
	stub := &stubBroker{
		creds:   types.Credentials{UserID: "AB1234", AccessToken: "token-old", RefreshToken: "r0"},
		renewed: types.TokenBundle{AccessToken: "token-new", RefreshToken: "r1"},
	}
	h := newTestHolder(stub)
	if _, err := h.GenerateSession(ctx, "req"); err != nil {
		t.Fatalf("GenerateSession failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.PlaceOrder(ctx, validOrder()); err != nil {
				t.Errorf("PlaceOrder failed: %v", err)
			}
		}()
		if i == 25 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := h.RenewAccessToken(ctx, "r0"); err != nil {
					t.Errorf("Renew failed: %v", err)
				}
			}()
		}
	}
	wg.Wait()

	stub.mu.Lock()
	defer stub.mu.Unlock()
	for i, call := range stub.calls {
		if call != "place_order" {
			continue
		}
		if tok := stub.tokens[i]; tok != "token-old" && tok != "token-new" {
			t.Errorf("Order %d used a torn token %q", i, tok)
		}
	}
}

func TestCanceledContextSkipsBroker(t *testing.T) {
	stub := &stubBroker{}
	h := newTestHolder(stub)
	_ = h.SetAccessToken(context.Background(), "tok")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.Holdings(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if stub.callCount() != 0 {
		t.Errorf("Expected no broker calls, got %d", stub.callCount())
	}
}

func TestModifyOrderForwardsParentID(t *testing.T) {
	ctx := context.Background()
	stub := &stubBroker{}
	h := newTestHolder(stub)
	_ = h.SetAccessToken(ctx, "tok")

	_, err := h.ModifyOrder(ctx, types.ModifyOrderReq{Variety: "co", OrderID: "LEG-2", ParentOrderID: "PARENT-9", TriggerPrice: 1480})
	if err != nil {
		t.Fatalf("ModifyOrder failed: %v", err)
	}
	if stub.lastParent == nil || *stub.lastParent != "PARENT-9" {
		t.Errorf("Expected parent id PARENT-9, got %v", stub.lastParent)
	}
	if stub.lastParams.TriggerPrice != 1480 {
		t.Errorf("Expected trigger price 1480, got %v", stub.lastParams.TriggerPrice)
	}

	if _, err := h.ModifyOrder(ctx, types.ModifyOrderReq{Variety: "regular", OrderID: "1"}); err != nil {
		t.Fatalf("ModifyOrder failed: %v", err)
	}
	if stub.lastParent != nil {
		t.Errorf("Expected no parent id, got %q", *stub.lastParent)
	}
}

func TestPlaceOrderMapsAuctionAndIceberg(t *testing.T) {
	ctx := context.Background()
	stub := &stubBroker{}
	h := newTestHolder(stub)
	_ = h.SetAccessToken(ctx, "tok")

	auction := validOrder()
	auction.Variety = "auction"
	auction.AuctionNumber = "12"
	if _, err := h.PlaceOrder(ctx, auction); err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if stub.lastVariety != "auction" || stub.lastParams.AuctionNumber != "12" {
		t.Errorf("Expected auction 12, got %s %q", stub.lastVariety, stub.lastParams.AuctionNumber)
	}

	iceberg := validOrder()
	iceberg.Variety = "iceberg"
	iceberg.IcebergLegs = 3
	iceberg.IcebergQuantity = 100
	if _, err := h.PlaceOrder(ctx, iceberg); err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if stub.lastParams.IcebergLegs != 3 || stub.lastParams.IcebergQty != 100 {
		t.Errorf("Expected iceberg 3x100, got %+v", stub.lastParams)
	}
}

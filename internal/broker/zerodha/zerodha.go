package zerodha

import (
	"context"
	"sync"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"kite-agent-bridge/internal/interfaces"
	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/types"
)

type Params struct {
	APIKey    string
	APISecret string
	Factory   ClientFactory
}

// session is the mutable half of the broker session. It is replaced field by
// field only while Holder.mu is held for writing.
type session struct {
	accessToken  string
	userID       string
	userName     string
	email        string
	publicToken  string
	refreshToken string
}

// Holder owns the one Kite session of the process. The API secret never
// leaves it.
type Holder struct {
	apiKey    string
	apiSecret string
	newClient ClientFactory

	mu   sync.RWMutex
	sess *session
}

var _ interfaces.Broker = (*Holder)(nil)

func NewHolder(p Params) *Holder {
	if p.Factory == nil {
		p.Factory = NewKiteFactory("", 0)
	}
	return &Holder{
		apiKey:    p.APIKey,
		apiSecret: p.APISecret,
		newClient: p.Factory,
	}
}

// LoginURL returns the Kite login URL and creates an empty session if none
// exists yet. An existing session is kept.
func (h *Holder) LoginURL(ctx context.Context) (string, error) {
	if h.apiKey == "" {
		return "", types.ErrNotConfigured
	}

	h.mu.Lock()
	if h.sess == nil {
		h.sess = &session{}
	}
	h.mu.Unlock()

	return h.newClient(h.apiKey, "").GetLoginURL(), nil
}

// GenerateSession exchanges a one-time request token and installs every
// session field at once. Exactly one exchange attempt is made.
func (h *Holder) GenerateSession(ctx context.Context, requestToken string) (types.Credentials, error) {
	if h.apiKey == "" {
		return types.Credentials{}, types.ErrNotConfigured
	}
	if requestToken == "" {
		return types.Credentials{}, types.ErrMissingToken
	}
	if err := ctx.Err(); err != nil {
		return types.Credentials{}, err
	}

	creds, err := h.newClient(h.apiKey, "").GenerateSession(requestToken, h.apiSecret)
	if err != nil {
		return types.Credentials{}, types.NewBrokerError("generate_session", err)
	}

	h.mu.Lock()
	h.sess = &session{
		accessToken:  creds.AccessToken,
		userID:       creds.UserID,
		userName:     creds.UserName,
		email:        creds.Email,
		publicToken:  creds.PublicToken,
		refreshToken: creds.RefreshToken,
	}
	h.mu.Unlock()

	logger.Auth(ctx, "session_generated", "user_id", creds.UserID)
	return creds, nil
}

// SetAccessToken installs a token obtained elsewhere. It is not validated
// against Kite; the next privileged call will surface a bad token.
func (h *Holder) SetAccessToken(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return types.ErrMissingParameters
	}

	h.mu.Lock()
	if h.sess == nil {
		h.sess = &session{}
	}
	h.sess.accessToken = accessToken
	userID := h.sess.userID
	h.mu.Unlock()

	logger.Auth(ctx, "access_token_set", "user_id", userID)
	return nil
}

// RenewAccessToken trades a refresh token for new tokens. User identity
// fields are kept.
func (h *Holder) RenewAccessToken(ctx context.Context, refreshToken string) (types.TokenBundle, error) {
	if refreshToken == "" {
		return types.TokenBundle{}, types.ErrMissingParameters
	}

	h.mu.RLock()
	if h.sess == nil {
		h.mu.RUnlock()
		return types.TokenBundle{}, types.ErrNotInitialized
	}
	kc := h.newClient(h.apiKey, h.sess.accessToken)
	h.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return types.TokenBundle{}, err
	}

	tokens, err := kc.RenewAccessToken(refreshToken, h.apiSecret)
	if err != nil {
		return types.TokenBundle{}, types.NewBrokerError("renew_access_token", err)
	}

	h.mu.Lock()
	if h.sess == nil {
		h.sess = &session{}
	}
	h.sess.accessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		h.sess.refreshToken = tokens.RefreshToken
	}
	if tokens.UserID == "" {
		tokens.UserID = h.sess.userID
	}
	h.mu.Unlock()

	logger.Auth(ctx, "access_token_renewed", "user_id", tokens.UserID)
	return tokens, nil
}

func (h *Holder) Authenticated() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sess != nil && h.sess.accessToken != ""
}

func (h *Holder) State() types.SessionState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.sess == nil {
		return types.SessionState{}
	}
	return types.SessionState{
		Initialized:   true,
		Authenticated: h.sess.accessToken != "",
		UserID:        h.sess.userID,
		UserName:      h.sess.userName,
	}
}

// client snapshots the access token and binds a Kite client to it. A renew
// running concurrently is either fully visible to the call or not at all.
func (h *Holder) client(ctx context.Context) (KiteAPI, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.sess == nil || h.sess.accessToken == "" {
		return nil, types.ErrUnauthenticated
	}
	return h.newClient(h.apiKey, h.sess.accessToken), nil
}

func (h *Holder) Profile(ctx context.Context) (kiteconnect.UserProfile, error) {
	kc, err := h.client(ctx)
	if err != nil {
		return kiteconnect.UserProfile{}, err
	}
	profile, err := kc.GetUserProfile()
	return profile, types.NewBrokerError("get_profile", err)
}

// Margins returns all segments when segment is empty.
func (h *Holder) Margins(ctx context.Context, segment string) (any, error) {
	kc, err := h.client(ctx)
	if err != nil {
		return nil, err
	}
	if segment == "" {
		margins, err := kc.GetUserMargins()
		if err != nil {
			return nil, types.NewBrokerError("get_margins", err)
		}
		return margins, nil
	}
	margins, err := kc.GetUserSegmentMargins(segment)
	if err != nil {
		return nil, types.NewBrokerError("get_margins", err)
	}
	return margins, nil
}

func (h *Holder) Holdings(ctx context.Context) (kiteconnect.Holdings, error) {
	kc, err := h.client(ctx)
	if err != nil {
		return nil, err
	}
	holdings, err := kc.GetHoldings()
	return holdings, types.NewBrokerError("get_holdings", err)
}

func (h *Holder) Positions(ctx context.Context) (kiteconnect.Positions, error) {
	kc, err := h.client(ctx)
	if err != nil {
		return kiteconnect.Positions{}, err
	}
	positions, err := kc.GetPositions()
	return positions, types.NewBrokerError("get_positions", err)
}

func (h *Holder) ConvertPosition(ctx context.Context, req types.ConvertPositionReq) (bool, error) {
	kc, err := h.client(ctx)
	if err != nil {
		return false, err
	}
	ok, err := kc.ConvertPosition(convertParams(req))
	return ok, types.NewBrokerError("convert_position", err)
}

func (h *Holder) PlaceOrder(ctx context.Context, req types.OrderReq) (kiteconnect.OrderResponse, error) {
	kc, err := h.client(ctx)
	if err != nil {
		return kiteconnect.OrderResponse{}, err
	}
	variety := req.Variety
	if variety == "" {
		variety = kiteconnect.VarietyRegular
	}
	resp, err := kc.PlaceOrder(variety, orderParams(req))
	if err != nil {
		return kiteconnect.OrderResponse{}, types.NewBrokerError("place_order", err)
	}
	logger.Order(ctx, "placed", req.Tradingsymbol, resp.OrderID,
		"side", req.TransactionType, "qty", req.Quantity, "order_type", req.OrderType)
	return resp, nil
}

func (h *Holder) ModifyOrder(ctx context.Context, req types.ModifyOrderReq) (kiteconnect.OrderResponse, error) {
	kc, err := h.client(ctx)
	if err != nil {
		return kiteconnect.OrderResponse{}, err
	}
	resp, err := kc.ModifyOrder(req.Variety, req.OrderID, modifyParams(req), optional(req.ParentOrderID))
	if err != nil {
		return kiteconnect.OrderResponse{}, types.NewBrokerError("modify_order", err)
	}
	logger.Order(ctx, "modified", "", resp.OrderID)
	return resp, nil
}

func (h *Holder) CancelOrder(ctx context.Context, req types.CancelOrderReq) (kiteconnect.OrderResponse, error) {
	kc, err := h.client(ctx)
	if err != nil {
		return kiteconnect.OrderResponse{}, err
	}
	resp, err := kc.CancelOrder(req.Variety, req.OrderID, optional(req.ParentOrderID))
	if err != nil {
		return kiteconnect.OrderResponse{}, types.NewBrokerError("cancel_order", err)
	}
	logger.Order(ctx, "cancelled", "", resp.OrderID)
	return resp, nil
}

func (h *Holder) ExitOrder(ctx context.Context, req types.CancelOrderReq) (kiteconnect.OrderResponse, error) {
	kc, err := h.client(ctx)
	if err != nil {
		return kiteconnect.OrderResponse{}, err
	}
	resp, err := kc.ExitOrder(req.Variety, req.OrderID, optional(req.ParentOrderID))
	if err != nil {
		return kiteconnect.OrderResponse{}, types.NewBrokerError("exit_order", err)
	}
	logger.Order(ctx, "exited", "", resp.OrderID)
	return resp, nil
}

func (h *Holder) Trades(ctx context.Context) (kiteconnect.Trades, error) {
	kc, err := h.client(ctx)
	if err != nil {
		return nil, err
	}
	trades, err := kc.GetTrades()
	return trades, types.NewBrokerError("get_trades", err)
}

func (h *Holder) PlaceGTT(ctx context.Context, req types.GTTReq) (kiteconnect.GTTResponse, error) {
	kc, err := h.client(ctx)
	if err != nil {
		return kiteconnect.GTTResponse{}, err
	}
	if err := req.CheckLegs(); err != nil {
		return kiteconnect.GTTResponse{}, err
	}
	resp, err := kc.PlaceGTT(gttParams(req))
	return resp, types.NewBrokerError("place_gtt", err)
}

func (h *Holder) DeleteGTT(ctx context.Context, triggerID int) (kiteconnect.GTTResponse, error) {
	kc, err := h.client(ctx)
	if err != nil {
		return kiteconnect.GTTResponse{}, err
	}
	resp, err := kc.DeleteGTT(triggerID)
	return resp, types.NewBrokerError("delete_gtt", err)
}

func (h *Holder) HistoricalData(ctx context.Context, req types.HistoricalReq) ([]kiteconnect.HistoricalData, error) {
	kc, err := h.client(ctx)
	if err != nil {
		return nil, err
	}
	from, to, err := parseRange(req.FromDate, req.ToDate)
	if err != nil {
		return nil, err
	}
	candles, err := kc.GetHistoricalData(req.InstrumentToken, req.Interval, from, to, req.Continuous, req.OI)
	return candles, types.NewBrokerError("get_historical_data", err)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package interfaces

import (
	"context"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"kite-agent-bridge/internal/types"
)

// SessionManager owns the single broker session.
type SessionManager interface {
	LoginURL(ctx context.Context) (string, error)
	GenerateSession(ctx context.Context, requestToken string) (types.Credentials, error)
	SetAccessToken(ctx context.Context, accessToken string) error
	RenewAccessToken(ctx context.Context, refreshToken string) (types.TokenBundle, error)
	Authenticated() bool
	State() types.SessionState
}

// Broker is the session plus every privileged Kite operation. Privileged
// calls fail with types.ErrUnauthenticated before reaching Kite when no
// access token is installed.
type Broker interface {
	SessionManager

	Profile(ctx context.Context) (kiteconnect.UserProfile, error)
	Margins(ctx context.Context, segment string) (any, error)
	Holdings(ctx context.Context) (kiteconnect.Holdings, error)
	Positions(ctx context.Context) (kiteconnect.Positions, error)
	ConvertPosition(ctx context.Context, req types.ConvertPositionReq) (bool, error)
	PlaceOrder(ctx context.Context, req types.OrderReq) (kiteconnect.OrderResponse, error)
	ModifyOrder(ctx context.Context, req types.ModifyOrderReq) (kiteconnect.OrderResponse, error)
	CancelOrder(ctx context.Context, req types.CancelOrderReq) (kiteconnect.OrderResponse, error)
	ExitOrder(ctx context.Context, req types.CancelOrderReq) (kiteconnect.OrderResponse, error)
	Trades(ctx context.Context) (kiteconnect.Trades, error)
	PlaceGTT(ctx context.Context, req types.GTTReq) (kiteconnect.GTTResponse, error)
	DeleteGTT(ctx context.Context, triggerID int) (kiteconnect.GTTResponse, error)
	HistoricalData(ctx context.Context, req types.HistoricalReq) ([]kiteconnect.HistoricalData, error)
}

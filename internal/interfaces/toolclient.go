package interfaces

import (
	"context"

	"kite-agent-bridge/internal/types"
)

// ToolClient is one function per proxy route. Every method returns an
// envelope; transport failures are reported inside it, never as an error.
type ToolClient interface {
	InitiateLoginFlow(ctx context.Context) types.Envelope
	CheckAuthenticationStatus(ctx context.Context) types.Envelope
	SetAccessToken(ctx context.Context, accessToken string) types.Envelope
	RenewAccessToken(ctx context.Context, refreshToken string) types.Envelope

	GetProfile(ctx context.Context) types.Envelope
	GetMargins(ctx context.Context, segment string) types.Envelope
	GetHoldings(ctx context.Context) types.Envelope
	GetPositions(ctx context.Context) types.Envelope
	ConvertPosition(ctx context.Context, req types.ConvertPositionReq) types.Envelope

	PlaceOrder(ctx context.Context, req types.OrderReq) types.Envelope
	ModifyOrder(ctx context.Context, req types.ModifyOrderReq) types.Envelope
	CancelOrder(ctx context.Context, req types.CancelOrderReq) types.Envelope
	ExitOrder(ctx context.Context, req types.CancelOrderReq) types.Envelope
	GetTrades(ctx context.Context) types.Envelope

	PlaceGTT(ctx context.Context, req types.GTTReq) types.Envelope
	DeleteGTT(ctx context.Context, triggerID int) types.Envelope
	GetHistoricalData(ctx context.Context, req types.HistoricalReq) types.Envelope
}

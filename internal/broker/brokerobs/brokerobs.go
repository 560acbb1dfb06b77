package brokerobs

import (
	"context"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"kite-agent-bridge/internal/interfaces"
	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/trace"
	"kite-agent-bridge/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		broker: broker,
	}
}

// observe runs one broker call inside a span and logs its outcome. Fields
// must not carry token values.
func observe[T any](ctx context.Context, op string, call func(context.Context) (T, error), fields ...any) (T, error) {
	ctx, span := trace.StartSpan(ctx, "broker."+op)
	defer span.End()

	logger.DebugSkip(ctx, 2, "Calling broker", append([]any{"op", op}, fields...)...)

	out, err := call(ctx)
	if err != nil {
		if types.IsBrokerError(err) {
			logger.ErrorWithErrSkip(ctx, 2, "Broker operation failed", err, append([]any{"op", op}, fields...)...)
		} else {
			logger.WarnSkip(ctx, 2, "Broker operation rejected", append([]any{"op", op, "reason", err.Error()}, fields...)...)
		}
		return out, err
	}

	logger.DebugSkip(ctx, 2, "Broker operation succeeded", append([]any{"op", op}, fields...)...)
	return out, nil
}

func (ob *observableBroker) LoginURL(ctx context.Context) (string, error) {
	return observe(ctx, "LoginURL", ob.broker.LoginURL)
}

func (ob *observableBroker) GenerateSession(ctx context.Context, requestToken string) (types.Credentials, error) {
	return observe(ctx, "GenerateSession", func(ctx context.Context) (types.Credentials, error) {
		return ob.broker.GenerateSession(ctx, requestToken)
	})
}

func (ob *observableBroker) SetAccessToken(ctx context.Context, accessToken string) error {
	_, err := observe(ctx, "SetAccessToken", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, ob.broker.SetAccessToken(ctx, accessToken)
	})
	return err
}

func (ob *observableBroker) RenewAccessToken(ctx context.Context, refreshToken string) (types.TokenBundle, error) {
	return observe(ctx, "RenewAccessToken", func(ctx context.Context) (types.TokenBundle, error) {
		return ob.broker.RenewAccessToken(ctx, refreshToken)
	})
}

func (ob *observableBroker) Authenticated() bool {
	return ob.broker.Authenticated()
}

func (ob *observableBroker) State() types.SessionState {
	return ob.broker.State()
}

func (ob *observableBroker) Profile(ctx context.Context) (kiteconnect.UserProfile, error) {
	return observe(ctx, "Profile", ob.broker.Profile)
}

func (ob *observableBroker) Margins(ctx context.Context, segment string) (any, error) {
	return observe(ctx, "Margins", func(ctx context.Context) (any, error) {
		return ob.broker.Margins(ctx, segment)
	}, "segment", segment)
}

func (ob *observableBroker) Holdings(ctx context.Context) (kiteconnect.Holdings, error) {
	return observe(ctx, "Holdings", ob.broker.Holdings)
}

func (ob *observableBroker) Positions(ctx context.Context) (kiteconnect.Positions, error) {
	return observe(ctx, "Positions", ob.broker.Positions)
}

func (ob *observableBroker) ConvertPosition(ctx context.Context, req types.ConvertPositionReq) (bool, error) {
	return observe(ctx, "ConvertPosition", func(ctx context.Context) (bool, error) {
		return ob.broker.ConvertPosition(ctx, req)
	}, "symbol", req.Tradingsymbol, "from", req.OldProduct, "to", req.NewProduct)
}

// PlaceOrder places an order with observability
func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (kiteconnect.OrderResponse, error) {
	return observe(ctx, "PlaceOrder", func(ctx context.Context) (kiteconnect.OrderResponse, error) {
		return ob.broker.PlaceOrder(ctx, req)
	}, "symbol", req.Tradingsymbol, "side", req.TransactionType, "qty", req.Quantity, "tag", req.Tag)
}

func (ob *observableBroker) ModifyOrder(ctx context.Context, req types.ModifyOrderReq) (kiteconnect.OrderResponse, error) {
	return observe(ctx, "ModifyOrder", func(ctx context.Context) (kiteconnect.OrderResponse, error) {
		return ob.broker.ModifyOrder(ctx, req)
	}, "order_id", req.OrderID, "variety", req.Variety)
}

func (ob *observableBroker) CancelOrder(ctx context.Context, req types.CancelOrderReq) (kiteconnect.OrderResponse, error) {
	return observe(ctx, "CancelOrder", func(ctx context.Context) (kiteconnect.OrderResponse, error) {
		return ob.broker.CancelOrder(ctx, req)
	}, "order_id", req.OrderID, "variety", req.Variety)
}

func (ob *observableBroker) ExitOrder(ctx context.Context, req types.CancelOrderReq) (kiteconnect.OrderResponse, error) {
	return observe(ctx, "ExitOrder", func(ctx context.Context) (kiteconnect.OrderResponse, error) {
		return ob.broker.ExitOrder(ctx, req)
	}, "order_id", req.OrderID, "variety", req.Variety)
}

func (ob *observableBroker) Trades(ctx context.Context) (kiteconnect.Trades, error) {
	return observe(ctx, "Trades", ob.broker.Trades)
}

func (ob *observableBroker) PlaceGTT(ctx context.Context, req types.GTTReq) (kiteconnect.GTTResponse, error) {
	return observe(ctx, "PlaceGTT", func(ctx context.Context) (kiteconnect.GTTResponse, error) {
		return ob.broker.PlaceGTT(ctx, req)
	}, "symbol", req.Tradingsymbol, "trigger_type", req.TriggerType)
}

func (ob *observableBroker) DeleteGTT(ctx context.Context, triggerID int) (kiteconnect.GTTResponse, error) {
	return observe(ctx, "DeleteGTT", func(ctx context.Context) (kiteconnect.GTTResponse, error) {
		return ob.broker.DeleteGTT(ctx, triggerID)
	}, "trigger_id", triggerID)
}

func (ob *observableBroker) HistoricalData(ctx context.Context, req types.HistoricalReq) ([]kiteconnect.HistoricalData, error) {
	return observe(ctx, "HistoricalData", func(ctx context.Context) ([]kiteconnect.HistoricalData, error) {
		return ob.broker.HistoricalData(ctx, req)
	}, "instrument_token", req.InstrumentToken, "interval", req.Interval)
}

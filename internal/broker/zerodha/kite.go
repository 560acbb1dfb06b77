package zerodha

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-querystring/query"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"kite-agent-bridge/internal/types"
)

// KiteAPI is the subset of the Kite Connect client the session holder uses.
// One value is bound to one access token.
type KiteAPI interface {
	GetLoginURL() string
	GenerateSession(requestToken, apiSecret string) (types.Credentials, error)
	RenewAccessToken(refreshToken, apiSecret string) (types.TokenBundle, error)

	GetUserProfile() (kiteconnect.UserProfile, error)
	GetUserMargins() (kiteconnect.AllMargins, error)
	GetUserSegmentMargins(segment string) (kiteconnect.Margins, error)
	GetHoldings() (kiteconnect.Holdings, error)
	GetPositions() (kiteconnect.Positions, error)
	ConvertPosition(params kiteconnect.ConvertPositionParams) (bool, error)
	PlaceOrder(variety string, params kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
	ModifyOrder(variety, orderID string, params kiteconnect.OrderParams, parentOrderID *string) (kiteconnect.OrderResponse, error)
	CancelOrder(variety, orderID string, parentOrderID *string) (kiteconnect.OrderResponse, error)
	ExitOrder(variety, orderID string, parentOrderID *string) (kiteconnect.OrderResponse, error)
	GetTrades() (kiteconnect.Trades, error)
	PlaceGTT(params kiteconnect.GTTParams) (kiteconnect.GTTResponse, error)
	DeleteGTT(triggerID int) (kiteconnect.GTTResponse, error)
	GetHistoricalData(instrumentToken int, interval string, from, to time.Time, continuous, oi bool) ([]kiteconnect.HistoricalData, error)
}

// ClientFactory builds a KiteAPI bound to accessToken, which may be empty for
// the pre-login calls.
type ClientFactory func(apiKey, accessToken string) KiteAPI

const (
	defaultBaseURI = "https://api.kite.trade"
	kiteVersion    = "3"
)

// NewKiteFactory returns a factory producing gokiteconnect clients that share
// one HTTP client.
func NewKiteFactory(baseURI string, timeout time.Duration) ClientFactory {
	httpClient := &http.Client{Timeout: timeout}
	forms := kiteconnect.NewHTTPClient(httpClient, nil, false)
	if baseURI == "" {
		baseURI = defaultBaseURI
	}
	return func(apiKey, accessToken string) KiteAPI {
		kc := kiteconnect.New(apiKey)
		kc.SetHTTPClient(httpClient)
		kc.SetBaseURI(baseURI)
		if accessToken != "" {
			kc.SetAccessToken(accessToken)
		}
		return &kiteClient{
			Client:      kc,
			forms:       forms,
			baseURI:     baseURI,
			apiKey:      apiKey,
			accessToken: accessToken,
		}
	}
}

// kiteClient adapts *kiteconnect.Client to KiteAPI, converting the session
// payloads into the bridge's own types. forms sends the few requests whose
// parameters kiteconnect.OrderParams cannot carry.
type kiteClient struct {
	*kiteconnect.Client

	forms       kiteconnect.HTTPClient
	baseURI     string
	apiKey      string
	accessToken string
}

// ModifyOrder adds parent_order_id to the form when modifying the second leg
// of a cover order.
func (k *kiteClient) ModifyOrder(variety, orderID string, params kiteconnect.OrderParams, parentOrderID *string) (kiteconnect.OrderResponse, error) {
	if parentOrderID == nil {
		return k.Client.ModifyOrder(variety, orderID, params)
	}

	var resp kiteconnect.OrderResponse
	form, err := query.Values(params)
	if err != nil {
		return resp, kiteconnect.NewError(kiteconnect.InputError, fmt.Sprintf("Error decoding order params: %v", err), nil)
	}
	form.Set("parent_order_id", *parentOrderID)

	headers := http.Header{}
	headers.Add("X-Kite-Version", kiteVersion)
	headers.Add("Authorization", fmt.Sprintf("token %s:%s", k.apiKey, k.accessToken))

	uri := k.baseURI + fmt.Sprintf(kiteconnect.URIModifyOrder, variety, orderID)
	err = k.forms.DoEnvelope(http.MethodPut, uri, form, headers, &resp)
	return resp, err
}

func (k *kiteClient) GenerateSession(requestToken, apiSecret string) (types.Credentials, error) {
	sess, err := k.Client.GenerateSession(requestToken, apiSecret)
	if err != nil {
		return types.Credentials{}, err
	}
	return types.Credentials{
		UserID:       sess.UserID,
		UserName:     sess.UserName,
		Email:        sess.Email,
		AccessToken:  sess.AccessToken,
		PublicToken:  sess.PublicToken,
		RefreshToken: sess.RefreshToken,
	}, nil
}

func (k *kiteClient) RenewAccessToken(refreshToken, apiSecret string) (types.TokenBundle, error) {
	tokens, err := k.Client.RenewAccessToken(refreshToken, apiSecret)
	if err != nil {
		return types.TokenBundle{}, err
	}
	return types.TokenBundle{
		UserID:       tokens.UserID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, nil
}

func orderParams(r types.OrderReq) kiteconnect.OrderParams {
	return kiteconnect.OrderParams{
		Exchange:          r.Exchange,
		Tradingsymbol:     r.Tradingsymbol,
		Validity:          r.Validity,
		ValidityTTL:       r.ValidityTTL,
		Product:           r.Product,
		OrderType:         r.OrderType,
		TransactionType:   r.TransactionType,
		Quantity:          r.Quantity,
		DisclosedQuantity: r.DisclosedQuantity,
		Price:             r.Price,
		TriggerPrice:      r.TriggerPrice,
		IcebergLegs:       r.IcebergLegs,
		IcebergQty:        r.IcebergQuantity,
		AuctionNumber:     r.AuctionNumber,
		Tag:               r.Tag,
	}
}

func modifyParams(r types.ModifyOrderReq) kiteconnect.OrderParams {
	return kiteconnect.OrderParams{
		Quantity:          r.Quantity,
		Price:             r.Price,
		OrderType:         r.OrderType,
		TriggerPrice:      r.TriggerPrice,
		Validity:          r.Validity,
		DisclosedQuantity: r.DisclosedQuantity,
	}
}

func convertParams(r types.ConvertPositionReq) kiteconnect.ConvertPositionParams {
	return kiteconnect.ConvertPositionParams{
		Exchange:        r.Exchange,
		TradingSymbol:   r.Tradingsymbol,
		OldProduct:      r.OldProduct,
		NewProduct:      r.NewProduct,
		PositionType:    r.PositionType,
		TransactionType: r.TransactionType,
		Quantity:        r.Quantity,
	}
}

func gttParams(r types.GTTReq) kiteconnect.GTTParams {
	leg := func(i int) kiteconnect.TriggerParams {
		return kiteconnect.TriggerParams{
			TriggerValue: r.TriggerValues[i],
			LimitPrice:   r.Orders[i].Price,
			Quantity:     float64(r.Orders[i].Quantity),
		}
	}

	product := r.Orders[0].Product
	if product == "" {
		product = kiteconnect.ProductCNC
	}

	p := kiteconnect.GTTParams{
		Tradingsymbol:   r.Tradingsymbol,
		Exchange:        r.Exchange,
		LastPrice:       r.LastPrice,
		TransactionType: r.Orders[0].TransactionType,
		Product:         product,
	}
	if r.TriggerType == types.GTTTypeTwoLeg {
		p.Trigger = &kiteconnect.GTTOneCancelsOtherTrigger{Lower: leg(0), Upper: leg(1)}
	} else {
		p.Trigger = &kiteconnect.GTTSingleLegTrigger{TriggerParams: leg(0)}
	}
	return p
}

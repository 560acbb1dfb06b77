package types

import "fmt"

// Request bodies accepted by the proxy. Field names follow the Kite Connect
// parameter names. The proxy decodes them with unknown fields rejected and
// validates them before any broker call.

type SetAccessTokenReq struct {
	AccessToken string `json:"access_token" validate:"required" jsonschema:"description=Kite access token to install for this session"`
}

type RenewAccessTokenReq struct {
	RefreshToken string `json:"refresh_token" validate:"required" jsonschema:"description=Kite refresh token"`
}

type MarginsReq struct {
	Segment string `json:"segment,omitempty" validate:"omitempty,oneof=equity commodity" jsonschema:"enum=equity,enum=commodity,description=Optional margin segment"`
}

type OrderReq struct {
	Variety           string  `json:"variety,omitempty" validate:"omitempty,oneof=regular amo co iceberg auction" jsonschema:"enum=regular,enum=amo,enum=co,enum=iceberg,enum=auction,default=regular"`
	Exchange          string  `json:"exchange" validate:"required,oneof=NSE BSE NFO BFO CDS BCD MCX" jsonschema:"enum=NSE,enum=BSE,enum=NFO,enum=BFO,enum=CDS,enum=BCD,enum=MCX"`
	Tradingsymbol     string  `json:"tradingsymbol" validate:"required" jsonschema:"description=Exchange trading symbol such as INFY"`
	TransactionType   string  `json:"transaction_type" validate:"required,oneof=BUY SELL" jsonschema:"enum=BUY,enum=SELL"`
	Quantity          int     `json:"quantity" validate:"required,gt=0" jsonschema:"minimum=1"`
	Product           string  `json:"product" validate:"required,oneof=CNC MIS NRML MTF" jsonschema:"enum=CNC,enum=MIS,enum=NRML,enum=MTF"`
	OrderType         string  `json:"order_type" validate:"required,oneof=MARKET LIMIT SL SL-M" jsonschema:"enum=MARKET,enum=LIMIT,enum=SL,enum=SL-M"`
	Price             float64 `json:"price,omitempty" validate:"gte=0,required_if=OrderType LIMIT,required_if=OrderType SL"`
	TriggerPrice      float64 `json:"trigger_price,omitempty" validate:"gte=0,required_if=OrderType SL,required_if=OrderType SL-M"`
	DisclosedQuantity int     `json:"disclosed_quantity,omitempty" validate:"gte=0"`
	Validity          string  `json:"validity,omitempty" validate:"omitempty,oneof=DAY IOC TTL" jsonschema:"enum=DAY,enum=IOC,enum=TTL"`
	ValidityTTL       int     `json:"validity_ttl,omitempty" validate:"gte=0,required_if=Validity TTL"`
	IcebergLegs       int     `json:"iceberg_legs,omitempty" validate:"gte=0,required_if=Variety iceberg" jsonschema:"description=Number of legs; required for iceberg orders"`
	IcebergQuantity   int     `json:"iceberg_quantity,omitempty" validate:"gte=0,required_if=Variety iceberg" jsonschema:"description=Quantity per leg; required for iceberg orders"`
	AuctionNumber     string  `json:"auction_number,omitempty" validate:"required_if=Variety auction" jsonschema:"description=Auction number; required for auction orders"`
	Tag               string  `json:"tag,omitempty" validate:"max=20"`
}

type ModifyOrderReq struct {
	Variety           string  `json:"variety" validate:"required,oneof=regular amo co iceberg auction" jsonschema:"enum=regular,enum=amo,enum=co,enum=iceberg,enum=auction"`
	OrderID           string  `json:"order_id" validate:"required"`
	ParentOrderID     string  `json:"parent_order_id,omitempty" jsonschema:"description=Parent order id when modifying the second leg of a cover order"`
	Quantity          int     `json:"quantity,omitempty" validate:"gte=0"`
	Price             float64 `json:"price,omitempty" validate:"gte=0"`
	OrderType         string  `json:"order_type,omitempty" validate:"omitempty,oneof=MARKET LIMIT SL SL-M" jsonschema:"enum=MARKET,enum=LIMIT,enum=SL,enum=SL-M"`
	TriggerPrice      float64 `json:"trigger_price,omitempty" validate:"gte=0"`
	Validity          string  `json:"validity,omitempty" validate:"omitempty,oneof=DAY IOC TTL" jsonschema:"enum=DAY,enum=IOC,enum=TTL"`
	DisclosedQuantity int     `json:"disclosed_quantity,omitempty" validate:"gte=0"`
}

// CancelOrderReq identifies an order to cancel or exit. It travels in the URL
// path and query string rather than the body.
type CancelOrderReq struct {
	Variety       string `json:"variety" validate:"required,oneof=regular amo co iceberg auction" jsonschema:"enum=regular,enum=amo,enum=co,enum=iceberg,enum=auction"`
	OrderID       string `json:"order_id" validate:"required"`
	ParentOrderID string `json:"parent_order_id,omitempty"`
}

type ConvertPositionReq struct {
	Exchange        string `json:"exchange" validate:"required,oneof=NSE BSE NFO BFO CDS BCD MCX" jsonschema:"enum=NSE,enum=BSE,enum=NFO,enum=BFO,enum=CDS,enum=BCD,enum=MCX"`
	Tradingsymbol   string `json:"tradingsymbol" validate:"required"`
	TransactionType string `json:"transaction_type" validate:"required,oneof=BUY SELL" jsonschema:"enum=BUY,enum=SELL"`
	PositionType    string `json:"position_type" validate:"required,oneof=day overnight" jsonschema:"enum=day,enum=overnight"`
	Quantity        int    `json:"quantity" validate:"required,gt=0" jsonschema:"minimum=1"`
	OldProduct      string `json:"old_product" validate:"required,oneof=CNC MIS NRML MTF" jsonschema:"enum=CNC,enum=MIS,enum=NRML,enum=MTF"`
	NewProduct      string `json:"new_product" validate:"required,oneof=CNC MIS NRML MTF,nefield=OldProduct" jsonschema:"enum=CNC,enum=MIS,enum=NRML,enum=MTF"`
}

const (
	GTTTypeSingle = "single"
	GTTTypeTwoLeg = "two-leg"
)

type GTTOrder struct {
	TransactionType string  `json:"transaction_type" validate:"required,oneof=BUY SELL" jsonschema:"enum=BUY,enum=SELL"`
	Quantity        int     `json:"quantity" validate:"required,gt=0" jsonschema:"minimum=1"`
	Price           float64 `json:"price" validate:"gt=0"`
	OrderType       string  `json:"order_type,omitempty" validate:"omitempty,oneof=LIMIT" jsonschema:"enum=LIMIT"`
	Product         string  `json:"product,omitempty" validate:"omitempty,oneof=CNC MIS NRML MTF" jsonschema:"enum=CNC,enum=MIS,enum=NRML,enum=MTF"`
}

// GTTReq places a good-till-triggered order. A single trigger carries one
// trigger value and one order; a two-leg (OCO) trigger carries the lower and
// upper values with their orders in the same order.
type GTTReq struct {
	TriggerType   string     `json:"trigger_type" validate:"required,oneof=single two-leg" jsonschema:"enum=single,enum=two-leg"`
	Tradingsymbol string     `json:"tradingsymbol" validate:"required"`
	Exchange      string     `json:"exchange" validate:"required,oneof=NSE BSE NFO BFO CDS BCD MCX" jsonschema:"enum=NSE,enum=BSE,enum=NFO,enum=BFO,enum=CDS,enum=BCD,enum=MCX"`
	TriggerValues []float64  `json:"trigger_values" validate:"required,min=1,max=2,dive,gt=0"`
	LastPrice     float64    `json:"last_price" validate:"required,gt=0"`
	Orders        []GTTOrder `json:"orders" validate:"required,min=1,max=2,dive"`
}

// Legs reports how many trigger values and orders the trigger type requires.
func (r GTTReq) Legs() int {
	if r.TriggerType == GTTTypeTwoLeg {
		return 2
	}
	return 1
}

// CheckLegs enforces the rules between trigger type, trigger values and
// orders that field tags cannot express.
func (r GTTReq) CheckLegs() error {
	legs := r.Legs()
	if len(r.TriggerValues) != legs || len(r.Orders) != legs {
		return fmt.Errorf("%w: trigger_type %s needs %d trigger_values and %d orders", ErrMissingParameters, r.TriggerType, legs, legs)
	}
	if legs == 2 && r.TriggerValues[0] >= r.TriggerValues[1] {
		return fmt.Errorf("%w: two-leg trigger_values must be [lower, upper]", ErrMissingParameters)
	}
	return nil
}

type HistoricalReq struct {
	InstrumentToken int    `json:"instrument_token" validate:"required,gt=0"`
	FromDate        string `json:"from_date" validate:"required" jsonschema:"description=YYYY-MM-DD HH:MM:SS or YYYY-MM-DD"`
	ToDate          string `json:"to_date" validate:"required" jsonschema:"description=YYYY-MM-DD HH:MM:SS or YYYY-MM-DD"`
	Interval        string `json:"interval" validate:"required,oneof=minute day 3minute 5minute 10minute 15minute 30minute 60minute" jsonschema:"enum=minute,enum=day,enum=3minute,enum=5minute,enum=10minute,enum=15minute,enum=30minute,enum=60minute"`
	Continuous      bool   `json:"continuous,omitempty"`
	OI              bool   `json:"oi,omitempty"`
}

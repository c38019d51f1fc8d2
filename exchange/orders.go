package exchange

import (
	"fmt"
	"net/url"
	"strconv"
)

// Side is the order direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// PositionSide distinguishes hedge-mode legs; one-way accounts use Both.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
	Both  PositionSide = "BOTH"
)

// OrderType is the exchange order type.
type OrderType string

const (
	Market           OrderType = "MARKET"
	Limit            OrderType = "LIMIT"
	StopMarket       OrderType = "STOP_MARKET"
	TakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// TimeInForce applies to limit orders only.
type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
)

// OrderSpec is a validated order request. Construct one through the
// per-type constructors; each accepts only the fields valid for that order
// type, so an ill-formed combination never reaches the HTTP boundary.
type OrderSpec struct {
	symbol        string
	side          Side
	positionSide  PositionSide
	orderType     OrderType
	quantity      float64
	price         float64 // limit orders only
	stopPrice     float64 // stop / take-profit triggers only
	timeInForce   TimeInForce
	reduceOnly    bool
	clientOrderID string
}

func (s OrderSpec) Symbol() string        { return s.symbol }
func (s OrderSpec) Side() Side            { return s.side }
func (s OrderSpec) Type() OrderType       { return s.orderType }
func (s OrderSpec) Quantity() float64     { return s.quantity }
func (s OrderSpec) Price() float64        { return s.price }
func (s OrderSpec) StopPrice() float64    { return s.stopPrice }
func (s OrderSpec) ReduceOnly() bool      { return s.reduceOnly }
func (s OrderSpec) ClientOrderID() string { return s.clientOrderID }

func validateCommon(symbol string, side Side, posSide PositionSide, qty float64, clientOrderID string) error {
	if symbol == "" {
		return fmt.Errorf("order: symbol is required")
	}
	if side != Buy && side != Sell {
		return fmt.Errorf("order: invalid side %q", side)
	}
	if posSide != Long && posSide != Short && posSide != Both {
		return fmt.Errorf("order: invalid position side %q", posSide)
	}
	if qty <= 0 {
		return fmt.Errorf("order: quantity must be positive, got %v", qty)
	}
	if clientOrderID == "" {
		return fmt.Errorf("order: client order ID is required")
	}
	return nil
}

// MarketOrder builds a market entry or exit order.
func MarketOrder(symbol string, side Side, posSide PositionSide, qty float64, reduceOnly bool, clientOrderID string) (OrderSpec, error) {
	if err := validateCommon(symbol, side, posSide, qty, clientOrderID); err != nil {
		return OrderSpec{}, err
	}
	return OrderSpec{
		symbol:        symbol,
		side:          side,
		positionSide:  posSide,
		orderType:     Market,
		quantity:      qty,
		reduceOnly:    reduceOnly,
		clientOrderID: clientOrderID,
	}, nil
}

// LimitOrder builds a limit order at price.
func LimitOrder(symbol string, side Side, posSide PositionSide, qty, price float64, tif TimeInForce, clientOrderID string) (OrderSpec, error) {
	if err := validateCommon(symbol, side, posSide, qty, clientOrderID); err != nil {
		return OrderSpec{}, err
	}
	if price <= 0 {
		return OrderSpec{}, fmt.Errorf("order: limit price must be positive, got %v", price)
	}
	if tif == "" {
		tif = GTC
	}
	if tif != GTC && tif != IOC && tif != FOK {
		return OrderSpec{}, fmt.Errorf("order: invalid time in force %q", tif)
	}
	return OrderSpec{
		symbol:        symbol,
		side:          side,
		positionSide:  posSide,
		orderType:     Limit,
		quantity:      qty,
		price:         price,
		timeInForce:   tif,
		clientOrderID: clientOrderID,
	}, nil
}

// StopMarketOrder builds a stop-loss trigger order. Protective stops
// should set reduceOnly so they can never grow the position.
func StopMarketOrder(symbol string, side Side, posSide PositionSide, qty, stopPrice float64, reduceOnly bool, clientOrderID string) (OrderSpec, error) {
	if err := validateCommon(symbol, side, posSide, qty, clientOrderID); err != nil {
		return OrderSpec{}, err
	}
	if stopPrice <= 0 {
		return OrderSpec{}, fmt.Errorf("order: stop price must be positive, got %v", stopPrice)
	}
	return OrderSpec{
		symbol:        symbol,
		side:          side,
		positionSide:  posSide,
		orderType:     StopMarket,
		quantity:      qty,
		stopPrice:     stopPrice,
		reduceOnly:    reduceOnly,
		clientOrderID: clientOrderID,
	}, nil
}

// TakeProfitMarketOrder builds a take-profit trigger order.
func TakeProfitMarketOrder(symbol string, side Side, posSide PositionSide, qty, stopPrice float64, reduceOnly bool, clientOrderID string) (OrderSpec, error) {
	if err := validateCommon(symbol, side, posSide, qty, clientOrderID); err != nil {
		return OrderSpec{}, err
	}
	if stopPrice <= 0 {
		return OrderSpec{}, fmt.Errorf("order: take-profit price must be positive, got %v", stopPrice)
	}
	return OrderSpec{
		symbol:        symbol,
		side:          side,
		positionSide:  posSide,
		orderType:     TakeProfitMarket,
		quantity:      qty,
		stopPrice:     stopPrice,
		reduceOnly:    reduceOnly,
		clientOrderID: clientOrderID,
	}, nil
}

// values renders the spec as request parameters.
func (s OrderSpec) values() url.Values {
	v := url.Values{}
	v.Set("symbol", s.symbol)
	v.Set("side", string(s.side))
	v.Set("positionSide", string(s.positionSide))
	v.Set("type", string(s.orderType))
	v.Set("quantity", formatFloat(s.quantity))
	v.Set("newClientOrderId", s.clientOrderID)
	if s.orderType == Limit {
		v.Set("price", formatFloat(s.price))
		v.Set("timeInForce", string(s.timeInForce))
	}
	if s.orderType == StopMarket || s.orderType == TakeProfitMarket {
		v.Set("stopPrice", formatFloat(s.stopPrice))
	}
	if s.reduceOnly {
		v.Set("reduceOnly", "true")
	}
	return v
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/dgnernvsinjsbt/futurebot/market"
)

// Client exposes the exchange's domain operations over the signed
// transport. It holds no state beyond the transport and a contract-info
// cache; precision rounding for outgoing orders lives here and nowhere
// else.
type Client struct {
	transport *Transport

	mu        sync.RWMutex
	contracts map[string]ContractInfo
}

func NewClient(transport *Transport) *Client {
	return &Client{
		transport: transport,
		contracts: make(map[string]ContractInfo),
	}
}

// ContractInfo carries the rounding rules for one contract. Prices and
// quantities sent to the exchange must respect these or the order is
// rejected (or silently truncated).
type ContractInfo struct {
	Symbol            string
	PricePrecision    int
	QuantityPrecision int
	MinQuantity       float64
}

// RoundPrice rounds p to the contract's price precision (nearest).
func (ci ContractInfo) RoundPrice(p float64) float64 {
	factor := math.Pow10(ci.PricePrecision)
	return math.Round(p*factor) / factor
}

// RoundQuantity rounds q down to the contract's quantity precision.
// Rounding down never overcommits margin.
func (ci ContractInfo) RoundQuantity(q float64) float64 {
	factor := math.Pow10(ci.QuantityPrecision)
	return math.Floor(q*factor) / factor
}

// OrderAck is the exchange's acceptance of a submitted order.
type OrderAck struct {
	OrderID       string
	ClientOrderID string
	Status        string
}

// OrderStatus is one open order as reported by the exchange.
type OrderStatus struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      float64
	Price         float64
	StopPrice     float64
	ReduceOnly    bool
}

// PositionInfo is one open position leg.
type PositionInfo struct {
	Symbol       string
	PositionSide PositionSide
	Quantity     float64 // always positive; PositionSide carries direction
	EntryPrice   float64
}

// Balance is the futures account margin balance.
type Balance struct {
	Asset     string
	Total     float64
	Available float64
}

// SyncTime aligns the transport clock with the server. Call once at
// startup and after long idle periods.
func (c *Client) SyncTime(ctx context.Context) error {
	return c.transport.SyncTime(ctx)
}

// GetTicker returns the latest trade price for symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	data, err := c.transport.Send(ctx, http.MethodGet, "/api/v1/market/ticker", params, false)
	if err != nil {
		return 0, fmt.Errorf("get ticker %s: %w", symbol, err)
	}
	var payload struct {
		Symbol string      `json:"symbol"`
		Price  json.Number `json:"price"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("get ticker %s: decode: %w", symbol, err)
	}
	price, err := payload.Price.Float64()
	if err != nil {
		return 0, fmt.Errorf("get ticker %s: parse price %q: %w", symbol, payload.Price, err)
	}
	return price, nil
}

// klineRow is one raw candle row. OHLCV fields arrive as strings or
// numbers depending on endpoint; json.Number absorbs both.
type klineRow struct {
	Time   int64       `json:"time"` // open time, epoch ms
	Open   json.Number `json:"open"`
	High   json.Number `json:"high"`
	Low    json.Number `json:"low"`
	Close  json.Number `json:"close"`
	Volume json.Number `json:"volume"`
}

// GetKlines fetches historical candles ascending by open time. The rows
// come straight from the upstream feed: duplicates and gaps are possible
// and are the caller's (the aggregator's) problem.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval market.Interval, start, end time.Time, limit int) ([]market.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval.String())
	if !start.IsZero() {
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	data, err := c.transport.Send(ctx, http.MethodGet, "/api/v1/market/klines", params, false)
	if err != nil {
		return nil, fmt.Errorf("get klines %s %s: %w", symbol, interval, err)
	}

	var rows []klineRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("get klines %s: decode: %w", symbol, err)
	}

	candles := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		candle, err := row.toCandle()
		if err != nil {
			return nil, fmt.Errorf("get klines %s: %w", symbol, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func (r klineRow) toCandle() (market.Candle, error) {
	c := market.Candle{
		OpenTime: time.UnixMilli(r.Time).UTC(),
		Closed:   true,
	}
	for _, f := range []struct {
		name string
		src  json.Number
		dst  *float64
	}{
		{"open", r.Open, &c.Open},
		{"high", r.High, &c.High},
		{"low", r.Low, &c.Low},
		{"close", r.Close, &c.Close},
		{"volume", r.Volume, &c.Volume},
	} {
		v, err := f.src.Float64()
		if err != nil {
			return market.Candle{}, fmt.Errorf("row %d: parse %s %q: %w", r.Time, f.name, f.src, err)
		}
		*f.dst = v
	}
	return c, nil
}

// numField parses an optional numeric field. Fields the exchange omits
// decode as the empty Number and mean zero; anything else that fails to
// parse is corrupt data and the caller must hear about it.
func numField(n json.Number) (float64, error) {
	if n == "" {
		return 0, nil
	}
	return n.Float64()
}

// GetContractInfo returns the precision rules for symbol, cached after the
// first fetch. Contract specs change rarely enough that restart-level
// caching is fine.
func (c *Client) GetContractInfo(ctx context.Context, symbol string) (ContractInfo, error) {
	c.mu.RLock()
	info, ok := c.contracts[symbol]
	c.mu.RUnlock()
	if ok {
		return info, nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	data, err := c.transport.Send(ctx, http.MethodGet, "/api/v1/market/contract", params, false)
	if err != nil {
		return ContractInfo{}, fmt.Errorf("get contract info %s: %w", symbol, err)
	}

	var payload struct {
		Symbol            string      `json:"symbol"`
		PricePrecision    int         `json:"pricePrecision"`
		QuantityPrecision int         `json:"quantityPrecision"`
		MinQuantity       json.Number `json:"minQty"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ContractInfo{}, fmt.Errorf("get contract info %s: decode: %w", symbol, err)
	}
	minQty, err := payload.MinQuantity.Float64()
	if err != nil {
		return ContractInfo{}, fmt.Errorf("get contract info %s: parse minQty %q: %w", symbol, payload.MinQuantity, err)
	}

	info = ContractInfo{
		Symbol:            payload.Symbol,
		PricePrecision:    payload.PricePrecision,
		QuantityPrecision: payload.QuantityPrecision,
		MinQuantity:       minQty,
	}
	c.mu.Lock()
	c.contracts[symbol] = info
	c.mu.Unlock()
	return info, nil
}

// PlaceOrder submits spec and returns the exchange's acknowledgement.
func (c *Client) PlaceOrder(ctx context.Context, spec OrderSpec) (OrderAck, error) {
	data, err := c.transport.Send(ctx, http.MethodPost, "/api/v1/trade/order", spec.values(), true)
	if err != nil {
		return OrderAck{}, fmt.Errorf("place %s %s %s: %w", spec.Type(), spec.Side(), spec.Symbol(), err)
	}
	var payload struct {
		OrderID       json.Number `json:"orderId"`
		ClientOrderID string      `json:"clientOrderId"`
		Status        string      `json:"status"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return OrderAck{}, fmt.Errorf("place order %s: decode: %w", spec.Symbol(), err)
	}
	return OrderAck{
		OrderID:       payload.OrderID.String(),
		ClientOrderID: payload.ClientOrderID,
		Status:        payload.Status,
	}, nil
}

// CancelOrder cancels an open order by exchange order ID.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	_, err := c.transport.Send(ctx, http.MethodDelete, "/api/v1/trade/order", params, true)
	if err != nil {
		return fmt.Errorf("cancel order %s %s: %w", symbol, orderID, err)
	}
	return nil
}

// GetOpenOrders lists the currently open orders for symbol.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]OrderStatus, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	data, err := c.transport.Send(ctx, http.MethodGet, "/api/v1/trade/openOrders", params, true)
	if err != nil {
		return nil, fmt.Errorf("get open orders %s: %w", symbol, err)
	}

	var rows []struct {
		OrderID       json.Number `json:"orderId"`
		ClientOrderID string      `json:"clientOrderId"`
		Symbol        string      `json:"symbol"`
		Side          string      `json:"side"`
		Type          string      `json:"type"`
		Quantity      json.Number `json:"quantity"`
		Price         json.Number `json:"price"`
		StopPrice     json.Number `json:"stopPrice"`
		ReduceOnly    bool        `json:"reduceOnly"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("get open orders %s: decode: %w", symbol, err)
	}

	orders := make([]OrderStatus, 0, len(rows))
	for _, row := range rows {
		qty, err := numField(row.Quantity)
		if err != nil {
			return nil, fmt.Errorf("get open orders %s: parse quantity %q: %w", symbol, row.Quantity, err)
		}
		price, err := numField(row.Price)
		if err != nil {
			return nil, fmt.Errorf("get open orders %s: parse price %q: %w", symbol, row.Price, err)
		}
		stop, err := numField(row.StopPrice)
		if err != nil {
			return nil, fmt.Errorf("get open orders %s: parse stopPrice %q: %w", symbol, row.StopPrice, err)
		}
		orders = append(orders, OrderStatus{
			OrderID:       row.OrderID.String(),
			ClientOrderID: row.ClientOrderID,
			Symbol:        row.Symbol,
			Side:          Side(row.Side),
			Type:          OrderType(row.Type),
			Quantity:      qty,
			Price:         price,
			StopPrice:     stop,
			ReduceOnly:    row.ReduceOnly,
		})
	}
	return orders, nil
}

// GetPositions returns the open position legs for symbol. Flat legs
// (quantity zero) are filtered out.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]PositionInfo, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	data, err := c.transport.Send(ctx, http.MethodGet, "/api/v1/account/positions", params, true)
	if err != nil {
		return nil, fmt.Errorf("get positions %s: %w", symbol, err)
	}

	var rows []struct {
		Symbol       string      `json:"symbol"`
		PositionSide string      `json:"positionSide"`
		Quantity     json.Number `json:"positionAmt"`
		EntryPrice   json.Number `json:"entryPrice"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("get positions %s: decode: %w", symbol, err)
	}

	positions := make([]PositionInfo, 0, len(rows))
	for _, row := range rows {
		qty, err := row.Quantity.Float64()
		if err != nil {
			return nil, fmt.Errorf("get positions %s: parse quantity %q: %w", symbol, row.Quantity, err)
		}
		if qty == 0 {
			continue
		}
		entry, err := numField(row.EntryPrice)
		if err != nil {
			return nil, fmt.Errorf("get positions %s: parse entryPrice %q: %w", symbol, row.EntryPrice, err)
		}
		positions = append(positions, PositionInfo{
			Symbol:       row.Symbol,
			PositionSide: PositionSide(row.PositionSide),
			Quantity:     math.Abs(qty),
			EntryPrice:   entry,
		})
	}
	return positions, nil
}

// GetBalance returns the account margin balance.
func (c *Client) GetBalance(ctx context.Context) (Balance, error) {
	data, err := c.transport.Send(ctx, http.MethodGet, "/api/v1/account/balance", nil, true)
	if err != nil {
		return Balance{}, fmt.Errorf("get balance: %w", err)
	}
	var payload struct {
		Asset     string      `json:"asset"`
		Total     json.Number `json:"balance"`
		Available json.Number `json:"availableMargin"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return Balance{}, fmt.Errorf("get balance: decode: %w", err)
	}
	total, err := numField(payload.Total)
	if err != nil {
		return Balance{}, fmt.Errorf("get balance: parse balance %q: %w", payload.Total, err)
	}
	avail, err := numField(payload.Available)
	if err != nil {
		return Balance{}, fmt.Errorf("get balance: parse availableMargin %q: %w", payload.Available, err)
	}
	return Balance{Asset: payload.Asset, Total: total, Available: avail}, nil
}

// SetLeverage sets the leverage for one position side of symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, side PositionSide, leverage int) error {
	if leverage < 1 {
		return fmt.Errorf("set leverage %s: leverage must be at least 1, got %d", symbol, leverage)
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("leverage", strconv.Itoa(leverage))
	_, err := c.transport.Send(ctx, http.MethodPost, "/api/v1/account/leverage", params, true)
	if err != nil {
		return fmt.Errorf("set leverage %s: %w", symbol, err)
	}
	return nil
}

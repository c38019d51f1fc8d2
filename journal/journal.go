// Package journal records executed (and aborted) trades for later review.
package journal

import "time"

// TradeRecord is one executor outcome: a protected position or a trade
// that had to be flattened.
type TradeRecord struct {
	TradeID    string // client order ID of the entry
	Symbol     string
	Direction  string // "LONG" or "SHORT"
	Quantity   float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Outcome    string // "PROTECTED" or "FLAT"
	OpenTime   time.Time
	RecordedAt time.Time
	Note       string
}

type Journal interface {
	RecordTrade(TradeRecord) error
	Close() error
}

// Nop discards all records; used when journaling is disabled.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error { return nil }
func (Nop) Close() error                  { return nil }

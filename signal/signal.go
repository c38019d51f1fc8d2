// Package signal defines the trade-signal contract between external
// strategy logic and the order executor. Indicator math lives with the
// strategy, never here.
package signal

import (
	"context"
	"fmt"
	"time"
)

// Direction of the intended position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// EntryType selects how the entry order is submitted.
type EntryType string

const (
	MarketEntry EntryType = "MARKET"
	LimitEntry  EntryType = "LIMIT"
)

// Signal is one actionable trade intent: direction, entry, stop and
// target. Prices are full precision; the executor rounds to contract
// precision at submission.
type Signal struct {
	Symbol     string
	Direction  Direction
	Entry      EntryType
	EntryPrice float64 // required for limit entries, advisory for market
	StopLoss   float64
	TakeProfit float64
	Time       time.Time
	Reason     string
}

// Validate checks the signal's internal consistency: both protective
// prices present and on the correct side of entry.
func (s Signal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("signal: symbol is required")
	}
	if s.Direction != Long && s.Direction != Short {
		return fmt.Errorf("signal: invalid direction %q", s.Direction)
	}
	if s.Entry != MarketEntry && s.Entry != LimitEntry {
		return fmt.Errorf("signal: invalid entry type %q", s.Entry)
	}
	if s.Entry == LimitEntry && s.EntryPrice <= 0 {
		return fmt.Errorf("signal: limit entry requires a positive entry price")
	}
	if s.StopLoss <= 0 || s.TakeProfit <= 0 {
		return fmt.Errorf("signal: stop loss and take profit are required")
	}
	if s.EntryPrice > 0 {
		switch s.Direction {
		case Long:
			if s.StopLoss >= s.EntryPrice {
				return fmt.Errorf("signal: long stop loss %v not below entry %v", s.StopLoss, s.EntryPrice)
			}
			if s.TakeProfit <= s.EntryPrice {
				return fmt.Errorf("signal: long take profit %v not above entry %v", s.TakeProfit, s.EntryPrice)
			}
		case Short:
			if s.StopLoss <= s.EntryPrice {
				return fmt.Errorf("signal: short stop loss %v not above entry %v", s.StopLoss, s.EntryPrice)
			}
			if s.TakeProfit >= s.EntryPrice {
				return fmt.Errorf("signal: short take profit %v not below entry %v", s.TakeProfit, s.EntryPrice)
			}
		}
	}
	return nil
}

// Source produces signals for the executor loop. Implementations block in
// Next until a signal is available or ctx ends.
type Source interface {
	Next(ctx context.Context) (Signal, error)
}

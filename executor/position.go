package executor

import (
	"time"

	"github.com/dgnernvsinjsbt/futurebot/exchange"
	"github.com/dgnernvsinjsbt/futurebot/signal"
)

// State is the executor's position lifecycle. Terminal states are
// StateProtected (success) and StateFlat (failed but safe).
type State int8

const (
	StateIdle State = iota
	StateEntrySubmitted
	StateEntryFilled
	StateProtecting
	StateProtected
	StateAborting
	StateFlat
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateEntrySubmitted:
		return "ENTRY_SUBMITTED"
	case StateEntryFilled:
		return "ENTRY_FILLED"
	case StateProtecting:
		return "PROTECTING"
	case StateProtected:
		return "PROTECTED"
	case StateAborting:
		return "ABORTING"
	case StateFlat:
		return "FLAT"
	default:
		return "UNKNOWN"
	}
}

// PendingOrder tracks an order between submission and confirmed acceptance.
// ExchangeOrderID is empty until the exchange acknowledges it.
type PendingOrder struct {
	ClientOrderID   string
	Symbol          string
	Side            exchange.Side
	Type            exchange.OrderType
	Quantity        float64
	Price           float64 // limit price or trigger price, per Type
	SubmittedAt     time.Time
	ExchangeOrderID string
}

// Position is the executor's view of one trade. A position with nonzero
// quantity either reaches StateProtected with both protective orders
// confirmed, or is flattened.
type Position struct {
	Symbol     string
	Direction  signal.Direction
	EntryPrice float64
	Quantity   float64
	Entry      PendingOrder
	StopLoss   *PendingOrder
	TakeProfit *PendingOrder
	State      State
}

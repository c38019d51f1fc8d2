// Package executor turns trade signals into protected exchange positions.
//
// The contract: once an entry fills, the position either ends up with both
// a confirmed stop-loss and take-profit (PROTECTED), or it is flattened
// (FLAT). It is never abandoned open without protection, not even when the
// caller cancels mid-flight.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgnernvsinjsbt/futurebot/events"
	"github.com/dgnernvsinjsbt/futurebot/exchange"
	"github.com/dgnernvsinjsbt/futurebot/internal/id"
	"github.com/dgnernvsinjsbt/futurebot/journal"
	"github.com/dgnernvsinjsbt/futurebot/signal"
)

// Exchange is the slice of the exchange client the executor needs.
type Exchange interface {
	GetContractInfo(ctx context.Context, symbol string) (exchange.ContractInfo, error)
	PlaceOrder(ctx context.Context, spec exchange.OrderSpec) (exchange.OrderAck, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderStatus, error)
	GetPositions(ctx context.Context, symbol string) ([]exchange.PositionInfo, error)
}

// Config bounds the executor's wait and retry loops. Each loop has its own
// budget; a slow network degrades one phase instead of truncating the
// whole sequence.
type Config struct {
	FillWaitAttempts int
	FillWaitDelay    time.Duration
	ProtectAttempts  int
	ProtectDelay     time.Duration
}

func DefaultConfig() Config {
	return Config{
		FillWaitAttempts: 10,
		FillWaitDelay:    500 * time.Millisecond,
		ProtectAttempts:  3,
		ProtectDelay:     time.Second,
	}
}

// Executor drives the entry → protect sequence. Executions for the same
// symbol are serialized; different symbols run in parallel.
type Executor struct {
	ex      Exchange
	sink    events.Sink
	journal journal.Journal
	cfg     Config

	mu      sync.Mutex
	symbols map[string]*sync.Mutex
}

func New(ex Exchange, sink events.Sink, jnl journal.Journal, cfg Config) *Executor {
	if sink == nil {
		sink = events.Nop{}
	}
	if jnl == nil {
		jnl = journal.Nop{}
	}
	if cfg.FillWaitAttempts <= 0 {
		cfg.FillWaitAttempts = DefaultConfig().FillWaitAttempts
	}
	if cfg.ProtectAttempts <= 0 {
		cfg.ProtectAttempts = DefaultConfig().ProtectAttempts
	}
	return &Executor{
		ex:      ex,
		sink:    sink,
		journal: jnl,
		cfg:     cfg,
		symbols: make(map[string]*sync.Mutex),
	}
}

func (e *Executor) symbolLock(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.symbols[symbol]
	if !ok {
		l = &sync.Mutex{}
		e.symbols[symbol] = l
	}
	return l
}

// orderSides maps a signal direction onto entry side, exit side and
// hedge-mode position side.
func orderSides(dir signal.Direction) (entry, exit exchange.Side, pos exchange.PositionSide) {
	if dir == signal.Long {
		return exchange.Buy, exchange.Sell, exchange.Long
	}
	return exchange.Sell, exchange.Buy, exchange.Short
}

// Execute runs one signal through the state machine. quantity is the
// sizing collaborator's output at full precision; it is rounded to
// contract precision here, at the submission boundary.
func (e *Executor) Execute(ctx context.Context, sig signal.Signal, quantity float64) (*Position, error) {
	if err := sig.Validate(); err != nil {
		return nil, &ExecutionError{Kind: EntryRejected, Symbol: sig.Symbol, Err: err}
	}

	lock := e.symbolLock(sig.Symbol)
	lock.Lock()
	defer lock.Unlock()

	info, err := e.ex.GetContractInfo(ctx, sig.Symbol)
	if err != nil {
		return nil, &ExecutionError{Kind: EntryRejected, Symbol: sig.Symbol, Err: err}
	}

	qty := info.RoundQuantity(quantity)
	if qty < info.MinQuantity || qty <= 0 {
		return nil, &ExecutionError{
			Kind:   EntryRejected,
			Symbol: sig.Symbol,
			Err:    fmt.Errorf("quantity %v below contract minimum %v", qty, info.MinQuantity),
		}
	}

	pos, err := e.submitEntry(ctx, sig, info, qty)
	if err != nil {
		return nil, err
	}

	filled, err := e.awaitFill(ctx, pos, qty)
	if err != nil {
		return nil, err
	}
	if !filled {
		// Entry never filled and is cancelled: nothing to protect.
		return nil, &ExecutionError{
			Kind:   EntryTimedOut,
			Symbol: sig.Symbol,
			Err:    fmt.Errorf("entry not filled after %d polls", e.cfg.FillWaitAttempts),
		}
	}

	// A position now exists. From here every path must end PROTECTED or
	// FLAT, regardless of caller cancellation.
	return e.protect(ctx, sig, info, pos)
}

func (e *Executor) submitEntry(ctx context.Context, sig signal.Signal, info exchange.ContractInfo, qty float64) (*Position, error) {
	entrySide, _, posSide := orderSides(sig.Direction)
	entryID := id.New()

	var (
		spec exchange.OrderSpec
		err  error
	)
	switch sig.Entry {
	case signal.LimitEntry:
		spec, err = exchange.LimitOrder(sig.Symbol, entrySide, posSide, qty, info.RoundPrice(sig.EntryPrice), exchange.GTC, entryID)
	default:
		spec, err = exchange.MarketOrder(sig.Symbol, entrySide, posSide, qty, false, entryID)
	}
	if err != nil {
		return nil, &ExecutionError{Kind: EntryRejected, Symbol: sig.Symbol, Err: err}
	}

	pos := &Position{
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		State:     StateEntrySubmitted,
		Entry: PendingOrder{
			ClientOrderID: entryID,
			Symbol:        sig.Symbol,
			Side:          entrySide,
			Type:          spec.Type(),
			Quantity:      qty,
			Price:         spec.Price(),
			SubmittedAt:   time.Now().UTC(),
		},
	}

	ack, err := e.ex.PlaceOrder(ctx, spec)
	if err != nil {
		return nil, &ExecutionError{Kind: EntryRejected, Symbol: sig.Symbol, Err: err}
	}
	pos.Entry.ExchangeOrderID = ack.OrderID
	return pos, nil
}

// awaitFill polls position state until the entry fills or the attempt
// budget runs out, then cancels the unfilled remainder. It returns true
// with pos updated (EntryPrice, Quantity, StateEntryFilled) on fill.
func (e *Executor) awaitFill(ctx context.Context, pos *Position, want float64) (bool, error) {
	_, _, posSide := orderSides(pos.Direction)

	for attempt := 0; attempt < e.cfg.FillWaitAttempts; attempt++ {
		if attempt > 0 {
			if !sleepCtx(ctx, e.cfg.FillWaitDelay) {
				break // caller cancelled: stop waiting, cancel the entry below
			}
		}
		leg, ok, err := e.findPosition(ctx, pos.Symbol, posSide)
		if err != nil {
			continue // transient read failure; the budget bounds us
		}
		if ok && leg.Quantity >= want {
			pos.State = StateEntryFilled
			pos.EntryPrice = leg.EntryPrice
			pos.Quantity = leg.Quantity
			return true, nil
		}
	}

	// Not (fully) filled in time. Cancel, then re-check once: the fill may
	// have raced the cancel.
	dctx := context.WithoutCancel(ctx)
	cancelErr := e.ex.CancelOrder(dctx, pos.Symbol, pos.Entry.ExchangeOrderID)
	if cancelErr != nil && !exchange.IsOrderNotFound(cancelErr) {
		return false, &ExecutionError{
			Kind:   EntryTimedOut,
			Symbol: pos.Symbol,
			Err:    fmt.Errorf("cancel unfilled entry: %w", cancelErr),
		}
	}

	leg, ok, err := e.findPosition(dctx, pos.Symbol, mustPosSide(pos.Direction))
	if err == nil && ok && leg.Quantity > 0 {
		// Partial or late fill slipped through: protect what we hold.
		pos.State = StateEntryFilled
		pos.EntryPrice = leg.EntryPrice
		pos.Quantity = leg.Quantity
		return true, nil
	}
	return false, nil
}

func mustPosSide(dir signal.Direction) exchange.PositionSide {
	_, _, posSide := orderSides(dir)
	return posSide
}

func (e *Executor) findPosition(ctx context.Context, symbol string, posSide exchange.PositionSide) (exchange.PositionInfo, bool, error) {
	legs, err := e.ex.GetPositions(ctx, symbol)
	if err != nil {
		return exchange.PositionInfo{}, false, err
	}
	for _, leg := range legs {
		if leg.PositionSide == posSide && leg.Quantity > 0 {
			return leg, true, nil
		}
	}
	return exchange.PositionInfo{}, false, nil
}

// protect places the stop-loss and take-profit for a filled entry. Both
// get independent retry budgets; if either is still missing afterwards the
// position is flattened.
func (e *Executor) protect(ctx context.Context, sig signal.Signal, info exchange.ContractInfo, pos *Position) (*Position, error) {
	pos.State = StateProtecting
	_, exitSide, posSide := orderSides(sig.Direction)

	slSpec, err := exchange.StopMarketOrder(
		pos.Symbol, exitSide, posSide, pos.Quantity, info.RoundPrice(sig.StopLoss), true, id.New())
	if err != nil {
		return e.abort(ctx, sig, pos, fmt.Errorf("build stop-loss: %w", err))
	}
	tpSpec, err := exchange.TakeProfitMarketOrder(
		pos.Symbol, exitSide, posSide, pos.Quantity, info.RoundPrice(sig.TakeProfit), true, id.New())
	if err != nil {
		return e.abort(ctx, sig, pos, fmt.Errorf("build take-profit: %w", err))
	}

	slOrder, slErr := e.placeProtective(ctx, "stop_loss", slSpec)
	// The take-profit is attempted even when the stop failed; a partial
	// shield is still worth having while we decide to flatten.
	tpOrder, tpErr := e.placeProtective(ctx, "take_profit", tpSpec)

	pos.StopLoss = slOrder
	pos.TakeProfit = tpOrder

	if slErr != nil || tpErr != nil {
		reason := fmt.Errorf("stop-loss: %w", slErr)
		if slErr == nil {
			reason = fmt.Errorf("take-profit: %w", tpErr)
		}
		return e.abort(ctx, sig, pos, reason)
	}

	pos.State = StateProtected
	e.sink.Emit(events.Event{
		Type:    events.TradeEntry,
		Level:   events.Info,
		Time:    time.Now().UTC(),
		Symbol:  pos.Symbol,
		Message: "position protected",
		Fields: map[string]any{
			"direction":   string(pos.Direction),
			"quantity":    pos.Quantity,
			"entry_price": pos.EntryPrice,
			"stop_loss":   slOrder.Price,
			"take_profit": tpOrder.Price,
			"entry_id":    pos.Entry.ClientOrderID,
		},
	})
	e.record(pos, sig, "PROTECTED", "")
	return pos, nil
}

// placeProtective submits one protective order with a bounded transient
// retry budget. Retries reuse the client order ID and re-check open orders
// first, so a submission whose ack was lost is found instead of duplicated.
func (e *Executor) placeProtective(ctx context.Context, label string, spec exchange.OrderSpec) (*PendingOrder, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.ProtectAttempts; attempt++ {
		if attempt > 1 {
			if found, ok := e.findOpenOrder(ctx, spec.Symbol(), spec.ClientOrderID()); ok {
				return found, nil
			}
			if !sleepCtx(ctx, e.cfg.ProtectDelay) {
				return nil, fmt.Errorf("%s: %w", label, ctx.Err())
			}
		}

		ack, err := e.ex.PlaceOrder(ctx, spec)
		if err == nil {
			return &PendingOrder{
				ClientOrderID:   spec.ClientOrderID(),
				Symbol:          spec.Symbol(),
				Side:            spec.Side(),
				Type:            spec.Type(),
				Quantity:        spec.Quantity(),
				Price:           spec.StopPrice(),
				SubmittedAt:     time.Now().UTC(),
				ExchangeOrderID: ack.OrderID,
			}, nil
		}
		lastErr = err

		kind := exchange.KindOf(err)
		if kind != exchange.KindTransient && kind != exchange.KindRateLimited {
			return nil, fmt.Errorf("%s rejected: %w", label, err)
		}
		e.sink.Emit(events.Event{
			Type:    events.SystemEvent,
			Level:   events.Warn,
			Time:    time.Now().UTC(),
			Symbol:  spec.Symbol(),
			Message: "protective order attempt failed",
			Fields: map[string]any{
				"order":   label,
				"attempt": attempt,
			},
			Err: err,
		})
	}
	return nil, fmt.Errorf("%s: %w", label, lastErr)
}

// findOpenOrder looks for a previously submitted order by client order ID.
func (e *Executor) findOpenOrder(ctx context.Context, symbol, clientOrderID string) (*PendingOrder, bool) {
	orders, err := e.ex.GetOpenOrders(ctx, symbol)
	if err != nil {
		return nil, false
	}
	for _, o := range orders {
		if o.ClientOrderID == clientOrderID {
			return &PendingOrder{
				ClientOrderID:   o.ClientOrderID,
				Symbol:          o.Symbol,
				Side:            o.Side,
				Type:            o.Type,
				Quantity:        o.Quantity,
				Price:           o.StopPrice,
				ExchangeOrderID: o.OrderID,
			}, true
		}
	}
	return nil, false
}

// abort flattens a filled position that could not be protected. It runs on
// a detached context: caller cancellation must not leave a naked position.
func (e *Executor) abort(ctx context.Context, sig signal.Signal, pos *Position, reason error) (*Position, error) {
	pos.State = StateAborting
	dctx := context.WithoutCancel(ctx)

	// Cancel whichever protective orders did land; a reduce-only trigger
	// left behind against a flat position would be a stray.
	for _, po := range []*PendingOrder{pos.StopLoss, pos.TakeProfit} {
		if po == nil || po.ExchangeOrderID == "" {
			continue
		}
		if err := e.ex.CancelOrder(dctx, pos.Symbol, po.ExchangeOrderID); err != nil && !exchange.IsOrderNotFound(err) {
			e.sink.Emit(events.Event{
				Type:    events.SystemEvent,
				Level:   events.Error,
				Time:    time.Now().UTC(),
				Symbol:  pos.Symbol,
				Message: "failed to cancel protective order during abort",
				Fields:  map[string]any{"order_id": po.ExchangeOrderID},
				Err:     err,
			})
		}
	}
	pos.StopLoss = nil
	pos.TakeProfit = nil

	flattenErr := e.flatten(dctx, pos)
	if flattenErr != nil {
		// Loudest possible failure: the position is open and unprotected.
		e.sink.Emit(events.Event{
			Type:    events.SystemEvent,
			Level:   events.Error,
			Time:    time.Now().UTC(),
			Symbol:  pos.Symbol,
			Message: "FLATTEN FAILED: position open without protection",
			Fields: map[string]any{
				"quantity":    pos.Quantity,
				"entry_price": pos.EntryPrice,
				"state":       pos.State.String(),
			},
			Err: flattenErr,
		})
		return pos, &ExecutionError{
			Kind:   ProtectionFailed,
			Symbol: pos.Symbol,
			Err:    fmt.Errorf("%w; flatten also failed: %w", reason, flattenErr),
		}
	}

	pos.State = StateFlat
	e.sink.Emit(events.Event{
		Type:    events.TradeExit,
		Level:   events.Error,
		Time:    time.Now().UTC(),
		Symbol:  pos.Symbol,
		Message: "position flattened: protection could not be established",
		Fields: map[string]any{
			"direction":   string(pos.Direction),
			"quantity":    pos.Quantity,
			"entry_price": pos.EntryPrice,
			"entry_id":    pos.Entry.ClientOrderID,
		},
		Err: reason,
	})
	e.record(pos, sig, "FLAT", reason.Error())
	return pos, &ExecutionError{Kind: ProtectionFailed, Symbol: pos.Symbol, Err: reason}
}

// flatten closes the position with a reduce-only market order, retrying
// transient failures on the protection budget.
func (e *Executor) flatten(ctx context.Context, pos *Position) error {
	_, exitSide, posSide := orderSides(pos.Direction)
	spec, err := exchange.MarketOrder(pos.Symbol, exitSide, posSide, pos.Quantity, true, id.New())
	if err != nil {
		return fmt.Errorf("build flatten order: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.ProtectAttempts; attempt++ {
		if attempt > 1 {
			if !sleepCtx(ctx, e.cfg.ProtectDelay) {
				return ctx.Err()
			}
		}
		_, err := e.ex.PlaceOrder(ctx, spec)
		if err == nil {
			return nil
		}
		lastErr = err
		kind := exchange.KindOf(err)
		if kind != exchange.KindTransient && kind != exchange.KindRateLimited {
			return err
		}
	}
	return lastErr
}

func (e *Executor) record(pos *Position, sig signal.Signal, outcome, note string) {
	rec := journal.TradeRecord{
		TradeID:    pos.Entry.ClientOrderID,
		Symbol:     pos.Symbol,
		Direction:  string(pos.Direction),
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		Outcome:    outcome,
		OpenTime:   pos.Entry.SubmittedAt,
		RecordedAt: time.Now().UTC(),
		Note:       note,
	}
	if pos.StopLoss != nil {
		rec.StopLoss = pos.StopLoss.Price
	} else {
		rec.StopLoss = sig.StopLoss
	}
	if pos.TakeProfit != nil {
		rec.TakeProfit = pos.TakeProfit.Price
	} else {
		rec.TakeProfit = sig.TakeProfit
	}
	if err := e.journal.RecordTrade(rec); err != nil {
		e.sink.Emit(events.Event{
			Type:    events.SystemEvent,
			Level:   events.Warn,
			Time:    time.Now().UTC(),
			Symbol:  pos.Symbol,
			Message: "journal write failed",
			Err:     err,
		})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

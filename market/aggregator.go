package market

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgnernvsinjsbt/futurebot/events"
)

// Aggregator folds a stream of completed base-interval candles into one
// rolling buffer per configured higher timeframe.
//
// Input may arrive late or duplicated; the aggregator guards with a
// monotonicity check on the base open time and drops anything at or before
// the last applied bar, reporting it to the event sink as a data anomaly.
// All mutation happens under one mutex; Snapshot hands out copies only.
type Aggregator struct {
	mu          sync.Mutex
	symbol      string
	base        Interval
	lastApplied time.Time // zero until the first bar lands
	frames      []*timeframe
	sink        events.Sink
}

type timeframe struct {
	interval Interval
	sealed   *candleRing
	open     *Candle
}

// NewAggregator builds an aggregator for symbol over the given higher
// timeframes. Every timeframe must be a multiple of the base interval;
// capacity bounds the sealed-candle ring per timeframe.
func NewAggregator(symbol string, base Interval, timeframes []Interval, capacity int, sink events.Sink) (*Aggregator, error) {
	if !base.Valid() {
		return nil, fmt.Errorf("aggregator: invalid base interval %v", base)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("aggregator: capacity must be positive, got %d", capacity)
	}
	if len(timeframes) == 0 {
		return nil, fmt.Errorf("aggregator: no timeframes configured")
	}
	if sink == nil {
		sink = events.Nop{}
	}

	sorted := make([]Interval, len(timeframes))
	copy(sorted, timeframes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	frames := make([]*timeframe, 0, len(sorted))
	seen := make(map[Interval]bool, len(sorted))
	for _, tf := range sorted {
		if tf.Duration()%base.Duration() != 0 || tf < base {
			return nil, fmt.Errorf("aggregator: timeframe %s is not a multiple of base %s", tf, base)
		}
		if seen[tf] {
			return nil, fmt.Errorf("aggregator: duplicate timeframe %s", tf)
		}
		seen[tf] = true
		frames = append(frames, &timeframe{
			interval: tf,
			sealed:   newCandleRing(capacity),
		})
	}

	return &Aggregator{
		symbol: symbol,
		base:   base,
		frames: frames,
		sink:   sink,
	}, nil
}

// Symbol returns the symbol this aggregator serves.
func (a *Aggregator) Symbol() string { return a.symbol }

// Base returns the base interval consumed by Apply.
func (a *Aggregator) Base() Interval { return a.base }

// Apply folds one completed base candle into every timeframe. It returns
// false when the bar was dropped by the monotonicity/duplicate guards or
// failed basic validation; dropped bars leave all buffers untouched.
func (a *Aggregator) Apply(base Candle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !base.Closed {
		a.anomaly(base, "base candle not closed")
		return false
	}
	if err := base.Validate(); err != nil {
		a.anomaly(base, err.Error())
		return false
	}
	aligned := a.base.Truncate(base.OpenTime)
	if !aligned.Equal(base.OpenTime.UTC()) {
		a.anomaly(base, "open time not aligned to base interval")
		return false
	}
	if !a.lastApplied.IsZero() {
		if aligned.Equal(a.lastApplied) {
			a.anomaly(base, "duplicate base candle")
			return false
		}
		if aligned.Before(a.lastApplied) {
			a.anomaly(base, "out-of-order base candle")
			return false
		}
	}
	a.lastApplied = aligned
	base.OpenTime = aligned

	for _, f := range a.frames {
		f.apply(base)
	}
	return true
}

func (f *timeframe) apply(base Candle) {
	bucket := f.interval.Truncate(base.OpenTime)

	if f.open == nil {
		c := NewCandle(bucket, base)
		f.open = &c
		return
	}
	if !bucket.Equal(f.open.OpenTime) {
		// Boundary crossed: seal the current bar, start the next. Gaps in
		// the base feed simply leave the sealed bar shorter.
		f.open.Seal()
		f.sealed.push(*f.open)
		c := NewCandle(bucket, base)
		f.open = &c
		return
	}
	f.open.Fold(base)
}

// Snapshot returns the sealed candles for tf in time order, with the
// current in-progress candle appended last (Closed=false) when one exists.
// The result is a copy; callers may not see mid-fold state.
func (a *Aggregator) Snapshot(tf Interval) ([]Candle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f := a.frame(tf)
	if f == nil {
		return nil, fmt.Errorf("aggregator: timeframe %s not configured", tf)
	}

	out := f.sealed.slice()
	if f.open != nil {
		out = append(out, *f.open)
	}
	return out, nil
}

// SealedCount returns how many completed candles tf currently holds.
func (a *Aggregator) SealedCount(tf Interval) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f := a.frame(tf)
	if f == nil {
		return 0, fmt.Errorf("aggregator: timeframe %s not configured", tf)
	}
	return f.sealed.len(), nil
}

// Timeframes returns the configured timeframes in ascending order.
func (a *Aggregator) Timeframes() []Interval {
	out := make([]Interval, len(a.frames))
	for i, f := range a.frames {
		out[i] = f.interval
	}
	return out
}

func (a *Aggregator) frame(tf Interval) *timeframe {
	for _, f := range a.frames {
		if f.interval == tf {
			return f
		}
	}
	return nil
}

func (a *Aggregator) anomaly(base Candle, reason string) {
	a.sink.Emit(events.Event{
		Type:    events.DataAnomaly,
		Level:   events.Warn,
		Time:    time.Now().UTC(),
		Symbol:  a.symbol,
		Message: "base candle dropped",
		Fields: map[string]any{
			"reason":    reason,
			"open_time": base.OpenTime,
		},
	})
}

// candleRing is a fixed-capacity ring of sealed candles. Pushing at
// capacity evicts the oldest entry.
type candleRing struct {
	buf    []Candle
	start  int
	length int
}

func newCandleRing(capacity int) *candleRing {
	return &candleRing{buf: make([]Candle, capacity)}
}

func (r *candleRing) push(c Candle) {
	if r.length < len(r.buf) {
		r.buf[(r.start+r.length)%len(r.buf)] = c
		r.length++
		return
	}
	// overwrite oldest
	r.buf[r.start] = c
	r.start = (r.start + 1) % len(r.buf)
}

func (r *candleRing) len() int { return r.length }

func (r *candleRing) slice() []Candle {
	out := make([]Candle, 0, r.length+1)
	for i := 0; i < r.length; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

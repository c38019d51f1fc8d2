// Package events defines the structured event stream the trading core emits.
//
// The core never formats or persists these itself; it hands them to a Sink.
// Production wiring uses the zap-backed sink, tests use Recorder.
package events

import (
	"sync"
	"time"
)

// Type identifies the event category.
type Type string

const (
	TradeEntry  Type = "trade_entry"
	TradeExit   Type = "trade_exit"
	Signal      Type = "signal"
	SystemEvent Type = "system_event"
	DataAnomaly Type = "data_anomaly"
)

// Level is the severity attached to an event.
type Level int8

const (
	Info Level = iota
	Warn
	Error
)

// Event is one structured observation from the core.
type Event struct {
	Type    Type
	Level   Level
	Time    time.Time
	Symbol  string
	Message string
	Fields  map[string]any
	Err     error
}

// Sink consumes events. Implementations must be safe for concurrent use;
// the aggregator and executors emit from multiple goroutines.
type Sink interface {
	Emit(Event)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Emit(Event) {}

// Recorder captures events for test assertions.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// All returns a copy of the recorded events in emission order.
func (r *Recorder) All() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByType returns the recorded events matching t, in emission order.
func (r *Recorder) ByType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

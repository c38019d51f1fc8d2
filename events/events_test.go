package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	rec := &Recorder{}
	rec.Emit(Event{Type: TradeEntry, Symbol: "BTC-USDT"})
	rec.Emit(Event{Type: DataAnomaly, Symbol: "BTC-USDT"})
	rec.Emit(Event{Type: TradeEntry, Symbol: "ETH-USDT"})

	assert.Len(t, rec.All(), 3)
	entries := rec.ByType(TradeEntry)
	require.Len(t, entries, 2)
	assert.Equal(t, "ETH-USDT", entries[1].Symbol)
	assert.Empty(t, rec.ByType(TradeExit))
}

func TestRecorderConcurrent(t *testing.T) {
	t.Parallel()

	rec := &Recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Emit(Event{Type: SystemEvent})
		}()
	}
	wg.Wait()
	assert.Len(t, rec.All(), 50)
}

func TestZapSink(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	sink.Emit(Event{
		Type:    TradeEntry,
		Level:   Info,
		Time:    now,
		Symbol:  "BTC-USDT",
		Message: "position protected",
		Fields:  map[string]any{"quantity": 0.5},
	})
	sink.Emit(Event{
		Type:    SystemEvent,
		Level:   Error,
		Message: "flatten failed",
		Err:     errors.New("boom"),
	})

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "position protected", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "trade_entry", fields["event"])
	assert.Equal(t, "BTC-USDT", fields["symbol"])
	assert.Equal(t, 0.5, fields["quantity"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

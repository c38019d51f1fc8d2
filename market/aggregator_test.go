package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnernvsinjsbt/futurebot/events"
)

// minuteBars generates n consecutive closed 1m bars starting at start.
// Prices walk upward so each bar is distinguishable.
func minuteBars(start time.Time, n int) []Candle {
	out := make([]Candle, 0, n)
	for i := 0; i < n; i++ {
		p := 100 + float64(i)
		out = append(out, bar(start.Add(time.Duration(i)*time.Minute), p, p+2, p-1, p+1, 1))
	}
	return out
}

func TestNewAggregatorRejectsBadTimeframes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		base       Interval
		timeframes []Interval
		capacity   int
	}{
		{"no timeframes", M1, nil, 10},
		{"not a multiple", M5, []Interval{M3}, 10},
		{"below base", M5, []Interval{M1}, 10},
		{"duplicate", M1, []Interval{M5, M5}, 10},
		{"zero capacity", M1, []Interval{M5}, 0},
		{"invalid base", 0, []Interval{M5}, 10},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewAggregator("BTC-USDT", tt.base, tt.timeframes, tt.capacity, nil)
			assert.Error(t, err)
		})
	}
}

func TestAggregatorFoldsIntoHigherTimeframe(t *testing.T) {
	t.Parallel()

	agg, err := NewAggregator("BTC-USDT", M1, []Interval{M5}, 100, nil)
	require.NoError(t, err)

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for _, b := range minuteBars(start, 5) {
		assert.True(t, agg.Apply(b))
	}

	// Five 1m bars fill the 09:00 bucket but the seal only happens when the
	// first bar of the next bucket arrives.
	n, err := agg.SealedCount(M5)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.True(t, agg.Apply(bar(start.Add(5*time.Minute), 105, 107, 104, 106, 1)))

	snap, err := agg.Snapshot(M5)
	require.NoError(t, err)
	require.Len(t, snap, 2)

	sealed := snap[0]
	assert.True(t, sealed.Closed)
	assert.Equal(t, start, sealed.OpenTime)
	assert.Equal(t, 100.0, sealed.Open)
	assert.Equal(t, 106.0, sealed.High) // bar 4: 104+2
	assert.Equal(t, 99.0, sealed.Low)
	assert.Equal(t, 105.0, sealed.Close) // bar 4: 104+1
	assert.Equal(t, 5.0, sealed.Volume)

	open := snap[1]
	assert.False(t, open.Closed)
	assert.Equal(t, start.Add(5*time.Minute), open.OpenTime)
	assert.Equal(t, 105.0, open.Open)
}

func TestAggregatorPartialBucket(t *testing.T) {
	t.Parallel()

	agg, err := NewAggregator("BTC-USDT", M1, []Interval{M5}, 100, nil)
	require.NoError(t, err)

	// Three bars of the 09:00 bucket: 09:00, 09:01, 09:02.
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for _, b := range minuteBars(start, 3) {
		require.True(t, agg.Apply(b))
	}

	snap, err := agg.Snapshot(M5)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.False(t, snap[0].Closed)
	assert.Equal(t, start, snap[0].OpenTime)
	assert.Equal(t, 100.0, snap[0].Open)
	assert.Equal(t, 103.0, snap[0].Close)
	assert.Equal(t, 3.0, snap[0].Volume)
}

func TestAggregatorDropsDuplicatesAndOutOfOrder(t *testing.T) {
	t.Parallel()

	rec := &events.Recorder{}
	agg, err := NewAggregator("BTC-USDT", M1, []Interval{M5}, 100, rec)
	require.NoError(t, err)

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	bars := minuteBars(start, 3)
	for _, b := range bars {
		require.True(t, agg.Apply(b))
	}

	before, err := agg.Snapshot(M5)
	require.NoError(t, err)

	assert.False(t, agg.Apply(bars[2]), "duplicate")
	assert.False(t, agg.Apply(bars[0]), "out of order")
	assert.False(t, agg.Apply(Candle{OpenTime: start.Add(3 * time.Minute), Open: 1, High: 2, Low: 0.5, Close: 1.5}), "not closed")
	assert.False(t, agg.Apply(bar(start.Add(3*time.Minute+30*time.Second), 1, 2, 0.5, 1.5, 1)), "misaligned")

	after, err := agg.Snapshot(M5)
	require.NoError(t, err)
	assert.Equal(t, before, after, "dropped bars must not touch the buffers")

	anomalies := rec.ByType(events.DataAnomaly)
	require.Len(t, anomalies, 4)
	for _, e := range anomalies {
		assert.Equal(t, events.Warn, e.Level)
		assert.Equal(t, "BTC-USDT", e.Symbol)
	}
}

func TestAggregatorDuplicatesDoNotChangeOutput(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	bars := minuteBars(start, 12)

	clean, err := NewAggregator("BTC-USDT", M1, []Interval{M5}, 100, nil)
	require.NoError(t, err)
	for _, b := range bars {
		require.True(t, clean.Apply(b))
	}

	// Same bars with every bar also replayed as a duplicate and a stale
	// re-delivery of the first bar sprinkled in.
	noisy, err := NewAggregator("BTC-USDT", M1, []Interval{M5}, 100, nil)
	require.NoError(t, err)
	for _, b := range bars {
		noisy.Apply(b)
		noisy.Apply(b)
		noisy.Apply(bars[0])
	}

	want, err := clean.Snapshot(M5)
	require.NoError(t, err)
	got, err := noisy.Snapshot(M5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAggregatorGapLeavesShortBar(t *testing.T) {
	t.Parallel()

	agg, err := NewAggregator("BTC-USDT", M1, []Interval{M5}, 100, nil)
	require.NoError(t, err)

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.True(t, agg.Apply(bar(start, 100, 102, 99, 101, 1)))
	require.True(t, agg.Apply(bar(start.Add(time.Minute), 101, 103, 100, 102, 1)))

	// Feed drops out for the rest of the bucket; next bar opens 09:05.
	require.True(t, agg.Apply(bar(start.Add(5*time.Minute), 102, 104, 101, 103, 1)))

	snap, err := agg.Snapshot(M5)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.True(t, snap[0].Closed)
	assert.Equal(t, 2.0, snap[0].Volume, "sealed bar holds only the bars that arrived")
	assert.Equal(t, 102.0, snap[0].Close)
}

func TestAggregatorMultipleTimeframes(t *testing.T) {
	t.Parallel()

	agg, err := NewAggregator("ETH-USDT", M1, []Interval{M15, M5}, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, []Interval{M5, M15}, agg.Timeframes(), "sorted ascending")

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for _, b := range minuteBars(start, 16) {
		require.True(t, agg.Apply(b))
	}

	n5, err := agg.SealedCount(M5)
	require.NoError(t, err)
	assert.Equal(t, 3, n5)

	n15, err := agg.SealedCount(M15)
	require.NoError(t, err)
	assert.Equal(t, 1, n15)

	snap15, err := agg.Snapshot(M15)
	require.NoError(t, err)
	require.Len(t, snap15, 2)
	assert.Equal(t, 100.0, snap15[0].Open)
	assert.Equal(t, 115.0, snap15[0].Close) // bar at 09:14 closes at 114+1
	assert.Equal(t, 15.0, snap15[0].Volume)
}

func TestAggregatorRingEvictsOldest(t *testing.T) {
	t.Parallel()

	agg, err := NewAggregator("BTC-USDT", M1, []Interval{M5}, 3, nil)
	require.NoError(t, err)

	// 35 minutes seals seven 5m bars into a capacity-3 ring.
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for _, b := range minuteBars(start, 36) {
		require.True(t, agg.Apply(b))
	}

	n, err := agg.SealedCount(M5)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	snap, err := agg.Snapshot(M5)
	require.NoError(t, err)
	require.Len(t, snap, 4)
	assert.Equal(t, start.Add(20*time.Minute), snap[0].OpenTime, "oldest surviving bar")
	assert.Equal(t, start.Add(25*time.Minute), snap[1].OpenTime)
	assert.Equal(t, start.Add(30*time.Minute), snap[2].OpenTime)
	assert.False(t, snap[3].Closed)
	assert.Equal(t, start.Add(35*time.Minute), snap[3].OpenTime)
}

func TestAggregatorSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	agg, err := NewAggregator("BTC-USDT", M1, []Interval{M5}, 100, nil)
	require.NoError(t, err)

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for _, b := range minuteBars(start, 6) {
		require.True(t, agg.Apply(b))
	}

	snap, err := agg.Snapshot(M5)
	require.NoError(t, err)
	snap[0].Close = -1
	snap[0].Closed = false

	again, err := agg.Snapshot(M5)
	require.NoError(t, err)
	assert.Equal(t, 105.0, again[0].Close)
	assert.True(t, again[0].Closed)
}

func TestAggregatorUnknownTimeframe(t *testing.T) {
	t.Parallel()

	agg, err := NewAggregator("BTC-USDT", M1, []Interval{M5}, 100, nil)
	require.NoError(t, err)

	_, err = agg.Snapshot(H1)
	assert.Error(t, err)
	_, err = agg.SealedCount(H1)
	assert.Error(t, err)
}

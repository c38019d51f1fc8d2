package market

import (
	"fmt"
	"time"
)

// Candle is one OHLCV bar. OpenTime is aligned to the bar's interval
// boundary. A candle is mutable while open; once Closed is set it must not
// be modified again.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Closed   bool
}

// NewCandle starts an open candle at openTime seeded from the first base
// bar folded into it.
func NewCandle(openTime time.Time, base Candle) Candle {
	return Candle{
		OpenTime: openTime,
		Open:     base.Open,
		High:     base.High,
		Low:      base.Low,
		Close:    base.Close,
		Volume:   base.Volume,
	}
}

// Fold merges a later base bar into the open candle: high and low extend
// monotonically, close tracks the latest bar, volume accumulates.
func (c *Candle) Fold(base Candle) {
	if base.High > c.High {
		c.High = base.High
	}
	if base.Low < c.Low {
		c.Low = base.Low
	}
	c.Close = base.Close
	c.Volume += base.Volume
}

// Seal marks the candle closed. Sealing twice is a programming error.
func (c *Candle) Seal() {
	if c.Closed {
		panic("market: candle sealed twice")
	}
	c.Closed = true
}

// Validate checks the OHLC shape invariants.
func (c Candle) Validate() error {
	if c.High < c.Open || c.High < c.Close {
		return fmt.Errorf("candle %s: high %v below open/close", c.OpenTime.Format(time.RFC3339), c.High)
	}
	if c.Low > c.Open || c.Low > c.Close {
		return fmt.Errorf("candle %s: low %v above open/close", c.OpenTime.Format(time.RFC3339), c.Low)
	}
	if c.High < c.Low {
		return fmt.Errorf("candle %s: high %v below low %v", c.OpenTime.Format(time.RFC3339), c.High, c.Low)
	}
	return nil
}

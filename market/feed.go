package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Feed consumes the exchange's kline websocket stream for one symbol and
// pushes confirmed base-interval bars into the aggregator. It reconnects
// and resubscribes on read errors until the context is cancelled.
type Feed struct {
	url           string
	agg           *Aggregator
	log           *zap.Logger
	reconnectWait time.Duration
}

// NewFeed wires a websocket feed to agg. The feed subscribes to the kline
// topic for the aggregator's symbol and base interval.
func NewFeed(url string, agg *Aggregator, log *zap.Logger) *Feed {
	return &Feed{
		url:           url,
		agg:           agg,
		log:           log,
		reconnectWait: 3 * time.Second,
	}
}

type wsKline struct {
	Start   int64       `json:"start"` // bar open time, epoch ms
	Open    json.Number `json:"open"`
	High    json.Number `json:"high"`
	Low     json.Number `json:"low"`
	Close   json.Number `json:"close"`
	Volume  json.Number `json:"volume"`
	Confirm bool        `json:"confirm"` // true once the bar is final
}

type wsEnvelope struct {
	Topic string    `json:"topic"`
	Data  []wsKline `json:"data"`
}

func (f *Feed) topic() string {
	return fmt.Sprintf("kline.%s.%s", f.agg.Base(), f.agg.Symbol())
}

// Run blocks consuming the stream until ctx is cancelled. Connection
// failures are logged and retried; Run only returns ctx.Err().
func (f *Feed) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := f.connect(ctx)
		if err != nil {
			f.log.Warn("feed connect failed, retrying",
				zap.String("url", f.url),
				zap.String("symbol", f.agg.Symbol()),
				zap.Error(err))
			if !sleepCtx(ctx, f.reconnectWait) {
				return ctx.Err()
			}
			continue
		}

		err = f.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Warn("feed disconnected, reconnecting",
			zap.String("symbol", f.agg.Symbol()),
			zap.Error(err))
		if !sleepCtx(ctx, f.reconnectWait) {
			return ctx.Err()
		}
	}
}

func (f *Feed) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", f.url, err)
	}

	sub := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{f.topic()},
	}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", f.topic(), err)
	}

	f.log.Info("feed subscribed",
		zap.String("symbol", f.agg.Symbol()),
		zap.String("topic", f.topic()))
	return conn, nil
}

func (f *Feed) consume(ctx context.Context, conn *websocket.Conn) error {
	// ReadMessage has no context support; closing the conn unblocks it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handle(msg)
	}
}

func (f *Feed) handle(msg []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		f.log.Warn("feed message decode failed", zap.Error(err))
		return
	}
	if !strings.HasPrefix(env.Topic, "kline.") {
		return
	}

	for _, k := range env.Data {
		if !k.Confirm {
			continue
		}
		c, err := k.toCandle()
		if err != nil {
			f.log.Warn("feed kline parse failed",
				zap.String("symbol", f.agg.Symbol()),
				zap.Error(err))
			continue
		}
		f.agg.Apply(c)
	}
}

func (k wsKline) toCandle() (Candle, error) {
	c := Candle{
		OpenTime: time.UnixMilli(k.Start).UTC(),
		Closed:   true,
	}
	for _, field := range []struct {
		name string
		src  json.Number
		dst  *float64
	}{
		{"open", k.Open, &c.Open},
		{"high", k.High, &c.High},
		{"low", k.Low, &c.Low},
		{"close", k.Close, &c.Close},
		{"volume", k.Volume, &c.Volume},
	} {
		v, err := field.src.Float64()
		if err != nil {
			return Candle{}, fmt.Errorf("parse %s %q: %w", field.name, field.src, err)
		}
		*field.dst = v
	}
	return c, nil
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

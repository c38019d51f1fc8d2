package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

type CSVJournal struct {
	trades *csv.Writer
	tf     *os.File
}

func NewCSV(tradesPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}

	tw := csv.NewWriter(tf)
	if err := tw.Write([]string{
		"trade_id", "symbol", "direction", "quantity", "entry_price",
		"stop_loss", "take_profit", "outcome", "open_time", "recorded_at", "note",
	}); err != nil {
		return nil, err
	}

	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{trades: tw, tf: tf}, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	if t.RecordedAt.IsZero() {
		t.RecordedAt = time.Now().UTC()
	}
	err := j.trades.Write([]string{
		t.TradeID,
		t.Symbol,
		t.Direction,
		f(t.Quantity),
		f(t.EntryPrice),
		f(t.StopLoss),
		f(t.TakeProfit),
		t.Outcome,
		t.OpenTime.Format(time.RFC3339),
		t.RecordedAt.Format(time.RFC3339),
		t.Note,
	})
	if err != nil {
		return err
	}

	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	return j.tf.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

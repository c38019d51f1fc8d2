package journal

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	if t.RecordedAt.IsZero() {
		t.RecordedAt = time.Now().UTC()
	}
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, symbol, direction, quantity, entry_price, stop_loss, take_profit, outcome, open_time, recorded_at, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Symbol, t.Direction, t.Quantity, t.EntryPrice,
		t.StopLoss, t.TakeProfit, t.Outcome, t.OpenTime, t.RecordedAt, t.Note,
	)
	return err
}

// TradesBySymbol returns the recorded trades for symbol ordered by open
// time ascending.
func (j *SQLiteJournal) TradesBySymbol(symbol string) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, symbol, direction, quantity, entry_price, stop_loss, take_profit, outcome, open_time, recorded_at, note
		FROM trades WHERE symbol = ? ORDER BY open_time ASC`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.TradeID, &t.Symbol, &t.Direction, &t.Quantity, &t.EntryPrice,
			&t.StopLoss, &t.TakeProfit, &t.Outcome, &t.OpenTime, &t.RecordedAt, &t.Note); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

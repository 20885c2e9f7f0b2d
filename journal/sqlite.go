package journal

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/fract/broker"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordOrder(r OrderRecord) error {
	r.stampFromID()
	_, err := j.db.Exec(`
		INSERT INTO orders
		(id, time, op, instrument, units, price, take_profit, stop_loss, trailing_stop, status, error, transaction_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Time.UTC(), r.Op, r.Instrument, r.Units, r.Price,
		r.TakeProfit, r.StopLoss, r.TrailingStop, r.Status, r.Error,
		strings.Join(r.TransactionIDs, ","),
	)
	return err
}

// RecordTransactions inserts ts in one transaction. Ids already stored are
// skipped.
func (j *SQLite) RecordTransactions(ts []broker.Transaction) error {
	if len(ts) == 0 {
		return nil
	}
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO transactions
		(id, time, type, instrument, units, price, pl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range ts {
		if _, err := stmt.Exec(t.ID, t.Time.UTC(), t.Type, t.Instrument, t.Units, t.Price, t.PL, t.Reason); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

func (j *SQLite) RecordSignal(r SignalRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO signals
		(time, instrument, resolution, estimate, lower, upper, action, decision)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Time.UTC(), r.Instrument, r.Resolution, r.Estimate, r.Lower, r.Upper, r.Action, r.Decision,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

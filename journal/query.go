package journal

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// GetOrder returns a single order record by ID.
func (j *SQLite) GetOrder(id string) (OrderRecord, error) {
	var rec OrderRecord
	var txids string

	row := j.db.QueryRow(`
		SELECT id, time, op, instrument, units, price, take_profit, stop_loss, trailing_stop, status, error, transaction_ids
		FROM orders
		WHERE id = ?`, id)

	err := row.Scan(
		&rec.ID,
		&rec.Time,
		&rec.Op,
		&rec.Instrument,
		&rec.Units,
		&rec.Price,
		&rec.TakeProfit,
		&rec.StopLoss,
		&rec.TrailingStop,
		&rec.Status,
		&rec.Error,
		&txids,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return OrderRecord{}, fmt.Errorf("order %q not found", id)
		}
		return OrderRecord{}, err
	}
	if txids != "" {
		rec.TransactionIDs = strings.Split(txids, ",")
	}
	return rec, nil
}

// ListTransactionsBetween returns transactions with time in [start, end).
// An empty instrument matches all.
func (j *SQLite) ListTransactionsBetween(instrument string, start, end time.Time) ([]TransactionRecord, error) {
	rows, err := j.db.Query(`
		SELECT id, time, type, instrument, units, price, pl, reason
		FROM transactions
		WHERE (? = '' OR instrument = ?) AND time >= ? AND time < ?
		ORDER BY time ASC, CAST(id AS INTEGER) ASC`, instrument, instrument, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransactionRecord
	for rows.Next() {
		var rec TransactionRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Time,
			&rec.Type,
			&rec.Instrument,
			&rec.Units,
			&rec.Price,
			&rec.PL,
			&rec.Reason,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RealizedPL sums realized P/L per instrument.
func (j *SQLite) RealizedPL() (map[string]float64, error) {
	rows, err := j.db.Query(`
		SELECT instrument, SUM(pl)
		FROM transactions
		WHERE instrument != ''
		GROUP BY instrument`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var inst string
		var pl float64
		if err := rows.Scan(&inst, &pl); err != nil {
			return nil, err
		}
		out[inst] = pl
	}
	return out, rows.Err()
}

// CountSignals returns the number of signal rows per action.
func (j *SQLite) CountSignals(instrument string) (map[string]int, error) {
	rows, err := j.db.Query(`
		SELECT action, COUNT(*)
		FROM signals
		WHERE instrument = ?
		GROUP BY action`, instrument)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		out[action] = n
	}
	return out, rows.Err()
}

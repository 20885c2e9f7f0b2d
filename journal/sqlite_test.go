package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/pkg/id"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["transactions"])
	assert.True(t, found["orders"])
	assert.True(t, found["signals"])
}

func TestSQLiteOrders(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	rec := OrderRecord{
		ID:             "01HX0000000000000000000000",
		Time:           time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC),
		Op:             "open",
		Instrument:     "EUR_USD",
		Units:          -1500,
		Price:          1.085,
		TakeProfit:     1.07415,
		StopLoss:       1.09585,
		TrailingStop:   0.0054,
		Status:         StatusOK,
		TransactionIDs: []string{"10", "11"},
	}
	require.NoError(t, j.RecordOrder(rec))

	got, err := j.GetOrder(rec.ID)
	require.NoError(t, err)
	assert.True(t, rec.Time.Equal(got.Time))
	got.Time = rec.Time
	assert.Equal(t, rec, got)

	assert.Error(t, j.RecordOrder(rec), "duplicate id")

	_, err = j.GetOrder("missing")
	assert.ErrorContains(t, err, "not found")
}

func TestSQLiteOrders_TimeFromID(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	at := time.Date(2024, 4, 10, 9, 30, 0, 0, time.UTC)
	rec := OrderRecord{ID: id.Order("EUR_USD", at), Op: "close", Instrument: "EUR_USD", Status: StatusFailed}
	require.NoError(t, j.RecordOrder(rec))

	got, err := j.GetOrder(rec.ID)
	require.NoError(t, err)
	assert.True(t, at.Equal(got.Time))
}

func TestSQLiteTransactions(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	base := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	txns := []broker.Transaction{
		{ID: "1", Time: base, Type: "ORDER_FILL", Instrument: "EUR_USD", Units: 100, Price: 1.1, PL: 0},
		{ID: "2", Time: base.Add(time.Hour), Type: "ORDER_FILL", Instrument: "EUR_USD", Units: -100, Price: 1.2, PL: 10},
		{ID: "3", Time: base.Add(2 * time.Hour), Type: "ORDER_FILL", Instrument: "USD_JPY", Units: 5, Price: 150, PL: -4},
		{ID: "4", Time: base.Add(3 * time.Hour), Type: "DAILY_FINANCING"},
	}
	require.NoError(t, j.RecordTransactions(txns))
	require.NoError(t, j.RecordTransactions(txns[1:2]), "duplicates are ignored")
	require.NoError(t, j.RecordTransactions(nil))

	all, err := j.ListTransactionsBetween("", base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "1", all[0].ID)

	eur, err := j.ListTransactionsBetween("EUR_USD", base.Add(time.Minute), base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, eur, 1)
	assert.Equal(t, 10.0, eur[0].PL)

	pl, err := j.RealizedPL()
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"EUR_USD": 10, "USD_JPY": -4}, pl)
}

func TestSQLiteSignals(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	for _, a := range []string{"long", "long", "none"} {
		require.NoError(t, j.RecordSignal(SignalRecord{Time: now, Instrument: "EUR_USD", Resolution: "M1", Action: a, Decision: "-"}))
	}
	require.NoError(t, j.RecordSignal(SignalRecord{Time: now, Instrument: "USD_JPY", Resolution: "TICK", Action: "short"}))

	got, err := j.CountSignals("EUR_USD")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"long": 2, "none": 1}, got)
}

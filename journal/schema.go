package journal

const Schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	type TEXT NOT NULL,
	instrument TEXT NOT NULL,
	units REAL NOT NULL,
	price REAL NOT NULL,
	pl REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	op TEXT NOT NULL,
	instrument TEXT NOT NULL,
	units REAL NOT NULL,
	price REAL NOT NULL,
	take_profit REAL NOT NULL,
	stop_loss REAL NOT NULL,
	trailing_stop REAL NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL,
	transaction_ids TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS signals (
	time DATETIME NOT NULL,
	instrument TEXT NOT NULL,
	resolution TEXT NOT NULL,
	estimate REAL NOT NULL,
	lower REAL NOT NULL,
	upper REAL NOT NULL,
	action TEXT NOT NULL,
	decision TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_instrument ON transactions(instrument, time);
CREATE INDEX IF NOT EXISTS idx_orders_time ON orders(time);
CREATE INDEX IF NOT EXISTS idx_signals_instrument ON signals(instrument, time);
`

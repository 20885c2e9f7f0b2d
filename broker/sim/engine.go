// Package sim is an in-memory broker. It keeps a netted position per
// instrument, realizes P/L on close, and records every request. Market data
// comes from rates set by the caller or, when a feed is attached, from
// another broker.Client.
package sim

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/market"
)

type position struct {
	units float64
	entry float64
}

// Engine implements broker.Client.
type Engine struct {
	mu          sync.Mutex
	acct        broker.Account
	instruments map[string]market.Instrument
	rates       market.Rates
	candles     map[string]map[market.Resolution][]market.Rate
	positions   map[string]*position
	txns        []broker.Transaction
	nextID      int
	feed        broker.Client
	failures    map[string]error
	marginAvail float64
	now         func() time.Time

	Orders []broker.OrderRequest
	Closes []string
}

var _ broker.Client = (*Engine)(nil)

// NewEngine creates a paper account with the static instrument catalog.
func NewEngine(accountID, currency string, balance float64) *Engine {
	e := &Engine{
		acct: broker.Account{
			ID:       accountID,
			Currency: currency,
			Balance:  balance,
		},
		instruments: make(map[string]market.Instrument),
		rates:       make(market.Rates),
		candles:     make(map[string]map[market.Resolution][]market.Rate),
		positions:   make(map[string]*position),
		failures:    make(map[string]error),
		marginAvail: -1,
		now:         time.Now,
	}
	for k, v := range market.Instruments {
		e.instruments[k] = v
	}
	return e
}

// WithFeed routes instrument, pricing and candle calls to feed.
func (e *Engine) WithFeed(feed broker.Client) *Engine {
	e.feed = feed
	return e
}

// SetClock replaces the clock used to stamp transactions.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// SetInstrument adds or replaces instrument metadata.
func (e *Engine) SetInstrument(in market.Instrument) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.instruments[in.Name] = in
}

func (e *Engine) SetRate(r market.Rate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rates[r.Instrument] = r
}

// SetCandles sets the series returned by GetCandles for (instrument, res).
func (e *Engine) SetCandles(instrument string, res market.Resolution, rs []market.Rate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.candles[instrument] == nil {
		e.candles[instrument] = make(map[market.Resolution][]market.Rate)
	}
	e.candles[instrument][res] = rs
}

// SetPosition opens a position directly, bypassing margin accounting.
func (e *Engine) SetPosition(instrument string, units, entry float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions[instrument] = &position{units: units, entry: entry}
}

// SetMarginAvailable overrides the computed available margin. Negative
// values restore the computed figure.
func (e *Engine) SetMarginAvailable(m float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.marginAvail = m
}

// Fail makes op return err until cleared with a nil err. Ops are the
// broker.Client method names, e.g. "CreateOrder".
func (e *Engine) Fail(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, op)
		return
	}
	e.failures[op] = err
}

// AddTransaction appends a transaction, e.g. a realized P/L from a stop.
func (e *Engine) AddTransaction(t broker.Transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.appendTxnLocked(t)
}

func (e *Engine) failure(op string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures[op]
}

func (e *Engine) GetAccount(ctx context.Context, accountID string) (broker.Account, error) {
	if err := e.failure("GetAccount"); err != nil {
		return broker.Account{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	acct := e.acct
	acct.Positions = nil
	names := make([]string, 0, len(e.positions))
	for name := range e.positions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := e.positions[name]
		side := broker.Long
		if p.units < 0 {
			side = broker.Short
		}
		acct.Positions = append(acct.Positions, broker.Position{Instrument: name, Side: side, Units: p.units})
		acct.MarginUsed += e.marginLocked(name, p.units)
	}
	acct.NAV = acct.Balance
	acct.MarginAvailable = math.Max(acct.NAV-acct.MarginUsed, 0)
	if e.marginAvail >= 0 {
		acct.MarginAvailable = e.marginAvail
	}
	acct.LastTransactionID = e.lastIDLocked()
	return acct, nil
}

func (e *Engine) GetInstruments(ctx context.Context, accountID string) ([]market.Instrument, error) {
	if err := e.failure("GetInstruments"); err != nil {
		return nil, err
	}
	if e.feed != nil {
		return e.feed.GetInstruments(ctx, accountID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]market.Instrument, 0, len(e.instruments))
	for _, in := range e.instruments {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (e *Engine) GetPricing(ctx context.Context, accountID string, instruments []string) ([]market.Rate, error) {
	if err := e.failure("GetPricing"); err != nil {
		return nil, err
	}
	if e.feed != nil {
		rs, err := e.feed.GetPricing(ctx, accountID, instruments)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		for _, r := range rs {
			e.rates[r.Instrument] = r
		}
		e.mu.Unlock()
		return rs, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]market.Rate, 0, len(instruments))
	for _, name := range instruments {
		if r, ok := e.rates[name]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (e *Engine) GetTransactionsSince(ctx context.Context, accountID, lastID string) ([]broker.Transaction, string, error) {
	if err := e.failure("GetTransactionsSince"); err != nil {
		return nil, lastID, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if lastID == "" {
		return nil, e.lastIDLocked(), nil
	}
	from, err := strconv.Atoi(lastID)
	if err != nil {
		return nil, lastID, &broker.Error{Kind: broker.InvalidRequest, Op: "get transactions", Msg: "bad id " + lastID}
	}
	var out []broker.Transaction
	for _, t := range e.txns {
		id, _ := strconv.Atoi(t.ID)
		if id > from {
			out = append(out, t)
		}
	}
	return out, e.lastIDLocked(), nil
}

func (e *Engine) GetCandles(ctx context.Context, instrument string, res market.Resolution, count int) ([]market.Rate, error) {
	if err := e.failure("GetCandles"); err != nil {
		return nil, err
	}
	if e.feed != nil {
		return e.feed.GetCandles(ctx, instrument, res, count)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rs := e.candles[instrument][res]
	if len(rs) > count {
		rs = rs[len(rs)-count:]
	}
	out := make([]market.Rate, len(rs))
	copy(out, rs)
	return out, nil
}

func (e *Engine) ClosePosition(ctx context.Context, accountID, instrument string, side broker.Side) (broker.OrderResponse, error) {
	if err := e.failure("ClosePosition"); err != nil {
		return broker.OrderResponse{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Closes = append(e.Closes, instrument)
	p, ok := e.positions[instrument]
	if !ok || (side == broker.Long) != (p.units > 0) {
		return broker.OrderResponse{}, &broker.Error{
			Kind: broker.InvalidRequest, Op: "close position",
			Msg: fmt.Sprintf("no %s position for %s", side, instrument),
		}
	}
	r, ok := e.rates[instrument]
	if !ok {
		return broker.OrderResponse{}, &broker.Error{Kind: broker.InvalidRequest, Op: "close position", Msg: "no price for " + instrument}
	}

	exit := r.Bid
	if p.units < 0 {
		exit = r.Ask
	}
	pl := RealizedPL(p.units, p.entry, exit, e.quoteToAccountLocked(instrument))
	e.acct.Balance += pl
	delete(e.positions, instrument)

	t := e.appendTxnLocked(broker.Transaction{
		Type:       "ORDER_FILL",
		Instrument: instrument,
		Units:      -p.units,
		Price:      exit,
		PL:         pl,
		Reason:     "MARKET_ORDER_POSITION_CLOSEOUT",
	})
	return broker.OrderResponse{
		TransactionIDs:    []string{t.ID},
		LastTransactionID: t.ID,
		Units:             -p.units,
		Price:             exit,
	}, nil
}

func (e *Engine) CreateOrder(ctx context.Context, accountID string, req broker.OrderRequest) (broker.OrderResponse, error) {
	if err := e.failure("CreateOrder"); err != nil {
		return broker.OrderResponse{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Orders = append(e.Orders, req)
	r, ok := e.rates[req.Instrument]
	if !ok || req.Units == 0 {
		return broker.OrderResponse{}, &broker.Error{Kind: broker.InvalidRequest, Op: "create order", Msg: "no price or zero units"}
	}

	fill := r.Ask
	if req.Units < 0 {
		fill = r.Bid
	}

	p, ok := e.positions[req.Instrument]
	switch {
	case !ok:
		e.positions[req.Instrument] = &position{units: req.Units, entry: fill}
	case (p.units > 0) == (req.Units > 0):
		total := p.units + req.Units
		p.entry = (p.entry*p.units + fill*req.Units) / total
		p.units = total
	default:
		return broker.OrderResponse{}, &broker.Error{
			Kind: broker.InvalidRequest, Op: "create order",
			Msg: "order opposes open position; close it first",
		}
	}

	t := e.appendTxnLocked(broker.Transaction{
		Type:       "ORDER_FILL",
		Instrument: req.Instrument,
		Units:      req.Units,
		Price:      fill,
		Reason:     "MARKET_ORDER",
	})
	return broker.OrderResponse{
		TransactionIDs:    []string{t.ID},
		LastTransactionID: t.ID,
		Units:             req.Units,
		Price:             fill,
	}, nil
}

func (e *Engine) appendTxnLocked(t broker.Transaction) broker.Transaction {
	e.nextID++
	t.ID = strconv.Itoa(e.nextID)
	if t.Time.IsZero() {
		t.Time = e.now().UTC()
	}
	e.txns = append(e.txns, t)
	return t
}

func (e *Engine) lastIDLocked() string {
	return strconv.Itoa(e.nextID)
}

func (e *Engine) marginLocked(instrument string, units float64) float64 {
	r, ok := e.rates[instrument]
	if !ok {
		return 0
	}
	return TradeMargin(units, r.Mid(), e.instruments[instrument].MarginRate, e.quoteToAccountLocked(instrument))
}

// quoteToAccountLocked converts one unit of the instrument's quote currency
// into the account currency using current mids. Unknown paths convert at 1.
func (e *Engine) quoteToAccountLocked(instrument string) float64 {
	base, quote, err := market.SplitInstrument(instrument)
	if err != nil {
		return 1
	}
	ccy := e.acct.Currency
	switch ccy {
	case quote:
		return 1
	case base:
		if r, ok := e.rates[instrument]; ok && r.Mid() > 0 {
			return 1 / r.Mid()
		}
		return 1
	}
	if r, ok := e.rates[quote+"_"+ccy]; ok && r.Mid() > 0 {
		return r.Mid()
	}
	if r, ok := e.rates[ccy+"_"+quote]; ok && r.Mid() > 0 {
		return 1 / r.Mid()
	}
	return 1
}

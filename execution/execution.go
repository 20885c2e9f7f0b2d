// Package execution turns decisions into broker requests.
package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/config"
	"github.com/rustyeddy/fract/journal"
	"github.com/rustyeddy/fract/market"
	"github.com/rustyeddy/fract/pkg/id"
)

// OrderLog receives one record per order attempt.
type OrderLog interface {
	RecordOrder(journal.OrderRecord) error
}

// ExecutionError wraps a failed close or open.
type ExecutionError struct {
	Op         string
	Instrument string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Instrument, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Result is the outcome of one request.
type Result struct {
	Request  broker.OrderRequest
	Response broker.OrderResponse
	DryRun   bool
}

// OpenRequest is a new position to open at market.
type OpenRequest struct {
	Instrument market.Instrument
	Units      float64
	Rate       market.Rate
}

type Options struct {
	AccountID string
	Limits    config.LimitPriceRatio
	Timeout   time.Duration
	DryRun    bool
	Log       OrderLog
	Logger    zerolog.Logger
	Now       func() time.Time
}

type Executor struct {
	client broker.Client
	opts   Options
}

func New(client broker.Client, opts Options) *Executor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Executor{client: client, opts: opts}
}

func (e *Executor) DryRun() bool { return e.opts.DryRun }

// orderContext detaches from ctx cancellation so shutdown never interrupts
// an order in flight.
func (e *Executor) orderContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.opts.Timeout)
}

// Close closes every unit of pos.
func (e *Executor) Close(ctx context.Context, pos broker.Position) (Result, error) {
	req := broker.OrderRequest{Instrument: pos.Instrument, Units: -pos.Units}
	now := e.opts.Now()
	rec := journal.OrderRecord{
		ID:         id.At(now),
		Time:       now.UTC(),
		Op:         "close",
		Instrument: pos.Instrument,
		Units:      -pos.Units,
	}
	log := e.opts.Logger.With().Str("instrument", pos.Instrument).Str("side", string(pos.Side)).Logger()

	if e.opts.DryRun {
		rec.Status = journal.StatusDryRun
		e.record(rec)
		log.Info().Float64("units", pos.Units).Msg("dry-run close")
		return Result{Request: req, DryRun: true}, nil
	}

	octx, cancel := e.orderContext(ctx)
	defer cancel()
	resp, err := e.client.ClosePosition(octx, e.opts.AccountID, pos.Instrument, pos.Side)
	rec.SetResponse(resp.Raw)
	if err != nil {
		rec.Status = journal.StatusFailed
		rec.Error = err.Error()
		e.record(rec)
		log.Error().Err(err).Msg("close failed")
		return Result{Request: req, Response: resp}, &ExecutionError{Op: "close", Instrument: pos.Instrument, Err: err}
	}

	rec.Status = journal.StatusOK
	rec.Price = resp.Price
	rec.TransactionIDs = resp.TransactionIDs
	e.record(rec)
	log.Info().Float64("units", resp.Units).Float64("price", resp.Price).Msg("position closed")
	return Result{Request: req, Response: resp}, nil
}

// Open places a market order with take-profit, stop-loss and trailing stop
// attached.
func (e *Executor) Open(ctx context.Context, o OpenRequest) (Result, error) {
	inst := o.Instrument
	if o.Units == 0 {
		return Result{}, &ExecutionError{Op: "open", Instrument: inst.Name, Err: fmt.Errorf("zero units")}
	}
	side := broker.Long
	if o.Units < 0 {
		side = broker.Short
	}
	l := Limits(side, o.Rate, inst, e.opts.Limits)
	now := e.opts.Now()

	req := broker.OrderRequest{
		Instrument:       inst.Name,
		Units:            o.Units,
		TakeProfit:       l.TakeProfit,
		StopLoss:         l.StopLoss,
		TrailingStop:     l.TrailingStop,
		ClientID:         id.Order(inst.Name, now),
		DisplayPrecision: inst.DisplayPrecision,
	}
	rec := journal.OrderRecord{
		ID:           req.ClientID,
		Time:         now.UTC(),
		Op:           "open",
		Instrument:   inst.Name,
		Units:        o.Units,
		Price:        l.Entry,
		TakeProfit:   l.TakeProfit,
		StopLoss:     l.StopLoss,
		TrailingStop: l.TrailingStop,
	}
	log := e.opts.Logger.With().Str("instrument", inst.Name).Float64("units", o.Units).Logger()

	if e.opts.DryRun {
		rec.Status = journal.StatusDryRun
		e.record(rec)
		log.Info().Float64("tp", l.TakeProfit).Float64("sl", l.StopLoss).Float64("ts", l.TrailingStop).Msg("dry-run open")
		return Result{Request: req, DryRun: true}, nil
	}

	octx, cancel := e.orderContext(ctx)
	defer cancel()
	resp, err := e.client.CreateOrder(octx, e.opts.AccountID, req)
	rec.SetResponse(resp.Raw)
	if err != nil {
		rec.Status = journal.StatusFailed
		rec.Error = err.Error()
		e.record(rec)
		log.Error().Err(err).Msg("open failed")
		return Result{Request: req, Response: resp}, &ExecutionError{Op: "open", Instrument: inst.Name, Err: err}
	}

	rec.Status = journal.StatusOK
	if resp.Price != 0 {
		rec.Price = resp.Price
	}
	rec.TransactionIDs = resp.TransactionIDs
	e.record(rec)
	log.Info().Float64("price", resp.Price).Msg("position opened")
	return Result{Request: req, Response: resp}, nil
}

func (e *Executor) record(r journal.OrderRecord) {
	if e.opts.Log == nil {
		return
	}
	if err := e.opts.Log.RecordOrder(r); err != nil {
		e.opts.Logger.Warn().Err(err).Str("instrument", r.Instrument).Msg("order log write failed")
	}
}

// LimitPrices are the exit levels attached to a new order. Zero means the
// corresponding ratio is disabled.
type LimitPrices struct {
	Entry        float64
	TakeProfit   float64
	StopLoss     float64
	TrailingStop float64
}

// Limits derives exit levels from the side's entry price: ask for long, bid
// for short. The trailing distance is a whole number of pips clamped to the
// instrument's allowed range.
func Limits(side broker.Side, r market.Rate, inst market.Instrument, ratio config.LimitPriceRatio) LimitPrices {
	entry := r.Ask
	if side == broker.Short {
		entry = r.Bid
	}
	sign := side.Sign()

	l := LimitPrices{Entry: entry}
	if ratio.TakeProfit > 0 {
		l.TakeProfit = entry * (1 + sign*ratio.TakeProfit)
	}
	if ratio.StopLoss > 0 {
		l.StopLoss = entry * (1 - sign*ratio.StopLoss)
	}
	if ratio.TrailingStop > 0 {
		pip := inst.PipSize()
		d := entry * ratio.TrailingStop
		if pip > 0 {
			d = math.Floor(d/pip+1e-9) * pip
		}
		if inst.MinTrailingStop > 0 {
			d = math.Max(d, inst.MinTrailingStop)
		}
		if inst.MaxTrailingStop > 0 {
			d = math.Min(d, inst.MaxTrailingStop)
		}
		l.TrailingStop = d
	}
	return l
}

// Package trader runs the control loop: refresh the account, sweep expired
// positions, then detect, decide and execute for each instrument in turn.
package trader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/config"
	"github.com/rustyeddy/fract/decision"
	"github.com/rustyeddy/fract/execution"
	"github.com/rustyeddy/fract/internal/logging"
	"github.com/rustyeddy/fract/journal"
	"github.com/rustyeddy/fract/market"
	"github.com/rustyeddy/fract/metrics"
	"github.com/rustyeddy/fract/model"
	"github.com/rustyeddy/fract/risk"
)

type Options struct {
	DryRun  bool
	Quiet   bool
	Out     io.Writer
	Logger  zerolog.Logger
	Journal journal.Journal
	Metrics *metrics.Metrics
	Now     func() time.Time
	Sleep   func(context.Context, time.Duration) error
}

type Trader struct {
	client   broker.Client
	cfg      *config.Config
	opts     Options
	log      zerolog.Logger
	detector model.Detector
	sizer    *risk.Sizer
	exec     *execution.Executor

	resolutions []market.Resolution
	cache       *market.PriceCache
	opened      ledger
	pricing     []string

	snap   *Snapshot
	txns   []broker.Transaction
	lastID string
}

func New(client broker.Client, cfg *config.Config, opts Options) (*Trader, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}

	det, err := model.New(cfg.Feature, cfg.Model)
	if err != nil {
		return nil, err
	}
	sizer, err := risk.NewSizer(cfg.Position)
	if err != nil {
		return nil, err
	}
	res, err := cfg.Resolutions()
	if err != nil {
		return nil, err
	}

	log := logging.Component(opts.Logger, "trader")
	var olog execution.OrderLog
	if opts.Journal != nil {
		olog = opts.Journal
	}
	ex := execution.New(client, execution.Options{
		AccountID: cfg.OANDA.AccountID,
		Limits:    cfg.Position.LimitPriceRatio,
		Timeout:   cfg.Loop.Timeout.Duration,
		DryRun:    opts.DryRun,
		Log:       olog,
		Logger:    logging.Component(opts.Logger, "execution"),
		Now:       opts.Now,
	})

	return &Trader{
		client:      client,
		cfg:         cfg,
		opts:        opts,
		log:         log,
		detector:    det,
		sizer:       sizer,
		exec:        ex,
		resolutions: res,
		cache:       market.NewPriceCache(cfg.Feature.CacheLength),
		opened:      make(ledger),
		pricing:     append([]string(nil), cfg.Instruments...),
	}, nil
}

// Snapshot returns the view built by the last refresh.
func (t *Trader) Snapshot() *Snapshot { return t.snap }

func (t *Trader) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.cfg.Loop.Timeout.Duration)
}

// Prepare runs one refresh and checks every configured instrument is listed
// for the account and convertible to the account currency.
func (t *Trader) Prepare(ctx context.Context) error {
	if err := t.refresh(ctx); err != nil {
		return err
	}
	acct := t.snap.Account.Currency
	for _, name := range t.cfg.Instruments {
		if _, ok := t.snap.Instruments[name]; !ok {
			return &config.ConfigurationError{Field: "instruments", Msg: fmt.Sprintf("%s is not available for account %s", name, t.snap.Account.ID)}
		}
		if !market.HasConversionPath(name, acct, t.snap.Instruments) {
			return &config.ConfigurationError{Field: "instruments", Msg: (&market.NoConversionPathError{Instrument: name, AccountCurrency: acct}).Error()}
		}
	}
	t.pricing = pricingSet(t.cfg.Instruments, acct, t.snap.Instruments)
	return t.refreshPricing(ctx)
}

// pricingSet adds the conversion pairs crosses need for unit cost.
func pricingSet(instruments []string, acct string, tradable map[string]market.Instrument) []string {
	out := append([]string(nil), instruments...)
	seen := make(map[string]bool, len(out))
	for _, n := range out {
		seen[n] = true
	}
	for _, n := range instruments {
		base, quote, err := market.SplitInstrument(n)
		if err != nil || base == acct || quote == acct {
			continue
		}
		for _, x := range []string{quote + "_" + acct, acct + "_" + quote} {
			if _, ok := tradable[x]; ok {
				if !seen[x] {
					out = append(out, x)
					seen[x] = true
				}
				break
			}
		}
	}
	return out
}

// refresh rebuilds the snapshot: account, transactions, instruments and
// pricing, each request spaced from the cycle start.
func (t *Trader) refresh(ctx context.Context) error {
	p := &pacer{start: t.opts.Now(), spacing: t.cfg.Loop.RequestSpacing.Duration, now: t.opts.Now, sleep: t.opts.Sleep}
	snap := &Snapshot{Time: p.start}

	if err := p.wait(ctx); err != nil {
		return err
	}
	cctx, cancel := t.callCtx(ctx)
	acct, err := t.client.GetAccount(cctx, t.cfg.OANDA.AccountID)
	cancel()
	if err != nil {
		if isTransient(err) {
			return classify("get account", err)
		}
		return &HealthCheckError{Op: "get account", Err: err}
	}
	snap.Account = acct

	if err := p.wait(ctx); err != nil {
		return err
	}
	if err := t.refreshTransactions(ctx); err != nil {
		return err
	}

	if err := p.wait(ctx); err != nil {
		return err
	}
	cctx, cancel = t.callCtx(ctx)
	insts, err := t.client.GetInstruments(cctx, t.cfg.OANDA.AccountID)
	cancel()
	if err != nil {
		if isTransient(err) {
			return classify("get instruments", err)
		}
		return &HealthCheckError{Op: "get instruments", Err: err}
	}
	snap.Instruments = make(map[string]market.Instrument, len(insts))
	for _, in := range insts {
		snap.Instruments[in.Name] = in
	}
	t.snap = snap

	if err := p.wait(ctx); err != nil {
		return err
	}
	return t.refreshPricing(ctx)
}

func (t *Trader) refreshPricing(ctx context.Context) error {
	cctx, cancel := t.callCtx(ctx)
	rates, err := t.client.GetPricing(cctx, t.cfg.OANDA.AccountID, t.pricing)
	cancel()
	if err != nil {
		if isTransient(err) {
			return classify("get pricing", err)
		}
		return &HealthCheckError{Op: "get pricing", Err: err}
	}
	t.snap.Rates = make(market.Rates, len(rates))
	for _, r := range rates {
		t.snap.Rates[r.Instrument] = r
	}
	return nil
}

// refreshTransactions appends new transactions to the running list. The
// first call only learns the latest id.
func (t *Trader) refreshTransactions(ctx context.Context) error {
	cctx, cancel := t.callCtx(ctx)
	txns, last, err := t.client.GetTransactionsSince(cctx, t.cfg.OANDA.AccountID, t.lastID)
	cancel()
	if err != nil {
		if isTransient(err) {
			return classify("get transactions", err)
		}
		return &HealthCheckError{Op: "get transactions", Err: err}
	}
	if last != "" {
		t.lastID = last
	}
	if len(txns) > 0 {
		t.txns = append(t.txns, txns...)
		if t.opts.Journal != nil {
			if err := t.opts.Journal.RecordTransactions(txns); err != nil {
				t.log.Warn().Err(err).Msg("transaction log write failed")
			}
		}
	}
	if t.snap != nil {
		t.snap.Transactions = t.txns
	}
	return nil
}

// RunOnce runs a single cycle.
func (t *Trader) RunOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := t.opts.Now()
	err := t.cycle(ctx)
	if m := t.opts.Metrics; m != nil {
		m.CycleSeconds.Observe(t.opts.Now().Sub(start).Seconds())
		var te *TransientBrokerError
		switch {
		case err == nil:
			m.Cycles.WithLabelValues("ok").Inc()
		case errors.As(err, &te):
			m.Cycles.WithLabelValues("skipped").Inc()
		default:
			m.Cycles.WithLabelValues("failed").Inc()
		}
	}
	return err
}

func (t *Trader) cycle(ctx context.Context) error {
	if err := t.refresh(ctx); err != nil {
		return err
	}
	t.snap.Transactions = t.txns
	now := t.snap.Time
	t.opened.update(t.snap.Account.Positions, now)
	t.observeAccount()

	if err := t.sweepExpired(ctx, now); err != nil {
		return err
	}

	for _, name := range t.cfg.Instruments {
		err := t.trade(ctx, name)
		if err != nil {
			if isTransient(err) {
				t.log.Warn().Err(err).Str("instrument", name).Msg("transient error, skipping rest of cycle")
				return classify(name, err)
			}
			t.log.Error().Err(err).Str("instrument", name).Msg("instrument failed")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// sweepExpired force-closes positions held longer than the TTL.
func (t *Trader) sweepExpired(ctx context.Context, now time.Time) error {
	ttl := time.Duration(t.cfg.Position.TTLSec) * time.Second
	for _, inst := range t.opened.expired(now, ttl) {
		pos, ok := t.snap.Position(inst)
		if !ok {
			continue
		}
		t.log.Info().Str("instrument", inst).Dur("held", now.Sub(t.opened[inst].at)).Msg("position expired")
		if err := t.closePosition(ctx, pos); err != nil {
			if isTransient(err) {
				return classify("expire "+inst, err)
			}
			t.log.Error().Err(err).Str("instrument", inst).Msg("expiry close failed")
		}
	}
	return nil
}

// closePosition closes pos, re-reads the transaction tail and marks the
// instrument flat in the snapshot.
func (t *Trader) closePosition(ctx context.Context, pos broker.Position) error {
	_, err := t.exec.Close(ctx, pos)
	t.countOrder("close", err)
	if err != nil {
		return err
	}
	if t.exec.DryRun() {
		t.snap.MarkFlat(pos.Instrument)
		return nil
	}
	if err := t.refreshTransactions(ctx); err != nil {
		t.snap.MarkFlat(pos.Instrument)
		return err
	}
	t.snap.MarkFlat(pos.Instrument)
	delete(t.opened, pos.Instrument)
	return nil
}

func (t *Trader) trade(ctx context.Context, name string) error {
	log := t.log.With().Str("instrument", name).Logger()
	if err := t.updateCache(ctx, name); err != nil {
		return err
	}

	rate, ok := t.snap.Rates[name]
	if !ok {
		return fmt.Errorf("no price for %s", name)
	}
	pos, held := t.snap.Position(name)
	var posPtr *broker.Position
	if held {
		posPtr = &pos
	}

	sig, err := t.detector.Detect(t.cache.History(name), posPtr)
	if err != nil {
		var ih *model.InsufficientHistoryError
		if !errors.As(err, &ih) {
			return fmt.Errorf("detect: %w", err)
		}
		log.Debug().Err(err).Msg("holding")
		sig = model.Signal{Action: model.None, Log: sig.Log}
	}

	state := t.snap.State(name)
	health, violations := risk.Evaluate(risk.HealthInput{
		Account:   t.snap.Account,
		Rate:      rate,
		Tradeable: t.snap.Tradeable(name),
		Flat:      state == decision.Flat,
		Preserve:  t.cfg.Position.MarginNAVRatio.Preserve,
		MaxSpread: t.cfg.Position.LimitPriceRatio.MaxSpread,
	})
	if !health.OK() {
		for _, v := range violations {
			log.Debug().Str("code", v.Code).Msg(v.Msg)
		}
	}

	d := decision.Decide(state, sig.Action, health, t.holdPct(name, pos, held))
	t.printState(name, rate, sig, d)
	t.recordSignal(name, sig, d)

	switch d.Action {
	case decision.Close:
		return t.closePosition(ctx, pos)
	case decision.OpenLong, decision.OpenShort:
		if d.CloseFirst && held {
			if err := t.closePosition(ctx, pos); err != nil {
				return err
			}
		}
		side := broker.Long
		if d.Action == decision.OpenShort {
			side = broker.Short
		}
		return t.open(ctx, name, side, rate)
	}
	return nil
}

func (t *Trader) open(ctx context.Context, name string, side broker.Side, rate market.Rate) error {
	in := risk.SizeInput{
		Instrument:   t.snap.Instruments[name],
		Side:         side,
		Account:      t.snap.Account,
		Rates:        t.snap.Rates,
		Tradable:     t.snap.Instruments,
		Transactions: t.txns,
	}
	units, err := t.sizer.Size(in)
	if err != nil {
		return fmt.Errorf("size: %w", err)
	}
	if units == 0 {
		t.log.Info().Str("instrument", name).Msg("size is zero, not opening")
		return nil
	}

	_, err = t.exec.Open(ctx, execution.OpenRequest{Instrument: in.Instrument, Units: units, Rate: rate})
	t.countOrder("open", err)
	if err != nil {
		return err
	}
	if cost, err := risk.UnitCost(in); err == nil {
		t.snap.DebitMargin(math.Abs(units) * cost)
	}
	return nil
}

// updateCache feeds the TICK window from the snapshot and candle windows
// from the broker.
func (t *Trader) updateCache(ctx context.Context, name string) error {
	for _, res := range t.resolutions {
		w := t.cache.Window(name, res)
		if res == market.TICK {
			if r, ok := t.snap.Rates[name]; ok {
				w.Push(r)
			}
			continue
		}
		cctx, cancel := t.callCtx(ctx)
		rates, err := t.client.GetCandles(cctx, name, res, t.cfg.Feature.CacheLength)
		cancel()
		if err != nil {
			if isTransient(err) {
				return classify("get candles", err)
			}
			t.log.Warn().Err(err).Str("instrument", name).Str("resolution", string(res)).Msg("candles unavailable")
			continue
		}
		w.PushAll(rates)
	}
	return nil
}

// holdPct is the margin held by the position as a fraction of balance.
func (t *Trader) holdPct(name string, pos broker.Position, held bool) float64 {
	bal := t.snap.Account.Balance
	if !held || bal <= 0 {
		return 0
	}
	cost, err := risk.UnitCost(risk.SizeInput{
		Instrument: t.snap.Instruments[name],
		Account:    t.snap.Account,
		Rates:      t.snap.Rates,
		Tradable:   t.snap.Instruments,
	})
	if err != nil {
		return 0
	}
	return math.Abs(pos.Units) * cost / bal
}

// RunForever repeats cycles spaced by the loop interval. It returns nil on
// cancellation and an error for configuration or health check failures.
func (t *Trader) RunForever(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		start := t.opts.Now()
		err := t.RunOnce(ctx)

		var te *TransientBrokerError
		var he *HealthCheckError
		var ce *config.ConfigurationError
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.As(err, &ce):
			return err
		case errors.As(err, &te):
			t.log.Warn().Err(err).Msg("cycle skipped")
		case errors.As(err, &he):
			if !t.cfg.Loop.IgnoreAPIError {
				return err
			}
			t.log.Warn().Err(err).Msg("health check failed, ignoring")
		default:
			t.log.Error().Err(err).Msg("cycle failed")
		}

		wait := t.cfg.Loop.Interval.Duration - t.opts.Now().Sub(start)
		if wait > 0 {
			if err := t.opts.Sleep(ctx, wait); err != nil {
				return nil
			}
		}
	}
}

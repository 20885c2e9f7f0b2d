package trader

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/broker/sim"
	"github.com/rustyeddy/fract/config"
	"github.com/rustyeddy/fract/decision"
	"github.com/rustyeddy/fract/journal"
	"github.com/rustyeddy/fract/market"
	"github.com/rustyeddy/fract/metrics"
	"github.com/rustyeddy/fract/risk"
)

var t0 = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.OANDA.AccountID = "paper"
	cfg.Instruments = []string{"EUR_USD"}
	cfg.Feature.Granularities = []string{"M1"}
	cfg.Feature.CacheLength = 10
	cfg.Model.EWMA.Alpha = 0.1
	cfg.Position.LimitPriceRatio.MaxSpread = 0.01
	cfg.Position.TTLSec = 3600
	cfg.Loop.RequestSpacing = config.Duration{}
	cfg.Loop.Timeout = config.Duration{Duration: time.Second}
	return cfg
}

func candles(instrument string, n int, next func(i int) float64) []market.Rate {
	out := make([]market.Rate, n)
	for i := range out {
		m := next(i)
		out[i] = market.Rate{Instrument: instrument, Time: t0.Add(time.Duration(i-n) * time.Minute), Bid: m - 0.00005, Ask: m + 0.00005}
	}
	return out
}

func uptrend(i int) float64 { return 1.1 * math.Pow(1.0005, float64(i)) }

func sideways(i int) float64 {
	if i%2 == 0 {
		return 1.1
	}
	return 1.1005
}

type harness struct {
	eng   *sim.Engine
	clk   *clock
	out   *bytes.Buffer
	trd   *Trader
	cfg   *config.Config
	sleep []time.Duration
}

func newHarness(t *testing.T, cfg *config.Config, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		eng: sim.NewEngine("paper", "USD", 10000),
		clk: &clock{now: t0},
		out: &bytes.Buffer{},
		cfg: cfg,
	}
	h.eng.SetClock(h.clk.Now)
	h.eng.SetRate(market.Rate{Instrument: "EUR_USD", Time: t0, Bid: 1.1, Ask: 1.1001})
	h.eng.SetCandles("EUR_USD", market.M1, candles("EUR_USD", 10, uptrend))

	opts := Options{
		Out:    h.out,
		Logger: zerolog.Nop(),
		Now:    h.clk.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.sleep = append(h.sleep, d)
			return ctx.Err()
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	trd, err := New(h.eng, cfg, opts)
	require.NoError(t, err)
	h.trd = trd
	return h
}

func (h *harness) lines() []string {
	s := strings.TrimSpace(h.out.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestRunOnce_OpensOnUptrend(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := newHarness(t, testConfig(), func(o *Options) { o.Metrics = m })
	ctx := context.Background()

	require.NoError(t, h.trd.Prepare(ctx))
	before := h.trd.Snapshot().Account.MarginAvailable
	require.NoError(t, h.trd.RunOnce(ctx))

	require.Len(t, h.eng.Orders, 1)
	order := h.eng.Orders[0]
	assert.Greater(t, order.Units, 0.0)
	assert.Greater(t, order.TakeProfit, 1.1001)
	assert.Less(t, order.StopLoss, 1.1001)
	assert.Less(t, h.trd.Snapshot().Account.MarginAvailable, before)

	lines := h.lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "EUR_USD")
	assert.Contains(t, lines[0], "-> LONG")
	assert.Contains(t, lines[0], "B/A: 1.10000 1.10010")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Orders.WithLabelValues("open", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("EUR_USD", "open_long")))
}

func TestRunOnce_HoldsWithoutFullHistory(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Feature.Granularities = []string{"TICK"}
	h := newHarness(t, cfg, nil)
	require.NoError(t, h.trd.Prepare(context.Background()))
	require.NoError(t, h.trd.RunOnce(context.Background()))

	assert.Empty(t, h.eng.Orders)
	require.Len(t, h.lines(), 1)
	assert.Contains(t, h.lines()[0], "insufficient history")
}

func TestRunOnce_ExpiresOldPosition(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	h.eng.SetCandles("EUR_USD", market.M1, candles("EUR_USD", 10, sideways))
	h.eng.SetPosition("EUR_USD", 1000, 1.09)
	ctx := context.Background()

	require.NoError(t, h.trd.Prepare(ctx))
	require.NoError(t, h.trd.RunOnce(ctx))
	assert.Empty(t, h.eng.Closes)
	assert.Contains(t, h.lines()[0], "% LONG")

	h.clk.now = t0.Add(7200 * time.Second)
	require.NoError(t, h.trd.RunOnce(ctx))
	assert.Equal(t, []string{"EUR_USD"}, h.eng.Closes)
	assert.Empty(t, h.eng.Orders)
	assert.Equal(t, decision.Flat, h.trd.Snapshot().State("EUR_USD"))

	lines := h.lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "|        -         |")
	assert.Contains(t, lines[1], "PL:    10")
}

func TestRunOnce_KeepsYoungPosition(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	h.eng.SetCandles("EUR_USD", market.M1, candles("EUR_USD", 10, sideways))
	h.eng.SetPosition("EUR_USD", 1000, 1.09)
	ctx := context.Background()

	require.NoError(t, h.trd.Prepare(ctx))
	require.NoError(t, h.trd.RunOnce(ctx))
	h.clk.now = t0.Add(1800 * time.Second)
	require.NoError(t, h.trd.RunOnce(ctx))
	assert.Empty(t, h.eng.Closes)
}

func TestRunOnce_ReversalClosesBeforeOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig()

	flat := newHarness(t, cfg, nil)
	require.NoError(t, flat.trd.Prepare(ctx))
	require.NoError(t, flat.trd.RunOnce(ctx))
	require.Len(t, flat.eng.Orders, 1)

	h := newHarness(t, cfg, nil)
	h.eng.SetPosition("EUR_USD", -1000, 1.0)
	require.NoError(t, h.trd.Prepare(ctx))
	require.NoError(t, h.trd.RunOnce(ctx))

	assert.Equal(t, []string{"EUR_USD"}, h.eng.Closes)
	require.Len(t, h.eng.Orders, 1)
	assert.Contains(t, h.lines()[0], "SHORT -> LONG")

	// The losing close is in the re-read tail, so martingale doubles the
	// initial size of a plain open.
	require.Len(t, h.trd.txns, 1)
	assert.Less(t, h.trd.txns[0].PL, 0.0)

	sizer, err := risk.NewSizer(cfg.Position)
	require.NoError(t, err)
	cost := 1.1001 * market.Instruments["EUR_USD"].MarginRate
	base := sizer.Baseline(10000, cost)
	assert.Equal(t, base.Init, flat.eng.Orders[0].Units)
	assert.Equal(t, math.Min(2*base.Init, base.Cap), h.eng.Orders[0].Units)
	assert.Greater(t, h.eng.Orders[0].Units, flat.eng.Orders[0].Units)

	acct, err := h.eng.GetAccount(ctx, "paper")
	require.NoError(t, err)
	require.Len(t, acct.Positions, 1)
	assert.Equal(t, broker.Long, acct.Positions[0].Side)
}

func TestRunOnce_CountsRejectedOrderByKind(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := newHarness(t, testConfig(), func(o *Options) { o.Metrics = m })
	h.eng.Fail("CreateOrder", &broker.Error{Kind: broker.InvalidRequest, Op: "create order", Msg: "rejected"})
	ctx := context.Background()

	require.NoError(t, h.trd.Prepare(ctx))
	require.NoError(t, h.trd.RunOnce(ctx))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Orders.WithLabelValues("open", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerErrors.WithLabelValues("open", "invalid_request")))
}

func TestRunOnce_OverSpreadHolds(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Position.LimitPriceRatio.MaxSpread = 0.001
	h := newHarness(t, cfg, nil)
	h.eng.SetRate(market.Rate{Instrument: "EUR_USD", Time: t0, Bid: 0.999, Ask: 1.001})

	require.NoError(t, h.trd.Prepare(context.Background()))
	require.NoError(t, h.trd.RunOnce(context.Background()))
	assert.Empty(t, h.eng.Orders)
	assert.Contains(t, h.lines()[0], "OVER-SPREAD")
}

func TestRunOnce_TransientSkipsRemainingInstruments(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Instruments = []string{"EUR_USD", "GBP_USD"}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := newHarness(t, cfg, func(o *Options) { o.Metrics = m })
	h.eng.SetRate(market.Rate{Instrument: "GBP_USD", Time: t0, Bid: 1.27, Ask: 1.2701})
	require.NoError(t, h.trd.Prepare(context.Background()))

	h.eng.Fail("GetCandles", &broker.Error{Kind: broker.NetworkError, Op: "get candles", Err: errors.New("connection reset")})
	err := h.trd.RunOnce(context.Background())

	var te *TransientBrokerError
	require.ErrorAs(t, err, &te)
	assert.Empty(t, h.lines())
	assert.Empty(t, h.eng.Orders)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues("skipped")))

	h.eng.Fail("GetCandles", nil)
	require.NoError(t, h.trd.RunOnce(context.Background()))
	assert.Len(t, h.lines(), 2)
}

func TestRunOnce_RequestSpacing(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Loop.RequestSpacing = config.Duration{Duration: 500 * time.Millisecond}
	h := newHarness(t, cfg, nil)

	require.NoError(t, h.trd.RunOnce(context.Background()))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 1500 * time.Millisecond}, h.sleep)
}

func TestRunOnce_DryRunJournals(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files, err := journal.NewFiles(dir)
	require.NoError(t, err)
	h := newHarness(t, testConfig(), func(o *Options) {
		o.DryRun = true
		o.Journal = files
	})

	require.NoError(t, h.trd.Prepare(context.Background()))
	require.NoError(t, h.trd.RunOnce(context.Background()))
	require.NoError(t, files.Close())

	assert.Empty(t, h.eng.Orders)
	b, err := os.ReadFile(filepath.Join(dir, journal.OrderLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"status":"dry-run"`)
}

func TestRunOnce_QuietLogs(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	h := newHarness(t, testConfig(), func(o *Options) {
		o.Quiet = true
		o.Logger = zerolog.New(&logs)
	})
	require.NoError(t, h.trd.Prepare(context.Background()))
	require.NoError(t, h.trd.RunOnce(context.Background()))
	assert.Empty(t, h.lines())
	assert.Contains(t, logs.String(), "-> LONG")
}

func TestPrepare_UnknownInstrument(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Instruments = []string{"EUR_USD", "AUD_CAD"}
	h := newHarness(t, cfg, nil)

	err := h.trd.Prepare(context.Background())
	var ce *config.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Msg, "AUD_CAD")
}

func TestPrepare_AddsConversionPair(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Instruments = []string{"EUR_GBP"}
	h := newHarness(t, cfg, nil)
	h.eng.SetRate(market.Rate{Instrument: "EUR_GBP", Time: t0, Bid: 0.85, Ask: 0.8501})
	h.eng.SetRate(market.Rate{Instrument: "GBP_USD", Time: t0, Bid: 1.27, Ask: 1.2701})

	require.NoError(t, h.trd.Prepare(context.Background()))
	_, ok := h.trd.Snapshot().Rates["GBP_USD"]
	assert.True(t, ok)
}

func TestRunForever(t *testing.T) {
	t.Parallel()

	t.Run("health failure stops", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, testConfig(), nil)
		h.eng.Fail("GetAccount", &broker.Error{Kind: broker.Unauthorized, Op: "get account", Status: 401})

		err := h.trd.RunForever(context.Background())
		var he *HealthCheckError
		require.ErrorAs(t, err, &he)
		assert.ErrorIs(t, err, broker.ErrUnauthorized)
	})

	t.Run("ignored health failure continues until cancelled", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Loop.IgnoreAPIError = true
		cfg.Loop.Interval = config.Duration{Duration: time.Minute}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		calls := 0
		h := newHarness(t, cfg, func(o *Options) {
			o.Sleep = func(ctx context.Context, d time.Duration) error {
				calls++
				if calls == 3 {
					cancel()
				}
				return ctx.Err()
			}
		})
		h.eng.Fail("GetAccount", &broker.Error{Kind: broker.InvalidRequest, Op: "get account", Status: 400})

		assert.NoError(t, h.trd.RunForever(ctx))
		assert.Equal(t, 3, calls)
	})

	t.Run("cancelled before start", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		h := newHarness(t, testConfig(), nil)
		assert.NoError(t, h.trd.RunForever(ctx))
		assert.Empty(t, h.eng.Orders)
	})
}

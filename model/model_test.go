package model

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/config"
	"github.com/rustyeddy/fract/market"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func windowOf(capacity int, mids ...float64) *market.PriceWindow {
	w := market.NewPriceWindow(capacity)
	for i, m := range mids {
		w.Push(market.Rate{Instrument: "EUR_USD", Time: t0.Add(time.Duration(i) * time.Second), Bid: m - 0.00005, Ask: m + 0.00005})
	}
	return w
}

func trend(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start * math.Pow(1+step, float64(i))
	}
	return out
}

func zigzag(n int, lo, hi float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo
		if i%2 == 1 {
			out[i] = hi
		}
	}
	return out
}

func TestEWMStats(t *testing.T) {
	t.Parallel()

	mean, std := EWMStats([]float64{1, 2, 3}, 0.5)
	assert.InDelta(t, 4.25/1.75, mean, 1e-12)
	assert.InDelta(t, math.Sqrt(13.0/14.0), std, 1e-12)

	mean, std = EWMStats([]float64{5}, 0.3)
	assert.Equal(t, 5.0, mean)
	assert.Equal(t, 0.0, std)

	mean, std = EWMStats(nil, 0.3)
	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 0.0, std)

	// alpha 1 weights only the last point
	mean, std = EWMStats([]float64{1, 2, 9}, 1)
	assert.Equal(t, 9.0, mean)
	assert.Equal(t, 0.0, std)
}

func TestScore(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, Score(0, 0))
	assert.True(t, math.IsInf(Score(-1e-5, 0), 1))
	assert.InDelta(t, 2.0, Score(-4, 2), 1e-12)
}

func TestFeatureSeries(t *testing.T) {
	t.Parallel()

	mids := []float64{1.0, 1.1, 0.99}
	assert.InDeltaSlice(t, []float64{math.Log(1.1), math.Log(0.9)}, LogReturn.Series(mids), 1e-12)
	assert.InDeltaSlice(t, []float64{0.1, -0.1}, Return.Series(mids), 1e-12)
	assert.InDeltaSlice(t, []float64{0.1, -0.11}, MidDelta.Series(mids), 1e-12)
	assert.Nil(t, LogReturn.Series([]float64{1}))
}

func TestParseFeatureType(t *testing.T) {
	t.Parallel()

	ft, err := ParseFeatureType("mid")
	require.NoError(t, err)
	assert.Equal(t, MidDelta, ft)

	ft, err = ParseFeatureType("")
	require.NoError(t, err)
	assert.Equal(t, LogReturn, ft)

	_, err = ParseFeatureType("RSI")
	assert.Error(t, err)
}

func TestSieveBest(t *testing.T) {
	t.Parallel()

	s := Sieve{Type: LogReturn, Alpha: 0.1}

	t.Run("incomplete windows are skipped", func(t *testing.T) {
		t.Parallel()
		h := map[market.Resolution]*market.PriceWindow{
			market.TICK: windowOf(20, trend(5, 1.1, 0.001)...),
			market.M1:   windowOf(20, zigzag(20, 1.1, 1.101)...),
		}
		f, err := s.Best(h)
		require.NoError(t, err)
		assert.Equal(t, market.M1, f.Resolution)
	})

	t.Run("highest score wins", func(t *testing.T) {
		t.Parallel()
		h := map[market.Resolution]*market.PriceWindow{
			market.TICK: windowOf(20, zigzag(20, 1.1, 1.101)...),
			market.M1:   windowOf(20, trend(20, 1.1, 0.001)...),
		}
		f, err := s.Best(h)
		require.NoError(t, err)
		assert.Equal(t, market.M1, f.Resolution)
		assert.Greater(t, f.Score, 1.0)
	})

	t.Run("ties prefer shorter resolution", func(t *testing.T) {
		t.Parallel()
		h := map[market.Resolution]*market.PriceWindow{
			market.H1: windowOf(10, trend(10, 1.1, 0.001)...),
			market.M5: windowOf(10, trend(10, 1.1, 0.001)...),
			market.S5: windowOf(10, trend(10, 1.1, 0.001)...),
		}
		f, err := s.Best(h)
		require.NoError(t, err)
		assert.Equal(t, market.S5, f.Resolution)
	})

	t.Run("all incomplete", func(t *testing.T) {
		t.Parallel()
		h := map[market.Resolution]*market.PriceWindow{
			market.TICK: windowOf(20, 1.1, 1.2),
			market.M1:   windowOf(20),
		}
		_, err := s.Best(h)
		var ih *InsufficientHistoryError
		require.True(t, errors.As(err, &ih))
		assert.Equal(t, 20, ih.Need)
		assert.Equal(t, 2, ih.Have[market.TICK])
		assert.Contains(t, ih.Error(), "TICK=2 M1=0")
	})
}

func newDetector(t *testing.T, mutate func(*config.EWMAConfig)) Detector {
	t.Helper()
	cfg := config.Default()
	cfg.Model.EWMA.Alpha = 0.1
	if mutate != nil {
		mutate(&cfg.Model.EWMA)
	}
	d, err := New(cfg.Feature, cfg.Model)
	require.NoError(t, err)
	return d
}

func TestEWMA_Detect(t *testing.T) {
	t.Parallel()

	up := map[market.Resolution]*market.PriceWindow{market.M1: windowOf(30, trend(30, 1.1, 0.0005)...)}
	down := map[market.Resolution]*market.PriceWindow{market.M1: windowOf(30, trend(30, 1.1, -0.0005)...)}
	flat := map[market.Resolution]*market.PriceWindow{market.M1: windowOf(30, zigzag(30, 1.1, 1.1005)...)}
	long := &broker.Position{Instrument: "EUR_USD", Side: broker.Long, Units: 1000}
	short := &broker.Position{Instrument: "EUR_USD", Side: broker.Short, Units: -1000}

	tests := []struct {
		name    string
		mutate  func(*config.EWMAConfig)
		history map[market.Resolution]*market.PriceWindow
		pos     *broker.Position
		want    Action
	}{
		{"uptrend long", nil, up, nil, Long},
		{"downtrend short", nil, down, nil, Short},
		{"straddle none", nil, flat, nil, None},
		{"contrary inverts", func(c *config.EWMAConfig) { c.Contrary = true }, up, nil, Short},
		{"closing only flat", func(c *config.EWMAConfig) { c.ClosingOnly = true }, up, nil, None},
		{"closing only agrees", func(c *config.EWMAConfig) { c.ClosingOnly = true }, up, long, None},
		{"closing only opposes", func(c *config.EWMAConfig) { c.ClosingOnly = true }, up, short, Closing},
		{"closing only straddle", func(c *config.EWMAConfig) { c.ClosingOnly = true }, flat, short, None},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sig, err := newDetector(t, tt.mutate).Detect(tt.history, tt.pos)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sig.Action)
			assert.Equal(t, market.M1, sig.Resolution)
			assert.LessOrEqual(t, sig.Lower, sig.Upper)
			assert.Len(t, sig.Log, 40)
		})
	}
}

func TestEWMA_DetectIsDeterministic(t *testing.T) {
	t.Parallel()

	d := newDetector(t, nil)
	h := map[market.Resolution]*market.PriceWindow{
		market.TICK: windowOf(25, zigzag(25, 1.1, 1.1003)...),
		market.M1:   windowOf(25, trend(25, 1.1, 0.0002)...),
	}
	a, err := d.Detect(h, nil)
	require.NoError(t, err)
	b, err := d.Detect(h, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEWMA_InsufficientHistory(t *testing.T) {
	t.Parallel()

	d := newDetector(t, nil)
	sig, err := d.Detect(map[market.Resolution]*market.PriceWindow{market.M1: windowOf(10, 1.1)}, nil)
	var ih *InsufficientHistoryError
	assert.ErrorAs(t, err, &ih)
	assert.Equal(t, None, sig.Action)
}

func TestNew_UnknownModel(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Model.Name = "lstm"
	_, err := New(cfg.Feature, cfg.Model)
	var ce *config.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "model.name", ce.Field)

	cfg = config.Default()
	cfg.Feature.Type = "XYZ"
	_, err = New(cfg.Feature, cfg.Model)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "feature.type", ce.Field)
}

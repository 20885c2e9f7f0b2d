// Package metrics exposes trading-loop counters and gauges to Prometheus.
//
//   - fract_cycles_total{result}             cycles by outcome (ok|skipped|failed)
//   - fract_decisions_total{instrument,action}
//   - fract_orders_total{op,status}           order attempts (open|close, ok|failed|dry-run)
//   - fract_signal_estimate{instrument}       last EWM estimate
//   - fract_balance / fract_margin_available  account snapshot
//   - fract_units{instrument}                 signed open units
//   - fract_cycle_seconds                     cycle latency
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Metrics struct {
	Cycles          *prometheus.CounterVec
	Decisions       *prometheus.CounterVec
	Orders          *prometheus.CounterVec
	BrokerErrors    *prometheus.CounterVec
	SignalEstimate  *prometheus.GaugeVec
	Balance         prometheus.Gauge
	MarginAvailable prometheus.Gauge
	Units           *prometheus.GaugeVec
	CycleSeconds    prometheus.Histogram
}

// New creates the collectors and registers them with reg when non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fract_cycles_total", Help: "Control loop cycles by result"},
			[]string{"result"},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fract_decisions_total", Help: "Decisions per instrument and action"},
			[]string{"instrument", "action"},
		),
		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fract_orders_total", Help: "Order attempts by op and status"},
			[]string{"op", "status"},
		),
		BrokerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fract_broker_errors_total", Help: "Failed order requests by op and broker error kind"},
			[]string{"op", "kind"},
		),
		SignalEstimate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "fract_signal_estimate", Help: "Last EWM estimate of the selected feature"},
			[]string{"instrument"},
		),
		Balance: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "fract_balance", Help: "Account balance in account currency"},
		),
		MarginAvailable: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "fract_margin_available", Help: "Available margin in account currency"},
		),
		Units: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "fract_units", Help: "Signed open units per instrument"},
			[]string{"instrument"},
		),
		CycleSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fract_cycle_seconds",
				Help:    "Control loop cycle latency",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Cycles, m.Decisions, m.Orders, m.BrokerErrors, m.SignalEstimate,
			m.Balance, m.MarginAvailable, m.Units, m.CycleSeconds)
	}
	return m
}

// Handler serves /metrics from g and a plain /healthz.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Serve runs the metrics server until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

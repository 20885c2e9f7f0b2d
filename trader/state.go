package trader

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/decision"
	"github.com/rustyeddy/fract/journal"
	"github.com/rustyeddy/fract/market"
	"github.com/rustyeddy/fract/model"
)

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	left := (width - len(s)) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-len(s)-left)
}

// StateLine formats the per-instrument summary, e.g.
// "|  EUR_USD  | B/A: 1.08345 1.08360 | PL:   -12 |<signal>|<state>|".
func StateLine(name string, prec int, r market.Rate, pl float64, signal, state string) string {
	return fmt.Sprintf("|%s| B/A: %.*f %.*f | PL:%6.0f |%s|%s|",
		center(name, 11), prec, r.Bid, prec, r.Ask, pl, signal, center(state, 18))
}

func (t *Trader) printState(name string, r market.Rate, sig model.Signal, d decision.Decision) {
	prec := t.snap.Instruments[name].DisplayPrecision
	if prec == 0 {
		prec = 5
	}
	line := StateLine(name, prec, r, t.snap.NetPL(name), sig.Log, d.Label)
	if t.opts.Quiet {
		t.log.Info().Str("instrument", name).Msg(line)
		return
	}
	fmt.Fprintln(t.opts.Out, line)
}

func (t *Trader) recordSignal(name string, sig model.Signal, d decision.Decision) {
	if m := t.opts.Metrics; m != nil {
		m.Decisions.WithLabelValues(name, d.Action.String()).Inc()
		m.SignalEstimate.WithLabelValues(name).Set(sig.Estimate)
	}
	if t.opts.Journal == nil {
		return
	}
	err := t.opts.Journal.RecordSignal(journal.SignalRecord{
		Time:       t.snap.Time.UTC(),
		Instrument: name,
		Resolution: string(sig.Resolution),
		Estimate:   sig.Estimate,
		Lower:      sig.Lower,
		Upper:      sig.Upper,
		Action:     string(sig.Action),
		Decision:   d.Label,
	})
	if err != nil {
		t.log.Warn().Err(err).Str("instrument", name).Msg("signal log write failed")
	}
}

func (t *Trader) countOrder(op string, err error) {
	m := t.opts.Metrics
	if m == nil {
		return
	}
	status := journal.StatusOK
	switch {
	case err != nil:
		status = journal.StatusFailed
		m.BrokerErrors.WithLabelValues(op, broker.KindOf(err).String()).Inc()
	case t.exec.DryRun():
		status = journal.StatusDryRun
	}
	m.Orders.WithLabelValues(op, status).Inc()
}

func (t *Trader) observeAccount() {
	m := t.opts.Metrics
	if m == nil {
		return
	}
	m.Balance.Set(t.snap.Account.Balance)
	m.MarginAvailable.Set(t.snap.Account.MarginAvailable)
	m.Units.Reset()
	for _, p := range t.snap.Account.Positions {
		m.Units.WithLabelValues(p.Instrument).Set(p.Units)
	}
}

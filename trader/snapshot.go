package trader

import (
	"time"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/decision"
	"github.com/rustyeddy/fract/market"
)

// Snapshot is the account and market view for one cycle. Only the loop
// changes it after refresh: closes mark instruments flat and opens debit
// available margin.
type Snapshot struct {
	Time         time.Time
	Account      broker.Account
	Instruments  map[string]market.Instrument
	Rates        market.Rates
	Transactions []broker.Transaction
}

func (s *Snapshot) Position(instrument string) (broker.Position, bool) {
	for _, p := range s.Account.Positions {
		if p.Instrument == instrument && p.Units != 0 {
			return p, true
		}
	}
	return broker.Position{}, false
}

func (s *Snapshot) State(instrument string) decision.State {
	p, ok := s.Position(instrument)
	switch {
	case !ok:
		return decision.Flat
	case p.Side == broker.Short:
		return decision.Short
	}
	return decision.Long
}

// MarkFlat drops the instrument's position after a successful close.
func (s *Snapshot) MarkFlat(instrument string) {
	kept := s.Account.Positions[:0]
	for _, p := range s.Account.Positions {
		if p.Instrument != instrument {
			kept = append(kept, p)
		}
	}
	s.Account.Positions = kept
}

// DebitMargin reduces available margin by amount, not below zero.
func (s *Snapshot) DebitMargin(amount float64) {
	s.Account.MarginAvailable -= amount
	if s.Account.MarginAvailable < 0 {
		s.Account.MarginAvailable = 0
	}
	s.Account.MarginUsed += amount
}

// NetPL sums the realized P/L of the instrument's transactions.
func (s *Snapshot) NetPL(instrument string) float64 {
	var pl float64
	for _, t := range s.Transactions {
		if t.Instrument == instrument {
			pl += t.PL
		}
	}
	return pl
}

// Tradeable reports whether the instrument is listed for the account and
// its latest quote is not halted.
func (s *Snapshot) Tradeable(instrument string) bool {
	in, ok := s.Instruments[instrument]
	if !ok || !in.Tradeable {
		return false
	}
	r, ok := s.Rates[instrument]
	return ok && !r.Halted
}

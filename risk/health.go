package risk

import (
	"fmt"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/market"
)

// Health holds the conditions that block trading an instrument.
type Health struct {
	TradingHalted bool
	NoFunds       bool
	MarginLack    bool
	OverSpread    bool
}

type Violation struct {
	Code string
	Msg  string
}

// HealthInput is the account and market state for one instrument.
type HealthInput struct {
	Account   broker.Account
	Rate      market.Rate
	Tradeable bool
	Flat      bool
	Preserve  float64
	MaxSpread float64
}

// Evaluate computes the health flags and the matching violations.
func Evaluate(in HealthInput) (Health, []Violation) {
	var h Health
	var vs []Violation
	add := func(code, msg string) {
		vs = append(vs, Violation{Code: code, Msg: msg})
	}

	acct := in.Account
	if !in.Tradeable || in.Rate.Halted {
		h.TradingHalted = true
		add("TRADING_HALTED", in.Rate.Instrument+" is not tradeable")
	}
	if acct.Balance < 1 {
		h.NoFunds = true
		add("NO_FUNDS", fmt.Sprintf("balance %.2f < 1", acct.Balance))
	}
	reserve := acct.Balance * in.Preserve
	if in.Flat && acct.MarginAvailable <= reserve {
		h.MarginLack = true
		add("MARGIN_LACK", fmt.Sprintf("margin available %.2f <= reserve %.2f", acct.MarginAvailable, reserve))
	}
	if spread := in.Rate.Spread(); spread >= in.MaxSpread {
		h.OverSpread = true
		add("OVER_SPREAD", fmt.Sprintf("spread %.6f >= max %.6f", spread, in.MaxSpread))
	}
	return h, vs
}

// OK reports whether nothing blocks opening a position.
func (h Health) OK() bool {
	return !h.TradingHalted && !h.NoFunds && !h.MarginLack && !h.OverSpread
}

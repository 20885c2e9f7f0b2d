// Package risk sizes new positions and evaluates the account and market
// conditions that block trading.
package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/config"
	"github.com/rustyeddy/fract/market"
)

// Sizer converts margin/NAV ratios into order units.
type Sizer struct {
	bet        BetSystem
	multiplier float64
	ratio      config.MarginNAVRatio
}

func NewSizer(cfg config.PositionConfig) (*Sizer, error) {
	bet, err := ParseBetSystem(cfg.Bet)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "position.bet", Msg: err.Error()}
	}
	return &Sizer{bet: bet, multiplier: cfg.BetMultiplier, ratio: cfg.MarginNAVRatio}, nil
}

// SizeInput is everything Size needs for one instrument.
type SizeInput struct {
	Instrument   market.Instrument
	Side         broker.Side
	Account      broker.Account
	Rates        market.Rates
	Tradable     map[string]market.Instrument
	Transactions []broker.Transaction
}

// UnitCost is the margin, in account currency, held by one unit.
func UnitCost(in SizeInput) (float64, error) {
	bpv, err := market.BPValue(in.Instrument.Name, in.Account.Currency, in.Rates, in.Tradable)
	if err != nil {
		return 0, err
	}
	return bpv * in.Instrument.MarginRate, nil
}

// Baseline returns the unit, initial and cap sizes for balance.
func (s *Sizer) Baseline(balance, unitCost float64) Sizes {
	return Sizes{
		Unit: math.Floor(balance * s.ratio.Unit / unitCost),
		Init: math.Floor(balance * s.ratio.Init / unitCost),
		Cap:  math.Floor(balance * s.ratio.Cap / unitCost),
	}
}

// Size returns signed order units: the bet size bounded by free margin above
// the preserved reserve and by the instrument's max order units.
func (s *Sizer) Size(in SizeInput) (float64, error) {
	cost, err := UnitCost(in)
	if err != nil {
		return 0, err
	}
	if cost <= 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
		return 0, fmt.Errorf("size %s: invalid unit cost %v", in.Instrument.Name, cost)
	}

	acct := in.Account
	base := s.Baseline(acct.Balance, cost)

	var own []broker.Transaction
	for _, t := range in.Transactions {
		if t.Instrument == in.Instrument.Name {
			own = append(own, t)
		}
	}
	bet := s.bet.Size(own, s.multiplier, base)

	avail := math.Max(math.Floor((acct.MarginAvailable-acct.Balance*s.ratio.Preserve)/cost), 0)

	units := math.Min(bet, avail)
	if in.Instrument.MaxOrderUnits > 0 {
		units = math.Min(units, in.Instrument.MaxOrderUnits)
	}
	units = math.Max(units, 0)
	return units * in.Side.Sign(), nil
}

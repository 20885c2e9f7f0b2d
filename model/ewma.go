package model

import (
	"fmt"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/config"
	"github.com/rustyeddy/fract/market"
)

// EWMA calls a direction when the sigma band around the EWM mean of the best
// feature lies entirely on one side of zero.
type EWMA struct {
	sieve       Sieve
	sigmaBand   float64
	closingOnly bool
	contrary    bool
}

func NewEWMA(ft FeatureType, cfg config.EWMAConfig) *EWMA {
	return &EWMA{
		sieve:       Sieve{Type: ft, Alpha: cfg.Alpha},
		sigmaBand:   cfg.SigmaBand,
		closingOnly: cfg.ClosingOnly,
		contrary:    cfg.Contrary,
	}
}

func (m *EWMA) Detect(history map[market.Resolution]*market.PriceWindow, pos *broker.Position) (Signal, error) {
	f, err := m.sieve.Best(history)
	if err != nil {
		return Signal{Action: None, Log: fmt.Sprintf("%-40s", "insufficient history")}, err
	}

	sig := Signal{
		Resolution: f.Resolution,
		Estimate:   f.Mean,
		Lower:      f.Mean - m.sigmaBand*f.Std,
		Upper:      f.Mean + m.sigmaBand*f.Std,
	}

	var dir Action = None
	switch {
	case sig.Lower > 0:
		dir = Long
	case sig.Upper < 0:
		dir = Short
	}
	if m.contrary {
		dir = invert(dir)
	}

	sig.Action = dir
	if m.closingOnly {
		sig.Action = None
		if dir != None && pos != nil && string(pos.Side) != string(dir) {
			sig.Action = Closing
		}
	}

	sig.Log = fmt.Sprintf("%-40s", fmt.Sprintf("%3s[%3s]:%9.1g [%.1g %.1g]",
		m.sieve.Type, f.Resolution, sig.Estimate, sig.Lower, sig.Upper))
	return sig, nil
}

func invert(a Action) Action {
	switch a {
	case Long:
		return Short
	case Short:
		return Long
	}
	return a
}

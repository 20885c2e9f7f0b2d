package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/rustyeddy/fract/broker"
)

// BetSystem chooses the next bet size from the realized P/L history.
type BetSystem string

const (
	Martingale BetSystem = "martingale"
	Paroli     BetSystem = "paroli"
	DAlembert  BetSystem = "dalembert"
	Flat       BetSystem = "flat"
)

func ParseBetSystem(s string) (BetSystem, error) {
	switch b := BetSystem(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return Martingale, nil
	case Martingale, Paroli, DAlembert, Flat:
		return b, nil
	default:
		return "", fmt.Errorf("unknown bet system %q (supported: martingale, paroli, dalembert, flat)", s)
	}
}

// Sizes are the baseline bet sizes in units.
type Sizes struct {
	Unit float64
	Init float64
	Cap  float64
}

// Next applies one realized result to size.
func (b BetSystem) Next(size, pl, multiplier float64, s Sizes) float64 {
	switch {
	case pl == 0:
		return size
	case b == Flat:
		return s.Init
	}

	win := pl > 0
	switch b {
	case Paroli:
		if win {
			return math.Min(math.Floor(size*multiplier), s.Cap)
		}
		return s.Unit
	case DAlembert:
		if win {
			return math.Max(size-s.Unit, s.Unit)
		}
		return math.Min(size+s.Unit, s.Cap)
	default:
		if win {
			return s.Unit
		}
		return math.Min(math.Floor(size*multiplier), s.Cap)
	}
}

// Size folds the realized P/L of txns, oldest first, starting at s.Init.
func (b BetSystem) Size(txns []broker.Transaction, multiplier float64, s Sizes) float64 {
	size := s.Init
	for _, t := range txns {
		size = b.Next(size, t.PL, multiplier, s)
	}
	return size
}

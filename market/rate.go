package market

import "time"

// Rate is a bid/ask quote for one instrument at one point in time.
// Halted is set when the broker reports the instrument as not tradeable.
type Rate struct {
	Instrument string
	Time       time.Time
	Bid        float64
	Ask        float64
	Halted     bool
}

func (r Rate) Mid() float64 {
	return (r.Bid + r.Ask) / 2
}

// Spread returns the bid/ask gap normalized by the mid price.
func (r Rate) Spread() float64 {
	mid := r.Mid()
	if mid == 0 {
		return 0
	}
	return (r.Ask - r.Bid) / mid
}

// Rates maps instrument name to its latest quote.
type Rates map[string]Rate

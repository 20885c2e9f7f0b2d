// market/instruments.go
package market

import (
	"fmt"
	"math"
	"strings"
)

// Instrument is the broker metadata for a tradable currency pair.
// Trailing stop bounds are price distances, not pips.
type Instrument struct {
	Name             string
	BaseCurrency     string
	QuoteCurrency    string
	PipLocation      int
	DisplayPrecision int
	MarginRate       float64
	MinTrailingStop  float64
	MaxTrailingStop  float64
	MaxOrderUnits    float64
	Tradeable        bool
}

// PipSize returns 10^PipLocation (0.0001 for EUR_USD, 0.01 for USD_JPY).
func (i Instrument) PipSize() float64 {
	return PipSize(i.PipLocation)
}

func PipSize(loc int) float64 {
	return math.Pow(10, float64(loc))
}

// SplitInstrument splits "EUR_USD" into its base and quote currencies.
func SplitInstrument(name string) (base, quote string, err error) {
	parts := strings.Split(name, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed instrument name %q", name)
	}
	return parts[0], parts[1], nil
}

// Instruments is a small static catalog used by the paper broker and tests.
// Live runs always use the metadata returned by the broker.
var Instruments = map[string]Instrument{
	"EUR_USD": {
		Name:             "EUR_USD",
		BaseCurrency:     "EUR",
		QuoteCurrency:    "USD",
		PipLocation:      -4,
		DisplayPrecision: 5,
		MarginRate:       0.02,
		MinTrailingStop:  0.0005,
		MaxTrailingStop:  1.0,
		MaxOrderUnits:    100_000_000,
		Tradeable:        true,
	},
	"USD_JPY": {
		Name:             "USD_JPY",
		BaseCurrency:     "USD",
		QuoteCurrency:    "JPY",
		PipLocation:      -2,
		DisplayPrecision: 3,
		MarginRate:       0.04,
		MinTrailingStop:  0.05,
		MaxTrailingStop:  100.0,
		MaxOrderUnits:    100_000_000,
		Tradeable:        true,
	},
	"GBP_USD": {
		Name:             "GBP_USD",
		BaseCurrency:     "GBP",
		QuoteCurrency:    "USD",
		PipLocation:      -4,
		DisplayPrecision: 5,
		MarginRate:       0.05,
		MinTrailingStop:  0.0005,
		MaxTrailingStop:  1.0,
		MaxOrderUnits:    100_000_000,
		Tradeable:        true,
	},
	"EUR_GBP": {
		Name:             "EUR_GBP",
		BaseCurrency:     "EUR",
		QuoteCurrency:    "GBP",
		PipLocation:      -4,
		DisplayPrecision: 5,
		MarginRate:       0.05,
		MinTrailingStop:  0.0005,
		MaxTrailingStop:  1.0,
		MaxOrderUnits:    100_000_000,
		Tradeable:        true,
	},
}

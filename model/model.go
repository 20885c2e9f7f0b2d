// Package model turns price history into a trading signal.
package model

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/config"
	"github.com/rustyeddy/fract/market"
)

// Action is the signal's recommendation for an instrument.
type Action string

const (
	None    Action = "none"
	Long    Action = "long"
	Short   Action = "short"
	Closing Action = "closing"
)

// Signal is the result of one detection.
type Signal struct {
	Resolution market.Resolution
	Estimate   float64
	Lower      float64
	Upper      float64
	Action     Action
	Log        string
}

// Detector evaluates the history of one instrument. pos is nil when flat.
type Detector interface {
	Detect(history map[market.Resolution]*market.PriceWindow, pos *broker.Position) (Signal, error)
}

// InsufficientHistoryError means no window was full enough to evaluate.
// The returned signal is always None.
type InsufficientHistoryError struct {
	Have map[market.Resolution]int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	parts := make([]string, 0, len(e.Have))
	rs := make([]market.Resolution, 0, len(e.Have))
	for r := range e.Have {
		rs = append(rs, r)
	}
	market.SortResolutions(rs)
	for _, r := range rs {
		parts = append(parts, fmt.Sprintf("%s=%d", r, e.Have[r]))
	}
	return fmt.Sprintf("insufficient history: need %d rates per window, have [%s]", e.Need, strings.Join(parts, " "))
}

// New returns the detector named in the model configuration.
func New(feature config.FeatureConfig, cfg config.ModelConfig) (Detector, error) {
	ft, err := ParseFeatureType(feature.Type)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "feature.type", Msg: err.Error()}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "ewma", "":
		return NewEWMA(ft, cfg.EWMA), nil
	default:
		return nil, &config.ConfigurationError{
			Field: "model.name",
			Msg:   fmt.Sprintf("unknown model %q (supported: ewma)", cfg.Name),
		}
	}
}

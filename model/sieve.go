package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/rustyeddy/fract/market"
)

// FeatureType selects the series derived from mid prices.
type FeatureType string

const (
	LogReturn FeatureType = "LR"
	Return    FeatureType = "R"
	MidDelta  FeatureType = "MID"
)

func ParseFeatureType(s string) (FeatureType, error) {
	switch ft := FeatureType(strings.ToUpper(strings.TrimSpace(s))); ft {
	case LogReturn, Return, MidDelta:
		return ft, nil
	case "":
		return LogReturn, nil
	default:
		return "", fmt.Errorf("unknown feature type %q", s)
	}
}

// Series derives the feature series from mid prices. The result is one
// shorter than mids. Non-positive prices yield a zero log return.
func (ft FeatureType) Series(mids []float64) []float64 {
	if len(mids) < 2 {
		return nil
	}
	out := make([]float64, len(mids)-1)
	for i := 1; i < len(mids); i++ {
		prev, cur := mids[i-1], mids[i]
		switch ft {
		case Return:
			if prev != 0 {
				out[i-1] = cur/prev - 1
			}
		case MidDelta:
			out[i-1] = cur - prev
		default:
			if prev > 0 && cur > 0 {
				out[i-1] = math.Log(cur / prev)
			}
		}
	}
	return out
}

// Feature is the series chosen from one window and its EWM statistics.
type Feature struct {
	Resolution market.Resolution
	Series     []float64
	Mean       float64
	Std        float64
	Score      float64
}

// Sieve picks the most significant feature across resolutions.
type Sieve struct {
	Type  FeatureType
	Alpha float64
}

// Score is |mean|/std. A flat series scores 0 and a nonzero mean with no
// dispersion scores +Inf.
func Score(mean, std float64) float64 {
	if std == 0 {
		if mean == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(mean) / std
}

// Best evaluates every full window and returns the highest-scoring feature.
// Ties go to the shorter resolution. With no full window it returns
// *InsufficientHistoryError.
func (s Sieve) Best(history map[market.Resolution]*market.PriceWindow) (Feature, error) {
	rs := make([]market.Resolution, 0, len(history))
	for r := range history {
		rs = append(rs, r)
	}
	market.SortResolutions(rs)

	var best Feature
	found := false
	have := make(map[market.Resolution]int, len(rs))
	need := 0
	for _, r := range rs {
		w := history[r]
		if w == nil {
			continue
		}
		have[r] = w.Len()
		if w.Cap() > need {
			need = w.Cap()
		}
		if !w.Full() {
			continue
		}
		series := s.Type.Series(w.Mids())
		mean, std := EWMStats(series, s.Alpha)
		f := Feature{Resolution: r, Series: series, Mean: mean, Std: std, Score: Score(mean, std)}
		if !found || f.Score > best.Score {
			best = f
			found = true
		}
	}
	if !found {
		return Feature{}, &InsufficientHistoryError{Have: have, Need: need}
	}
	return best, nil
}

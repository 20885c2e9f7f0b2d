package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Resolution is a candle granularity code as used by OANDA, plus TICK for
// the rolling series built from per-cycle pricing snapshots.
type Resolution string

const (
	TICK Resolution = "TICK"
	S5   Resolution = "S5"
	S10  Resolution = "S10"
	S15  Resolution = "S15"
	S30  Resolution = "S30"
	M1   Resolution = "M1"
	M2   Resolution = "M2"
	M4   Resolution = "M4"
	M5   Resolution = "M5"
	M10  Resolution = "M10"
	M15  Resolution = "M15"
	M30  Resolution = "M30"
	H1   Resolution = "H1"
	H2   Resolution = "H2"
	H3   Resolution = "H3"
	H4   Resolution = "H4"
	H6   Resolution = "H6"
	H8   Resolution = "H8"
	H12  Resolution = "H12"
	D    Resolution = "D"
	W    Resolution = "W"
	M    Resolution = "M"
)

var resolutionDurations = map[Resolution]time.Duration{
	TICK: 0,
	S5:   5 * time.Second,
	S10:  10 * time.Second,
	S15:  15 * time.Second,
	S30:  30 * time.Second,
	M1:   time.Minute,
	M2:   2 * time.Minute,
	M4:   4 * time.Minute,
	M5:   5 * time.Minute,
	M10:  10 * time.Minute,
	M15:  15 * time.Minute,
	M30:  30 * time.Minute,
	H1:   time.Hour,
	H2:   2 * time.Hour,
	H3:   3 * time.Hour,
	H4:   4 * time.Hour,
	H6:   6 * time.Hour,
	H8:   8 * time.Hour,
	H12:  12 * time.Hour,
	D:    24 * time.Hour,
	W:    7 * 24 * time.Hour,
	M:    30 * 24 * time.Hour,
}

// ParseResolution validates a granularity code.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := resolutionDurations[r]; !ok {
		return "", fmt.Errorf("unknown resolution %q", s)
	}
	return r, nil
}

// Duration is the bar length; TICK is zero and sorts first.
func (r Resolution) Duration() time.Duration {
	return resolutionDurations[r]
}

// Less orders resolutions by bar length, then by code.
func (r Resolution) Less(o Resolution) bool {
	if r.Duration() != o.Duration() {
		return r.Duration() < o.Duration()
	}
	return r < o
}

// SortResolutions sorts in place from shortest to longest.
func SortResolutions(rs []Resolution) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Less(rs[j]) })
}

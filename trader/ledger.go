package trader

import (
	"sort"
	"time"

	"github.com/rustyeddy/fract/broker"
)

type stamp struct {
	units float64
	at    time.Time
}

// ledger tracks when each open position was first seen with its current
// units. It has a single writer, the loop.
type ledger map[string]stamp

// update re-stamps positions whose units changed and forgets closed ones.
func (l ledger) update(positions []broker.Position, now time.Time) {
	seen := make(map[string]bool, len(positions))
	for _, p := range positions {
		if p.Units == 0 {
			continue
		}
		seen[p.Instrument] = true
		if s, ok := l[p.Instrument]; !ok || s.units != p.Units {
			l[p.Instrument] = stamp{units: p.Units, at: now}
		}
	}
	for inst := range l {
		if !seen[inst] {
			delete(l, inst)
		}
	}
}

// expired returns instruments held longer than ttl.
func (l ledger) expired(now time.Time, ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	var out []string
	for inst, s := range l {
		if now.Sub(s.at) > ttl {
			out = append(out, inst)
		}
	}
	sort.Strings(out)
	return out
}

// Package decision maps position state, signal and health to one action.
package decision

import (
	"fmt"

	"github.com/rustyeddy/fract/model"
	"github.com/rustyeddy/fract/risk"
)

// State is the instrument's position at the start of the cycle.
type State int

const (
	Flat State = iota
	Long
	Short
)

func (s State) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	}
	return "FLAT"
}

type Action int

const (
	Hold Action = iota
	OpenLong
	OpenShort
	Close
)

func (a Action) String() string {
	switch a {
	case OpenLong:
		return "open_long"
	case OpenShort:
		return "open_short"
	case Close:
		return "close"
	}
	return "hold"
}

// Decision is the single action for an instrument in a cycle. CloseFirst
// marks a reversal: the held position is closed before the open.
type Decision struct {
	Action     Action
	CloseFirst bool
	Label      string
}

// Decide applies the priority table. holdPct is the margin held by the
// position as a fraction of balance, shown in hold labels. Decide is pure
// and total.
func Decide(state State, sig model.Action, h risk.Health, holdPct float64) Decision {
	switch {
	case h.TradingHalted:
		return Decision{Action: Hold, Label: "TRADING HALTED"}
	case sig == model.Closing:
		// Nothing to close while flat; a Close here would send a close
		// request for a position the broker does not have.
		if state == Flat {
			return Decision{Action: Hold, Label: "-"}
		}
		return Decision{Action: Close, Label: "CLOSING"}
	case h.NoFunds:
		return Decision{Action: Hold, Label: "NO FUND"}
	case h.MarginLack:
		return Decision{Action: Hold, Label: "LACK OF FUNDS"}
	case h.OverSpread:
		return Decision{Action: Hold, Label: "OVER-SPREAD"}
	}

	switch sig {
	case model.Long:
		switch state {
		case Long:
			return holding(state, holdPct)
		case Short:
			return Decision{Action: OpenLong, CloseFirst: true, Label: "SHORT -> LONG"}
		}
		return Decision{Action: OpenLong, Label: "-> LONG"}
	case model.Short:
		switch state {
		case Short:
			return holding(state, holdPct)
		case Long:
			return Decision{Action: OpenShort, CloseFirst: true, Label: "LONG -> SHORT"}
		}
		return Decision{Action: OpenShort, Label: "-> SHORT"}
	}

	if state == Flat {
		return Decision{Action: Hold, Label: "-"}
	}
	return holding(state, holdPct)
}

func holding(state State, pct float64) Decision {
	return Decision{Action: Hold, Label: fmt.Sprintf("%.1f%% %s", pct*100, state)}
}

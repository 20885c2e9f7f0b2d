package decision

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/fract/model"
	"github.com/rustyeddy/fract/risk"
)

func allHealth() []risk.Health {
	out := make([]risk.Health, 0, 16)
	for i := 0; i < 16; i++ {
		out = append(out, risk.Health{
			TradingHalted: i&1 != 0,
			NoFunds:       i&2 != 0,
			MarginLack:    i&4 != 0,
			OverSpread:    i&8 != 0,
		})
	}
	return out
}

// expected restates the priority table independently of Decide.
func expected(state State, sig model.Action, h risk.Health) (Action, bool, string) {
	held := fmt.Sprintf("12.5%% %s", state)
	if h.TradingHalted {
		return Hold, false, "TRADING HALTED"
	}
	if sig == model.Closing {
		if state == Flat {
			return Hold, false, "-"
		}
		return Close, false, "CLOSING"
	}
	if h.NoFunds {
		return Hold, false, "NO FUND"
	}
	if h.MarginLack {
		return Hold, false, "LACK OF FUNDS"
	}
	if h.OverSpread {
		return Hold, false, "OVER-SPREAD"
	}
	switch {
	case sig == model.Long && state == Flat:
		return OpenLong, false, "-> LONG"
	case sig == model.Long && state == Short:
		return OpenLong, true, "SHORT -> LONG"
	case sig == model.Short && state == Flat:
		return OpenShort, false, "-> SHORT"
	case sig == model.Short && state == Long:
		return OpenShort, true, "LONG -> SHORT"
	case state == Flat:
		return Hold, false, "-"
	}
	return Hold, false, held
}

func TestDecide_Exhaustive(t *testing.T) {
	t.Parallel()

	states := []State{Flat, Long, Short}
	signals := []model.Action{model.Long, model.Short, model.Closing, model.None}
	n := 0
	for _, st := range states {
		for _, sig := range signals {
			for _, h := range allHealth() {
				n++
				got := Decide(st, sig, h, 0.125)
				act, closeFirst, label := expected(st, sig, h)
				assert.Equal(t, act, got.Action, "%s %s %+v", st, sig, h)
				assert.Equal(t, closeFirst, got.CloseFirst, "%s %s %+v", st, sig, h)
				assert.Equal(t, label, got.Label, "%s %s %+v", st, sig, h)
			}
		}
	}
	assert.Equal(t, 3*4*16, n)
}

func TestDecide_Scenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state State
		sig   model.Action
		h     risk.Health
		pct   float64
		want  Decision
	}{
		{"over spread blocks open", Flat, model.Long, risk.Health{OverSpread: true}, 0, Decision{Action: Hold, Label: "OVER-SPREAD"}},
		{"closing beats funds", Long, model.Closing, risk.Health{NoFunds: true, MarginLack: true}, 0, Decision{Action: Close, Label: "CLOSING"}},
		{"halted beats closing", Short, model.Closing, risk.Health{TradingHalted: true}, 0, Decision{Action: Hold, Label: "TRADING HALTED"}},
		{"closing while flat holds", Flat, model.Closing, risk.Health{}, 0, Decision{Action: Hold, Label: "-"}},
		{"reversal", Long, model.Short, risk.Health{}, 0, Decision{Action: OpenShort, CloseFirst: true, Label: "LONG -> SHORT"}},
		{"hold negative pct", Short, model.None, risk.Health{}, -0.0123, Decision{Action: Hold, Label: "-1.2% SHORT"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Decide(tt.state, tt.sig, tt.h, tt.pct))
		})
	}
}

func TestStrings(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "FLAT", Flat.String())
	assert.Equal(t, "open_short", OpenShort.String())
	assert.Equal(t, "hold", Hold.String())
}

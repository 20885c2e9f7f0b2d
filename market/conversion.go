package market

import (
	"fmt"
)

// NoConversionPathError reports that no tradable pair links an instrument's
// quote currency to the account currency.
type NoConversionPathError struct {
	Instrument      string
	AccountCurrency string
}

func (e *NoConversionPathError) Error() string {
	return fmt.Sprintf("no conversion path from %s to %s", e.Instrument, e.AccountCurrency)
}

// BPValue returns the break-even value of one unit of instrument in the
// account currency.
//
//   - quote == account (EUR_USD in USD): ask
//   - base == account (USD_JPY in USD): 1/ask
//   - cross (EUR_GBP in USD): ask times the GBP->USD rate taken from whichever
//     of GBP_USD / USD_GBP is tradable
func BPValue(instrument, accountCurrency string, rates Rates, tradable map[string]Instrument) (float64, error) {
	base, quote, err := SplitInstrument(instrument)
	if err != nil {
		return 0, err
	}
	r, ok := rates[instrument]
	if !ok || r.Ask <= 0 {
		return 0, fmt.Errorf("no rate for %s", instrument)
	}

	switch accountCurrency {
	case quote:
		return r.Ask, nil
	case base:
		return 1 / r.Ask, nil
	}

	for _, name := range []string{quote + "_" + accountCurrency, accountCurrency + "_" + quote} {
		if _, ok := tradable[name]; !ok {
			continue
		}
		x, ok := rates[name]
		if !ok || x.Ask <= 0 {
			continue
		}
		if name == quote+"_"+accountCurrency {
			return r.Ask * x.Ask, nil
		}
		return r.Ask / x.Ask, nil
	}
	return 0, &NoConversionPathError{Instrument: instrument, AccountCurrency: accountCurrency}
}

// HasConversionPath reports whether BPValue can be computed from the set of
// tradable instruments alone, without rates.
func HasConversionPath(instrument, accountCurrency string, tradable map[string]Instrument) bool {
	base, quote, err := SplitInstrument(instrument)
	if err != nil {
		return false
	}
	if base == accountCurrency || quote == accountCurrency {
		return true
	}
	_, direct := tradable[quote+"_"+accountCurrency]
	_, inverse := tradable[accountCurrency+"_"+quote]
	return direct || inverse
}

package sim

import "math"

// TradeMargin is the margin held for units at price, in account currency.
func TradeMargin(units, price, marginRate, quoteToAccount float64) float64 {
	return math.Abs(units) * price * quoteToAccount * marginRate
}

// RealizedPL is the account-currency profit of closing units opened at
// entry at exit. Units are signed.
func RealizedPL(units, entry, exit, quoteToAccount float64) float64 {
	return units * (exit - entry) * quoteToAccount
}

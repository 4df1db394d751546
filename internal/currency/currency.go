// Package currency holds the closed allow-list of currencies accepted
// for deposits and withdrawals.
package currency

import "strings"

type Details struct {
	Code      string
	Name      string
	Network   string
	Symbol    string
	Decimals  int
	MinAmount float64
	Enabled   bool
}

// allowed is the closed table. USDT BEP-20 is currently the only
// accepted currency for both directions.
var allowed = map[string]Details{
	"usdtbsc": {
		Code:      "usdtbsc",
		Name:      "USDT BEP-20",
		Network:   "Binance Smart Chain (BSC)",
		Symbol:    "USDT",
		Decimals:  6,
		MinAmount: 1,
		Enabled:   true,
	},
}

func IsAllowed(code string) bool {
	d, ok := allowed[normalize(code)]
	return ok && d.Enabled
}

// Get returns the details for a currency code, or false when the code is
// not in the table at all.
func Get(code string) (Details, bool) {
	d, ok := allowed[normalize(code)]
	return d, ok
}

// AllowedCodes lists the enabled currency codes.
func AllowedCodes() []string {
	var codes []string
	for code, d := range allowed {
		if d.Enabled {
			codes = append(codes, code)
		}
	}
	return codes
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

package gateway

import (
	"strings"

	"github.com/shopspring/decimal"
)

var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// ZeroDecimal reports whether currency has no minor unit.
func ZeroDecimal(currency string) bool {
	return zeroDecimalCurrencies[strings.ToUpper(currency)]
}

// FormatAmount renders an integer minor-unit amount as a major-unit decimal
// string, e.g. 1099 USD -> "10.99" and 1099 JPY -> "1099".
func FormatAmount(amount int64, currency string) string {
	if ZeroDecimal(currency) {
		return decimal.NewFromInt(amount).String()
	}
	return decimal.New(amount, -2).StringFixed(2)
}

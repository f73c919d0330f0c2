package gateway

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ISO 4217 currencies without a minor unit.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// Exponent is the number of minor-unit digits of a currency.
func Exponent(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; ok {
		return 0
	}
	return 2
}

// ExactInMinorUnits reports whether amount has no digits below the
// currency's minor unit, so MinorUnits does not round it.
func ExactInMinorUnits(amount decimal.Decimal, currency string) bool {
	return amount.Equal(amount.Truncate(Exponent(currency)))
}

// MinorUnits converts a major-unit amount into the integer amount providers expect.
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(Exponent(currency)).Round(0).IntPart()
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -Exponent(currency))
}

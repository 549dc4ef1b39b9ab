package payment

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimal and threeDecimal list ISO 4217 currencies whose minor unit
// exponent differs from the default of 2.
var (
	zeroDecimal = map[string]struct{}{
		"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "ISK": {}, "JPY": {},
		"KMF": {}, "KRW": {}, "PYG": {}, "RWF": {}, "UGX": {}, "UYI": {},
		"VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
	}
	threeDecimal = map[string]struct{}{
		"BHD": {}, "IQD": {}, "JOD": {}, "KWD": {}, "LYD": {}, "OMR": {}, "TND": {},
	}
)

// MinorUnitExponent returns the number of decimal places of the currency's
// minor unit.
func MinorUnitExponent(currency string) int32 {
	c := strings.ToUpper(currency)
	if _, ok := zeroDecimal[c]; ok {
		return 0
	}
	if _, ok := threeDecimal[c]; ok {
		return 3
	}
	return 2
}

// ToMinorUnits converts a major-unit amount into the integer minor-unit
// amount expected by card networks, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(MinorUnitExponent(currency)).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -MinorUnitExponent(currency))
}

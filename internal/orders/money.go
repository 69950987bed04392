package orders

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToMinor converts a major-unit amount (rupees) to gateway minor units (paise).
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinor is the single conversion point for gateway amounts.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

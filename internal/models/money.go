package models

import (
	"fmt"
	"math"
)

// Money is an amount in currency minor units (cents).
type Money int64

// MoneyFromDecimal converts a decimal currency value (as sent by the payment
// service) into minor units, rounding half away from zero.
func MoneyFromDecimal(v float64) Money {
	return Money(math.Round(v * 100))
}

// Decimal returns the amount as a decimal currency value.
func (m Money) Decimal() float64 {
	return float64(m) / 100
}

// String formats the amount with two decimal places, e.g. "25.00".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Percent reports how much of target has been raised, floored and capped at 100.
func Percent(raised, target Money) int {
	if target <= 0 || raised <= 0 {
		return 0
	}
	p := int64(raised) * 100 / int64(target)
	if p > 100 {
		return 100
	}
	return int(p)
}

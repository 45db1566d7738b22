package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "usd"

var hundred = decimal.NewFromInt(100)

// MinorUnits converts an amount to the processor's integer representation (cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// MinorUnitScale is the number of decimal places prices are stored with.
const MinorUnitScale = 2

// ValidateAmount accepts positive amounts expressible in whole cents.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return Invalid(field, "must be greater than zero")
	}
	if !amount.Equal(amount.Round(MinorUnitScale)) {
		return Invalid(field, "must have at most two decimal places")
	}
	return nil
}

func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -2)
}

func NormalizeCurrency(currency string) string {
	c := strings.ToLower(strings.TrimSpace(currency))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

package xrpl

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DropsPerXRP is the fixed ratio between XRP and its smallest unit.
const DropsPerXRP = 1_000_000

var (
	dropsPerXRP = decimal.NewFromInt(DropsPerXRP)
	maxXRP      = decimal.NewFromInt(100_000_000_000)
)

// ToDrops converts an XRP amount into the integer drop string the ledger expects.
// Amounts with sub-drop precision are rejected rather than rounded.
func ToDrops(amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", fmt.Errorf("amount must be positive, got %s", amount)
	}
	if amount.GreaterThan(maxXRP) {
		return "", fmt.Errorf("amount %s exceeds the XRP supply", amount)
	}
	drops := amount.Mul(dropsPerXRP)
	if !drops.Equal(drops.Truncate(0)) {
		return "", fmt.Errorf("amount %s has more than 6 decimal places", amount)
	}
	return drops.StringFixed(0), nil
}

// DropsToXRP converts a drop string (e.g. a Fee field) back to XRP.
func DropsToXRP(drops string) (decimal.Decimal, error) {
	if drops == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(drops)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse drops %q: %w", drops, err)
	}
	return value.Div(dropsPerXRP), nil
}

package clip

import "github.com/shopspring/decimal"

// Monetary values use fixed-point decimals and are truncated (not rounded
// half-up) to a fixed number of places every time a segment boundary is
// crossed, so repeated merges over a long session cannot accumulate drift.

// TruncateTo truncates d toward zero at the given number of decimal places.
func TruncateTo(d decimal.Decimal, places int32) decimal.Decimal {
	return d.RoundDown(places)
}

// minorUnits converts a platform price reported in minor units (1/1000 of
// the display currency) to a decimal amount.
func minorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -3)
}

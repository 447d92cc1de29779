// Package money provides fixed-point currency arithmetic helpers shared by
// the Auction Engine and Bid Gateway. Every amount is a
// shopspring/decimal.Decimal rounded to 2 places — bid comparisons and
// margin subtraction must be exact, so this package never introduces a
// float64 anywhere in the call path.
package money

import "github.com/shopspring/decimal"

// Scale is the number of decimal places every stored amount is rounded to.
const Scale = 2

// Round rounds d to Scale decimal places, halves away from zero
// (shopspring/decimal's Round; 12.345 becomes 12.35).
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// PercentOf returns pct% of base, rounded to Scale places. pct is a
// fraction (0.40 means 40%), matching settings.MinBidPercent/MaxBidPercent.
func PercentOf(base decimal.Decimal, pct float64) decimal.Decimal {
	return Round(base.Mul(decimal.NewFromFloat(pct)))
}

// InRange reports whether amount falls within [PercentOf(base, minPct),
// PercentOf(base, maxPct)] inclusive — the Bid Gateway's placement-time
// bound check.
func InRange(amount, base decimal.Decimal, minPct, maxPct float64) bool {
	lo := PercentOf(base, minPct)
	hi := PercentOf(base, maxPct)
	return !amount.LessThan(lo) && !amount.GreaterThan(hi)
}

// Less reports whether a sorts before b for the cascade ordering (amount
// ascending); ties are broken by the caller on submittedAt.
func Less(a, b decimal.Decimal) bool {
	return a.LessThan(b)
}

// Package money holds the rounding rules shared by price derivation and
// promotion discounting.
package money

import (
	"slices"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round rounds amount to the currency's minor unit, half away from zero.
func Round(amount decimal.Decimal, minorUnits int32) decimal.Decimal {
	return amount.Round(minorUnits)
}

// Percent returns amount × rate / 100 without rounding.
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

// Sum adds the supplied amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Allocate splits total across weights proportionally, rounding every share
// to the minor unit. The last non-zero weight absorbs the rounding remainder.
// No share ever exceeds its weight; whatever the last weight cannot hold is
// placed on the lines with the most headroom, so the shares always sum to
// min(total, sum(weights)).
func Allocate(total decimal.Decimal, weights []decimal.Decimal, minorUnits int32) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(weights))
	for i := range shares {
		shares[i] = decimal.Zero
	}
	sum := Sum(weights...)
	if total.Sign() <= 0 || sum.Sign() <= 0 {
		return shares
	}
	if total.GreaterThan(sum) {
		total = sum
	}

	last := -1
	for i, w := range weights {
		if w.Sign() > 0 {
			last = i
		}
	}

	remaining := total
	for i, w := range weights {
		if w.Sign() <= 0 {
			continue
		}
		if i == last {
			shares[i] = decimal.Min(remaining, w)
			remaining = remaining.Sub(shares[i])
			break
		}
		share := Round(total.Mul(w).Div(sum), minorUnits)
		share = decimal.Min(share, w, remaining)
		shares[i] = share
		remaining = remaining.Sub(share)
	}
	if remaining.IsPositive() {
		spill(shares, weights, remaining)
	}
	return shares
}

// spill places leftover onto the shares with the most headroom first.
func spill(shares, weights []decimal.Decimal, leftover decimal.Decimal) {
	order := make([]int, 0, len(weights))
	for i, w := range weights {
		if w.GreaterThan(shares[i]) {
			order = append(order, i)
		}
	}
	headroom := func(i int) decimal.Decimal { return weights[i].Sub(shares[i]) }
	slices.SortStableFunc(order, func(a, b int) int {
		return headroom(b).Cmp(headroom(a))
	})
	for _, i := range order {
		if !leftover.IsPositive() {
			return
		}
		take := decimal.Min(leftover, headroom(i))
		shares[i] = shares[i].Add(take)
		leftover = leftover.Sub(take)
	}
}

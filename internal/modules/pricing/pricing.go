// README: Pure price arithmetic for requests (commission totals, cancellation splits).
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidInput = errors.New("pricing: negative input")

var oneHundred = decimal.NewFromInt(100)

// ComputeTotal returns base + base*rate/100 rounded to 2 decimal places.
// The result is persisted on the request; it is never recomputed lazily,
// so later commission schedule changes do not alter historical requests.
func ComputeTotal(basePrice, commissionRate decimal.Decimal) (decimal.Decimal, error) {
	if basePrice.IsNegative() || commissionRate.IsNegative() {
		return decimal.Zero, ErrInvalidInput
	}
	commission := basePrice.Mul(commissionRate).Div(oneHundred)
	return basePrice.Add(commission).Round(2), nil
}

// CancellationSplit divides a paid total into the forfeited fee and the
// refund-eligible remainder. fee + refund always equals total: the fee is
// rounded and the refund is the exact remainder, so no cent is lost.
func CancellationSplit(total, forfeitRatePercent decimal.Decimal) (fee, refund decimal.Decimal, err error) {
	if total.IsNegative() || forfeitRatePercent.IsNegative() {
		return decimal.Zero, decimal.Zero, ErrInvalidInput
	}
	fee = total.Mul(forfeitRatePercent).Div(oneHundred).Round(2)
	if fee.GreaterThan(total) {
		fee = total
	}
	return fee, total.Sub(fee), nil
}

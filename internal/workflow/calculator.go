package workflow

import (
	"github.com/shopspring/decimal"

	"vendfleet-backend/internal/models"
)

// MoneyScale is the number of fractional digits kept for amounts.
const MoneyScale = 2

// LineTotal is quantity * unitPrice at money scale.
func LineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(MoneyScale)
}

// RequestTotal sums the line totals of items.
func RequestTotal(items []models.MaterialRequestItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.TotalPrice)
	}
	return total.Round(MoneyScale)
}

// PaymentResult is the effect of one payment on a request.
type PaymentResult struct {
	PaidAmount decimal.Decimal
	Applied    decimal.Decimal
	Excess     decimal.Decimal
	Status     models.MaterialRequestStatus
}

// ApplyPayment computes the new paid amount and status. Paid is capped at
// total; anything above it is returned as Excess. Full versus partial is
// judged against the request total, not the payment.
func ApplyPayment(total, paid, amount decimal.Decimal) PaymentResult {
	next := paid.Add(amount)
	res := PaymentResult{PaidAmount: next, Applied: amount, Excess: decimal.Zero}
	if next.GreaterThan(total) {
		res.Excess = next.Sub(total)
		res.Applied = amount.Sub(res.Excess)
		res.PaidAmount = total
	}
	if res.PaidAmount.GreaterThanOrEqual(total) {
		res.Status = models.StatusPaid
	} else {
		res.Status = models.StatusPartiallyPaid
	}
	return res
}

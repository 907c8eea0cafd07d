package workflow

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"vendfleet-backend/internal/apperr"
	"vendfleet-backend/internal/models"
)

// MaxReasonLength bounds rejection and cancellation reasons.
const MaxReasonLength = 1000

// MaxQuantity matches the INTEGER quantity columns.
const MaxQuantity = math.MaxInt32

// MaxMoney is the exclusive upper bound for any stored amount. Money
// columns are NUMERIC(14,2).
var MaxMoney = decimal.New(1, 12)

// The functions below validate command payloads. They run before the
// aggregate is loaded and return ValidationFailed errors.

func ValidateItems(items []models.MaterialRequestItemInput) error {
	total := decimal.Zero
	for i, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return apperr.Validation("items[%d]: product_id is required", i)
		}
		if strings.TrimSpace(it.ProductName) == "" {
			return apperr.Validation("items[%d]: product_name is required", i)
		}
		if it.Quantity <= 0 {
			return apperr.Validation("items[%d]: quantity must be positive", i)
		}
		if it.Quantity > MaxQuantity {
			return apperr.Validation("items[%d]: quantity cannot exceed %d", i, MaxQuantity)
		}
		if it.UnitPrice.IsNegative() {
			return apperr.Validation("items[%d]: unit_price cannot be negative", i)
		}
		if !it.UnitPrice.Equal(it.UnitPrice.Round(MoneyScale)) {
			return apperr.Validation("items[%d]: unit_price allows at most %d decimal places", i, MoneyScale)
		}
		line := LineTotal(it.Quantity, it.UnitPrice)
		if line.GreaterThanOrEqual(MaxMoney) {
			return apperr.Validation("items[%d]: line total must be below %s", i, MaxMoney)
		}
		total = total.Add(line)
	}
	if total.GreaterThanOrEqual(MaxMoney) {
		return apperr.Validation("request total must be below %s", MaxMoney)
	}
	return nil
}

func ValidatePriority(p models.Priority) error {
	if p != "" && !p.IsValid() {
		return apperr.Validation("priority must be one of low, normal, high, urgent")
	}
	return nil
}

func ValidateReason(kind, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperr.Validation("%s reason is required", kind)
	}
	if len(reason) > MaxReasonLength {
		return apperr.Validation("%s reason exceeds %d characters", kind, MaxReasonLength)
	}
	return nil
}

func ValidatePaymentAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation("payment amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(MoneyScale)) {
		return apperr.Validation("payment amount allows at most %d decimal places", MoneyScale)
	}
	if amount.GreaterThanOrEqual(MaxMoney) {
		return apperr.Validation("payment amount must be below %s", MaxMoney)
	}
	return nil
}

func ValidateDeliveries(items []models.DeliveredItemInput) error {
	seen := make(map[string]bool, len(items))
	for i, d := range items {
		if strings.TrimSpace(d.ItemID) == "" {
			return apperr.Validation("items[%d]: item_id is required", i)
		}
		if d.DeliveredQuantity < 0 {
			return apperr.Validation("items[%d]: delivered_quantity cannot be negative", i)
		}
		if seen[d.ItemID] {
			return apperr.Validation("items[%d]: item %s listed twice", i, d.ItemID)
		}
		seen[d.ItemID] = true
	}
	return nil
}

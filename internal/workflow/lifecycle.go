package workflow

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"vendfleet-backend/internal/apperr"
	"vendfleet-backend/internal/models"
)

// Each transition below checks its guard first and mutates the request only
// when the guard passes. Status is the last field written.

// BuildItems turns validated inputs into request lines owned by requestID.
func BuildItems(requestID string, inputs []models.MaterialRequestItemInput, newID func() string) []models.MaterialRequestItem {
	items := make([]models.MaterialRequestItem, 0, len(inputs))
	for i, in := range inputs {
		price := in.UnitPrice.Round(MoneyScale)
		items = append(items, models.MaterialRequestItem{
			ID:          newID(),
			RequestID:   requestID,
			Position:    i + 1,
			ProductID:   strings.TrimSpace(in.ProductID),
			ProductName: strings.TrimSpace(in.ProductName),
			ProductSKU:  strings.TrimSpace(in.ProductSKU),
			Quantity:    in.Quantity,
			UnitPrice:   price,
			TotalPrice:  LineTotal(in.Quantity, price),
		})
	}
	return items
}

// Update replaces the mutable fields of a draft and recomputes its total.
func Update(r *models.MaterialRequest, req *models.UpdateMaterialRequestRequest, newID func() string) error {
	if err := checkState(CommandUpdate, r); err != nil {
		return err
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != r.Version {
		return apperr.Conflict("material request %s was modified (version %d, expected %d)", r.RequestNumber, r.Version, *req.ExpectedVersion)
	}
	if req.SupplierID != nil {
		if s := strings.TrimSpace(*req.SupplierID); s == "" {
			r.SupplierID = nil
		} else {
			r.SupplierID = &s
		}
	}
	if req.Priority != nil {
		r.Priority = *req.Priority
	}
	if req.Notes != nil {
		r.Notes = *req.Notes
	}
	if req.Items != nil {
		r.Items = BuildItems(r.ID, *req.Items, newID)
		r.TotalAmount = RequestTotal(r.Items)
	}
	return nil
}

func Submit(r *models.MaterialRequest, now time.Time) error {
	if err := checkState(CommandSubmit, r); err != nil {
		return err
	}
	if len(r.Items) == 0 {
		return apperr.InvalidTransition("cannot submit material request %s without items", r.RequestNumber)
	}
	r.SubmittedAt = &now
	r.Status = models.StatusNew
	return nil
}

func Approve(r *models.MaterialRequest, actorID string, now time.Time) error {
	if err := checkState(CommandApprove, r); err != nil {
		return err
	}
	r.ApprovedBy = &actorID
	r.ApprovedAt = &now
	r.Status = models.StatusApproved
	return nil
}

func Reject(r *models.MaterialRequest, actorID, reason string, now time.Time) error {
	if err := checkState(CommandReject, r); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	r.RejectionReason = &reason
	r.RejectedBy = &actorID
	r.RejectedAt = &now
	r.Status = models.StatusRejected
	return nil
}

// ReturnToDraft only changes status; rejection fields stay for the audit trail.
func ReturnToDraft(r *models.MaterialRequest) error {
	if err := checkState(CommandReturnToDraft, r); err != nil {
		return err
	}
	r.Status = models.StatusDraft
	return nil
}

func SendToSupplier(r *models.MaterialRequest, now time.Time) error {
	if err := checkState(CommandSendToSupplier, r); err != nil {
		return err
	}
	r.SentAt = &now
	r.Status = models.StatusSent
	return nil
}

func RecordPayment(r *models.MaterialRequest, amount decimal.Decimal) (PaymentResult, error) {
	if err := checkState(CommandRecordPayment, r); err != nil {
		return PaymentResult{}, err
	}
	res := ApplyPayment(r.TotalAmount, r.PaidAmount, amount)
	if overpaid := r.OverpaidAmount.Add(res.Excess); overpaid.GreaterThanOrEqual(MaxMoney) {
		return PaymentResult{}, apperr.Validation("overpaid amount on material request %s would reach %s", r.RequestNumber, MaxMoney)
	}
	r.PaidAmount = res.PaidAmount
	r.OverpaidAmount = r.OverpaidAmount.Add(res.Excess)
	r.Status = res.Status
	return res, nil
}

// ConfirmDelivery records received quantities per line. Unknown lines and
// quantities above the ordered amount are rejected before anything changes.
func ConfirmDelivery(r *models.MaterialRequest, deliveries []models.DeliveredItemInput, now time.Time) error {
	if err := checkState(CommandConfirmDelivery, r); err != nil {
		return err
	}
	delivered := make(map[string]int, len(r.Items))
	if len(deliveries) == 0 {
		for _, it := range r.Items {
			delivered[it.ID] = it.Quantity
		}
	} else {
		byID := make(map[string]models.MaterialRequestItem, len(r.Items))
		for _, it := range r.Items {
			byID[it.ID] = it
		}
		for _, d := range deliveries {
			it, ok := byID[d.ItemID]
			if !ok {
				return apperr.Validation("item %s does not belong to material request %s", d.ItemID, r.RequestNumber)
			}
			if d.DeliveredQuantity > it.Quantity {
				return apperr.Validation("delivered quantity %d for %s exceeds ordered quantity %d", d.DeliveredQuantity, it.ProductName, it.Quantity)
			}
			delivered[d.ItemID] = d.DeliveredQuantity
		}
	}
	for i := range r.Items {
		r.Items[i].DeliveredQuantity = delivered[r.Items[i].ID]
	}
	r.DeliveredAt = &now
	r.Status = models.StatusDelivered
	return nil
}

func Cancel(r *models.MaterialRequest, reason string, now time.Time) error {
	if err := checkState(CommandCancel, r); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	r.CancellationReason = &reason
	r.CancelledAt = &now
	r.Status = models.StatusCancelled
	return nil
}

func Complete(r *models.MaterialRequest, now time.Time) error {
	if err := checkState(CommandComplete, r); err != nil {
		return err
	}
	r.CompletedAt = &now
	r.Status = models.StatusCompleted
	return nil
}

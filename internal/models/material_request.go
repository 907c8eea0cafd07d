package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MaterialRequestStatus string

const (
	StatusDraft         MaterialRequestStatus = "DRAFT"
	StatusNew           MaterialRequestStatus = "NEW"
	StatusApproved      MaterialRequestStatus = "APPROVED"
	StatusRejected      MaterialRequestStatus = "REJECTED"
	StatusSent          MaterialRequestStatus = "SENT"
	StatusPaid          MaterialRequestStatus = "PAID"
	StatusPartiallyPaid MaterialRequestStatus = "PARTIALLY_PAID"
	StatusDelivered     MaterialRequestStatus = "DELIVERED"
	StatusCompleted     MaterialRequestStatus = "COMPLETED"
	StatusCancelled     MaterialRequestStatus = "CANCELLED"
)

// AllStatuses lists the closed status set in lifecycle order.
var AllStatuses = []MaterialRequestStatus{
	StatusDraft, StatusNew, StatusApproved, StatusRejected, StatusSent,
	StatusPaid, StatusPartiallyPaid, StatusDelivered, StatusCompleted, StatusCancelled,
}

func (s MaterialRequestStatus) IsValid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no command can leave this status.
func (s MaterialRequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Rank orders priorities from low (0) to urgent (3).
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}

// MaterialRequest is a procurement request owned by one organization.
type MaterialRequest struct {
	ID                 string                `json:"id"`
	OrganizationID     string                `json:"organization_id"`
	RequestNumber      string                `json:"request_number"`
	RequesterID        string                `json:"requester_id"`
	SupplierID         *string               `json:"supplier_id"`
	Status             MaterialRequestStatus `json:"status"`
	Priority           Priority              `json:"priority"`
	TotalAmount        decimal.Decimal       `json:"total_amount"`
	PaidAmount         decimal.Decimal       `json:"paid_amount"`
	OverpaidAmount     decimal.Decimal       `json:"overpaid_amount"`
	Notes              string                `json:"notes"`
	SubmittedAt        *time.Time            `json:"submitted_at"`
	ApprovedBy         *string               `json:"approved_by"`
	ApprovedAt         *time.Time            `json:"approved_at"`
	RejectionReason    *string               `json:"rejection_reason"`
	RejectedBy         *string               `json:"rejected_by"`
	RejectedAt         *time.Time            `json:"rejected_at"`
	SentAt             *time.Time            `json:"sent_at"`
	DeliveredAt        *time.Time            `json:"delivered_at"`
	CompletedAt        *time.Time            `json:"completed_at"`
	CancelledAt        *time.Time            `json:"cancelled_at"`
	CancellationReason *string               `json:"cancellation_reason"`
	Version            int                   `json:"version"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
	DeletedAt          *time.Time            `json:"-"`
	Items              []MaterialRequestItem `json:"items"`
}

// UnpaidAmount is the part of the total not yet covered by payments.
func (r *MaterialRequest) UnpaidAmount() decimal.Decimal {
	return r.TotalAmount.Sub(r.PaidAmount)
}

// Clone returns a deep copy, items included.
func (r *MaterialRequest) Clone() *MaterialRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.SupplierID = cloneString(r.SupplierID)
	c.SubmittedAt = cloneTime(r.SubmittedAt)
	c.ApprovedBy = cloneString(r.ApprovedBy)
	c.ApprovedAt = cloneTime(r.ApprovedAt)
	c.RejectionReason = cloneString(r.RejectionReason)
	c.RejectedBy = cloneString(r.RejectedBy)
	c.RejectedAt = cloneTime(r.RejectedAt)
	c.SentAt = cloneTime(r.SentAt)
	c.DeliveredAt = cloneTime(r.DeliveredAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	c.CancellationReason = cloneString(r.CancellationReason)
	c.DeletedAt = cloneTime(r.DeletedAt)
	if r.Items != nil {
		c.Items = make([]MaterialRequestItem, len(r.Items))
		copy(c.Items, r.Items)
	}
	return &c
}

// MaterialRequestItem is a line of a request. Product fields are a snapshot
// taken when the line was written.
type MaterialRequestItem struct {
	ID                string          `json:"id"`
	RequestID         string          `json:"request_id"`
	Position          int             `json:"position"`
	ProductID         string          `json:"product_id"`
	ProductName       string          `json:"product_name"`
	ProductSKU        string          `json:"product_sku"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	DeliveredQuantity int             `json:"delivered_quantity"`
}

// MaterialRequestHistory is one append-only audit row per transition.
type MaterialRequestHistory struct {
	ID             string                `json:"id"`
	RequestID      string                `json:"request_id"`
	OrganizationID string                `json:"organization_id"`
	Command        string                `json:"command"`
	FromStatus     MaterialRequestStatus `json:"from_status,omitempty"`
	ToStatus       MaterialRequestStatus `json:"to_status"`
	UserID         string                `json:"user_id"`
	Comment        *string               `json:"comment"`
	Timestamp      time.Time             `json:"timestamp"`
}

// MaterialRequestPayment records one recordPayment call. AppliedAmount is the
// part that counted towards PaidAmount; the rest was overpayment.
type MaterialRequestPayment struct {
	ID             string          `json:"id"`
	RequestID      string          `json:"request_id"`
	OrganizationID string          `json:"organization_id"`
	Amount         decimal.Decimal `json:"amount"`
	AppliedAmount  decimal.Decimal `json:"applied_amount"`
	Reference      string          `json:"reference"`
	Note           string          `json:"note"`
	RecordedBy     string          `json:"recorded_by"`
	RecordedAt     time.Time       `json:"recorded_at"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

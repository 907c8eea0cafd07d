package models

import "github.com/shopspring/decimal"

// Actor is the authenticated caller a command runs for.
type Actor struct {
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
}

type MaterialRequestItemInput struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	ProductSKU  string          `json:"product_sku"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type CreateMaterialRequestRequest struct {
	SupplierID *string                    `json:"supplier_id"`
	Priority   Priority                   `json:"priority"`
	Notes      string                     `json:"notes"`
	Items      []MaterialRequestItemInput `json:"items"`
}

// UpdateMaterialRequestRequest replaces only the fields that are set. A nil
// Items keeps the current lines; an empty slice removes them all.
type UpdateMaterialRequestRequest struct {
	SupplierID      *string                     `json:"supplier_id"`
	Priority        *Priority                   `json:"priority"`
	Notes           *string                     `json:"notes"`
	Items           *[]MaterialRequestItemInput `json:"items"`
	ExpectedVersion *int                        `json:"expected_version"`
}

type TransitionRequest struct {
	Comment string `json:"comment"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type RecordPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	Note      string          `json:"note"`
}

type DeliveredItemInput struct {
	ItemID            string `json:"item_id"`
	DeliveredQuantity int    `json:"delivered_quantity"`
}

// ConfirmDeliveryRequest lists received quantities. With no items every line
// is taken as delivered in full.
type ConfirmDeliveryRequest struct {
	Items   []DeliveredItemInput `json:"items"`
	Comment string               `json:"comment"`
}

type MaterialRequestFilter struct {
	Status      MaterialRequestStatus
	Priority    Priority
	RequesterID string
	SupplierID  string
	Search      string
	Page        int
	Limit       int
	SortBy      string
	SortOrder   string
}

type MaterialRequestPage struct {
	Data       []*MaterialRequest `json:"data"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalPages int                `json:"total_pages"`
}

type MaterialRequestStats struct {
	Total           int             `json:"total"`
	Draft           int             `json:"draft"`
	PendingApproval int             `json:"pending_approval"`
	Approved        int             `json:"approved"`
	Rejected        int             `json:"rejected"`
	Sent            int             `json:"sent"`
	PartiallyPaid   int             `json:"partially_paid"`
	Paid            int             `json:"paid"`
	Delivered       int             `json:"delivered"`
	Completed       int             `json:"completed"`
	Cancelled       int             `json:"cancelled"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	UnpaidAmount    decimal.Decimal `json:"unpaid_amount"`
	OverpaidAmount  decimal.Decimal `json:"overpaid_amount"`
}

// NewMaterialRequestStats returns empty stats with zeroed money totals.
func NewMaterialRequestStats() *MaterialRequestStats {
	return &MaterialRequestStats{
		TotalAmount:    decimal.Zero,
		PaidAmount:     decimal.Zero,
		UnpaidAmount:   decimal.Zero,
		OverpaidAmount: decimal.Zero,
	}
}

// AddStatus increments the bucket for one request in the given status.
func (s *MaterialRequestStats) AddStatus(status MaterialRequestStatus, n int) {
	s.Total += n
	switch status {
	case StatusDraft:
		s.Draft += n
	case StatusNew:
		s.PendingApproval += n
	case StatusApproved:
		s.Approved += n
	case StatusRejected:
		s.Rejected += n
	case StatusSent:
		s.Sent += n
	case StatusPartiallyPaid:
		s.PartiallyPaid += n
	case StatusPaid:
		s.Paid += n
	case StatusDelivered:
		s.Delivered += n
	case StatusCompleted:
		s.Completed += n
	case StatusCancelled:
		s.Cancelled += n
	}
}

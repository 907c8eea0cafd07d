package documents

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf/v2"

	"vendfleet-backend/internal/models"
	"vendfleet-backend/internal/timeutil"
)

// RenderOrderSheet renders the supplier order sheet of a request: header,
// line items, totals and the payment ledger.
func RenderOrderSheet(r *models.MaterialRequest, payments []models.MaterialRequestPayment) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetTitle("Material Request "+r.RequestNumber, false)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// Header
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(190, 10, "Material Request "+r.RequestNumber, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 6, fmt.Sprintf("Generated: %s", timeutil.Format(timeutil.Now(), timeutil.DisplayLayout)), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(190, 8, "Request", "1", 1, "L", true, 0, "")

	supplier := "-"
	if r.SupplierID != nil {
		supplier = *r.SupplierID
	}
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(95, 7, "Status: "+string(r.Status), "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, "Priority: "+string(r.Priority), "RB", 1, "L", false, 0, "")
	pdf.CellFormat(95, 7, tr("Supplier: "+supplier), "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, "Created: "+timeutil.Format(r.CreatedAt, timeutil.DateLayout), "RB", 1, "L", false, 0, "")
	if r.Notes != "" {
		pdf.MultiCell(190, 6, tr("Notes: "+r.Notes), "1", "L", false)
	}
	pdf.Ln(5)

	// Items
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(190, 8, "Items", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	pdf.CellFormat(10, 7, "#", "1", 0, "C", true, 0, "")
	pdf.CellFormat(70, 7, "Product", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "SKU", "1", 0, "C", true, 0, "")
	pdf.CellFormat(20, 7, "Qty", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Unit Price", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Total", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, it := range r.Items {
		name := it.ProductName
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		pdf.CellFormat(10, 6, fmt.Sprintf("%d", it.Position), "1", 0, "C", false, 0, "")
		pdf.CellFormat(70, 6, tr(name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, tr(it.ProductSKU), "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", it.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, it.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, it.TotalPrice.StringFixed(2), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(5)

	// Totals
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(190, 8, "Financial Summary", "1", 1, "L", true, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(63, 8, "Total: "+r.TotalAmount.StringFixed(2), "1", 0, "C", false, 0, "")
	pdf.CellFormat(63, 8, "Paid: "+r.PaidAmount.StringFixed(2), "1", 0, "C", false, 0, "")
	pdf.CellFormat(64, 8, "Unpaid: "+r.UnpaidAmount().StringFixed(2), "1", 1, "C", false, 0, "")
	if r.OverpaidAmount.IsPositive() {
		pdf.SetFillColor(255, 230, 180)
		pdf.CellFormat(190, 8, "Overpaid: "+r.OverpaidAmount.StringFixed(2), "1", 1, "C", true, 0, "")
	}

	if len(payments) > 0 {
		pdf.Ln(5)
		pdf.SetFont("Arial", "B", 12)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(190, 8, "Payment History", "1", 1, "L", true, 0, "")

		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(200, 200, 200)
		pdf.CellFormat(40, 7, "Date", "1", 0, "C", true, 0, "")
		pdf.CellFormat(45, 7, "Reference", "1", 0, "C", true, 0, "")
		pdf.CellFormat(35, 7, "Amount", "1", 0, "C", true, 0, "")
		pdf.CellFormat(70, 7, "Note", "1", 1, "C", true, 0, "")

		pdf.SetFont("Arial", "", 10)
		for _, p := range payments {
			note := p.Note
			if len(note) > 35 {
				note = note[:32] + "..."
			}
			pdf.CellFormat(40, 6, timeutil.Format(p.RecordedAt, timeutil.DateLayout), "1", 0, "C", false, 0, "")
			pdf.CellFormat(45, 6, tr(p.Reference), "1", 0, "C", false, 0, "")
			pdf.CellFormat(35, 6, p.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
			pdf.CellFormat(70, 6, tr(note), "1", 1, "L", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	settlement "poultry-core/internal/settlement/domain"
)

// BuildStatementPDF renders the daily settlement statement.
func BuildStatementPDF(s *settlement.Settlement, records []settlement.VarianceRecord) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Daily Settlement Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Store: %d", s.StoreID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Date: %s", s.Date.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", s.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Version: %d", s.Version))
	pdf.Ln(5)
	if !s.SubmittedAt.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Submitted: %s by %s", s.SubmittedAt.Format(time.RFC3339), s.SubmittedBy))
		pdf.Ln(5)
	}
	if !s.ApprovedAt.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Approved: %s by %s", s.ApprovedAt.Format(time.RFC3339), s.ApprovedBy))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Declared Cash: %s", s.DeclaredCash.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Expected Cash: %s", s.ExpectedCash.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Cash Variance: %s", s.CashVariance.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Expenses: %s", s.ExpenseAmount.StringFixed(2)))
	pdf.Ln(8)

	// Stock items table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Bird", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Expected (kg)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Declared (kg)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Variance (kg)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, item := range s.Items {
		pdf.CellFormat(35, 6, string(item.BirdType), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, string(item.InventoryType), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, item.ExpectedKg.StringFixed(3), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, item.DeclaredKg.StringFixed(3), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, item.VarianceKg.StringFixed(3), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(records) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(55, 6, "Variance Record", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Kind", "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, "Amount (kg)", "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, "Resolution", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, record := range records {
			pdf.CellFormat(55, 6, record.ID, "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 6, string(record.VarianceType), "1", 0, "C", false, 0, "")
			pdf.CellFormat(35, 6, record.VarianceKg.StringFixed(3), "1", 0, "R", false, 0, "")
			pdf.CellFormat(35, 6, string(record.Status), "1", 0, "C", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

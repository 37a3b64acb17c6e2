package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	inventory "poultry-core/internal/inventory/domain"
)

// BuildMovementXLSX renders a store's daily movement reports as a workbook.
func BuildMovementXLSX(storeID int, date time.Time, reports []inventory.MovementReport) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	movementSheet := "movement"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(movementSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Daily Movement Report")
	_ = f.SetCellValue(summarySheet, "A3", "Store")
	_ = f.SetCellValue(summarySheet, "B3", storeID)
	_ = f.SetCellValue(summarySheet, "A4", "Date")
	_ = f.SetCellValue(summarySheet, "B4", date.UTC().Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A5", "Pools")
	_ = f.SetCellValue(summarySheet, "B5", len(reports))

	headers := []string{
		"Bird", "Type", "Opening", "Purchases", "Proc In", "Proc Out",
		"Sales", "Xfer In", "Xfer Out", "Wastage", "Adjustments", "Closing", "Balanced",
	}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(movementSheet, cell, header)
	}
	for i, report := range reports {
		row := i + 2
		values := []any{
			string(report.Key.BirdType),
			string(report.Key.InventoryType),
			report.Opening.StringFixed(3),
			report.Purchases.StringFixed(3),
			report.ProcessingIn.StringFixed(3),
			report.ProcessingOut.StringFixed(3),
			report.Sales.StringFixed(3),
			report.TransfersIn.StringFixed(3),
			report.TransfersOut.StringFixed(3),
			report.Wastage.StringFixed(3),
			report.Adjustments.StringFixed(3),
			report.Closing.StringFixed(3),
			report.Balanced(),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(movementSheet, cell, value)
		}
	}
	_ = f.SetColWidth(movementSheet, "A", "B", 14)
	_ = f.SetColWidth(movementSheet, "C", "M", 12)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("movement export: %w", err)
	}
	return buf.Bytes(), nil
}

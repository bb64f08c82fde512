package reports

import (
	"io"

	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/xuri/excelize/v2"
)

// ExcelExporter is a report row that can be written as one spreadsheet line.
type ExcelExporter interface {
	GetCellValues() []interface{}
}

func (r *OnHandLot) GetCellValues() []interface{} {
	return []interface{}{r.LotNumber, r.IngredientName, r.SupplierId, r.OnHandOz.InexactFloat64(), r.CostPerUnit.InexactFloat64(), utils.FormatDate(r.ExpirationDate)}
}

func (r *NearExpiryLot) GetCellValues() []interface{} {
	return []interface{}{r.LotNumber, r.IngredientName, r.OnHandOz.InexactFloat64(), utils.FormatDate(r.ExpirationDate), r.DaysUntilExpiry}
}

func (r *SupplierSpend) GetCellValues() []interface{} {
	return []interface{}{r.SupplierId, r.SupplierName, r.TotalSpent.InexactFloat64()}
}

var (
	OnHandLotHeadings     = []string{"Lot", "Ingredient", "Supplier", "On Hand (oz)", "Cost / oz", "Expires"}
	NearExpiryLotHeadings = []string{"Lot", "Ingredient", "On Hand (oz)", "Expires", "Days Left"}
	SupplierSpendHeadings = []string{"Supplier Id", "Supplier", "Total Spent"}
)

// ToExcelRows adapts a typed report slice for WriteExcel.
func ToExcelRows[T ExcelExporter](rows []T) []ExcelExporter {
	out := make([]ExcelExporter, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	return out
}

// WriteExcel writes headings on row 1 and one row per record below them to a single-sheet workbook.
func WriteExcel(w io.Writer, sheetName string, headings []string, data []ExcelExporter) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	if err := f.SetSheetRow(sheetName, "A1", &headings); err != nil {
		return err
	}
	for i, d := range data {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := d.GetCellValues()
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

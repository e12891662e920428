package reports

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	transactionsSheet = "Transactions"
	summarySheet      = "Summary"

	XlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var transactionHeadings = []string{
	"Completed At", "Reference", "Direction", "Owner", "Type ID", "Material",
	"Quantity", "Unit Price", "Total Price", "Stock After", "Contract",
}

var summaryHeadings = []string{
	"Type ID", "Material", "Quantity In", "Quantity Out", "Paid Out", "Collected", "Stock After",
}

func setRow(f *excelize.File, sheet string, rowNo int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNo)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func headingRow(headings []string) []interface{} {
	out := make([]interface{}, len(headings))
	for i, h := range headings {
		out[i] = h
	}
	return out
}

// ExcelFile renders the report as a two-sheet workbook. Money cells are numeric.
func (r *TransactionReport) ExcelFile() (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", transactionsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	if err := setRow(f, transactionsSheet, 1, headingRow(transactionHeadings)); err != nil {
		return nil, err
	}
	for i, row := range r.Rows {
		contract := ""
		if row.ContractId != nil {
			contract = fmt.Sprint(*row.ContractId)
		}
		values := []interface{}{
			row.CompletedAt.UTC().Format(time.RFC3339),
			row.Reference,
			string(row.Direction),
			row.OwnerId,
			row.TypeId,
			row.TypeName,
			row.Quantity,
			row.UnitPrice.InexactFloat64(),
			row.TotalPrice.InexactFloat64(),
			row.StockAfter,
			contract,
		}
		if err := setRow(f, transactionsSheet, i+2, values); err != nil {
			return nil, err
		}
	}

	if err := setRow(f, summarySheet, 1, headingRow(summaryHeadings)); err != nil {
		return nil, err
	}
	rowNo := 2
	for _, s := range r.Summary {
		values := []interface{}{
			s.TypeId,
			s.TypeName,
			s.QuantityIn,
			s.QuantityOut,
			s.ValuePaidOut.InexactFloat64(),
			s.ValueCollected.InexactFloat64(),
			s.LastStockAfter,
		}
		if err := setRow(f, summarySheet, rowNo, values); err != nil {
			return nil, err
		}
		rowNo++
	}
	totals := []interface{}{"", "Total", "", "", r.TotalPaidOut.InexactFloat64(), r.TotalCollected.InexactFloat64(), ""}
	if err := setRow(f, summarySheet, rowNo, totals); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *TransactionReport) WriteExcel(w io.Writer) error {
	f, err := r.ExcelFile()
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

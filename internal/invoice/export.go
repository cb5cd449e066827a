package invoice

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/gst-invoice-extractor/internal/gst"
	"github.com/zombor/gst-invoice-extractor/internal/scanning"
)

// ExportHeaders are the column titles of the CSV and XLSX exports
var ExportHeaders = []string{"Date", "ABN", "Amount (inc. GST)", "GST", "Description", "Category"}

const exportSheet = "Invoices"

func exportRow(r scanning.InvoiceRecord) []string {
	return []string{r.Date, r.ABN, r.AmountIncGST, r.GST, r.Description, r.Category}
}

// WriteCSV writes records as CSV with a header row
func WriteCSV(w io.Writer, records []scanning.InvoiceRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeaders); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(exportRow(r)); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes records as a single-sheet workbook. A trailing GST Check
// column flags rows whose GST is not one eleventh of the amount.
func WriteXLSX(w io.Writer, records []scanning.InvoiceRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	headers := append(append([]string{}, ExportHeaders...), "GST Check")
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	mismatchStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Color: "9A0511"}})
	if err != nil {
		return fmt.Errorf("creating mismatch style: %w", err)
	}

	if err := setRow(f, 1, headers); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, r := range records {
		row := i + 2
		status := gst.Check(r.AmountIncGST, r.GST)
		if err := setRow(f, row, append(exportRow(r), string(status))); err != nil {
			return err
		}
		if status != gst.Mismatch {
			continue
		}

		cell, err := excelize.CoordinatesToCellName(len(headers), row)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(exportSheet, cell, cell, mismatchStyle); err != nil {
			return fmt.Errorf("styling row %d: %w", row, err)
		}
	}

	for _, col := range []struct {
		from, to string
		width    float64
	}{
		{"A", "A", 12}, // date
		{"B", "B", 16}, // abn
		{"C", "D", 16},
		{"E", "E", 40}, // description
		{"F", "G", 18},
	} {
		if err := f.SetColWidth(exportSheet, col.from, col.to, col.width); err != nil {
			return fmt.Errorf("sizing columns %s-%s: %w", col.from, col.to, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// setRow writes values across row starting at column A
func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(exportSheet, cell, &cells); err != nil {
		return fmt.Errorf("writing row %d: %w", row, err)
	}
	return nil
}

// Records returns the extracted fields of each invoice
func Records(invoices []*Invoice) []scanning.InvoiceRecord {
	records := make([]scanning.InvoiceRecord, len(invoices))
	for i, inv := range invoices {
		records[i] = inv.InvoiceRecord
	}
	return records
}

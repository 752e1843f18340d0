package reconcile

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// STATEMENT EXPORTS - all three render Statement.Table() under Header
// =============================================================================

// WriteCSV writes the statement as comma-separated text.
func WriteCSV(w io.Writer, st *Statement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	if err := cw.WriteAll(st.Table()); err != nil {
		return fmt.Errorf("write statement csv: %w", err)
	}
	return nil
}

// BuildStatementXLSX renders a two-sheet workbook: summary and transactions.
func BuildStatementXLSX(st *Statement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	txSheet := "transactions"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(txSheet); err != nil {
		return nil, err
	}

	if err := fillWorkbook(f, st, summarySheet, txSheet); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fillWorkbook(f *excelize.File, st *Statement, summarySheet, txSheet string) error {
	debit, credit := st.Totals()
	summary := [][2]any{
		{"Ledger Statement", ""},
		{"Category", st.Category},
		{"From", st.Period.Start.String()},
		{"To", st.Period.End.String()},
		{"Opening Balance", st.Opening.String()},
		{"Total Debit", debit.StringFixed(2)},
		{"Total Credit", credit.StringFixed(2)},
		{"Closing Balance", st.Closing.String()},
		{"Transactions", len(st.Rows)},
	}
	for i, kv := range summary {
		row := i + 1
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), kv[0]); err != nil {
			return fmt.Errorf("write statement summary: %w", err)
		}
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), kv[1]); err != nil {
			return fmt.Errorf("write statement summary: %w", err)
		}
	}

	rows := append([][]string{Header}, st.Table()...)
	for i, cols := range rows {
		for j, v := range cols {
			ref, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(txSheet, ref, v); err != nil {
				return fmt.Errorf("write statement row %d: %w", i, err)
			}
		}
	}
	return nil
}

// BuildStatementPDF renders a landscape A4 statement.
func BuildStatementPDF(st *Statement) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Ledger Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Category: %s", st.Category))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s", st.Period.Start, st.Period.End))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	widths := []float64{24, 38, 22, 38, 75, 25, 25, 30}
	aligns := []string{"C", "L", "L", "L", "L", "R", "R", "R"}

	pdf.SetFont("Arial", "B", 9)
	for i, h := range Header {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, cols := range st.Table() {
		for i, v := range cols {
			pdf.CellFormat(widths[i], 6, truncate(pdf, v, widths[i]-2), "1", 0, aligns[i], false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}

package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"scalesync/internal/query/application"
)

const (
	pdfMargin     = 10.0
	pdfRowHeight  = 6.0
	pdfTimeWidth  = 38.0
	pdfMinColumns = 6
)

// WritePDF renders rows as a table under title.
func WritePDF(w io.Writer, rows []application.Row, title string) error {
	columns := Columns(rows)
	orientation := "P"
	if len(columns) > pdfMinColumns {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 8)
	pdf.Cell(0, 5, fmt.Sprintf("Generated: %s  Rows: %d", time.Now().UTC().Format(TimeLayout), len(rows)))
	pdf.Ln(7)

	widths := columnWidths(pdf, columns)
	header := func() {
		pdf.SetFont("Arial", "B", 8)
		for i, col := range columns {
			pdf.CellFormat(widths[i], pdfRowHeight, col, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	header()
	_, pageHeight := pdf.GetPageSize()
	for _, row := range rows {
		if pdf.GetY()+pdfRowHeight > pageHeight-pdfMargin {
			pdf.AddPage()
			header()
		}
		for i, col := range columns {
			align := "R"
			if i < 2 {
				align = "L"
			}
			pdf.CellFormat(widths[i], pdfRowHeight, FormatValue(row[col]), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

// columnWidths gives time a fixed width and splits the rest evenly.
func columnWidths(pdf *gofpdf.Fpdf, columns []string) []float64 {
	pageWidth, _ := pdf.GetPageSize()
	usable := pageWidth - 2*pdfMargin
	widths := make([]float64, len(columns))
	rest := (usable - pdfTimeWidth) / float64(len(columns)-1)
	for i := range columns {
		widths[i] = rest
		if i == 1 {
			widths[i] = pdfTimeWidth
		}
	}
	return widths
}

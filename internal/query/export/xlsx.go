package export

import (
	"io"

	"github.com/xuri/excelize/v2"

	"scalesync/internal/query/application"
)

const sheetName = "telemetry"

// WriteXLSX writes rows as a single sheet workbook.
func WriteXLSX(w io.Writer, rows []application.Row) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	columns := Columns(rows)
	header := make([]any, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	for i, row := range rows {
		cells := make([]any, len(columns))
		for j, col := range columns {
			cells[j] = xlsxValue(row[col])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
			return err
		}
	}
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return f.Write(w)
}

// xlsxValue keeps float cells numeric.
func xlsxValue(v any) any {
	if value, ok := v.(float64); ok {
		return value
	}
	return FormatValue(v)
}

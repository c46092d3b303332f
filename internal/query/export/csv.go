package export

import (
	"bufio"
	"io"
	"strings"

	"scalesync/internal/query/application"
)

// WriteCSV writes rows with a header line. Absent cells are empty.
func WriteCSV(w io.Writer, rows []application.Row) error {
	columns := Columns(rows)
	bw := bufio.NewWriter(w)
	if err := writeLine(bw, columns); err != nil {
		return err
	}
	cells := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			cells[i] = FormatValue(row[col])
		}
		if err := writeLine(bw, cells); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeLine(w *bufio.Writer, cells []string) error {
	for i, cell := range cells {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(quote(cell)); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

// quote wraps a cell only when it holds a comma, quote or line break.
func quote(cell string) string {
	if !strings.ContainsAny(cell, ",\"\r\n") {
		return cell
	}
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}

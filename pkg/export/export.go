// Package export renders tabular reports as CSV or PDF documents.
package export

import (
	"fmt"
	"strings"
)

// Format names a supported output encoding.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat normalises a user supplied format, defaulting to CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unsupported export format %q", raw)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}

// Table is an ordered set of columns and rows; each row is aligned with Columns.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]string
}

// AddRow appends values, padding or truncating to the column count.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.Columns))
	copy(row, values)
	t.Rows = append(t.Rows, row)
}

// Renderer encodes a table.
type Renderer interface {
	Render(Table) ([]byte, error)
}

// Render encodes the table using the renderer registered for format.
func Render(format Format, table Table) ([]byte, error) {
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("%s export requires at least one column", format)
	}
	var r Renderer
	switch format {
	case FormatCSV:
		r = csvRenderer{}
	case FormatPDF:
		r = pdfRenderer{}
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	return r.Render(table)
}

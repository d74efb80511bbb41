// Package export renders scrape results as CSV files and terminal tables.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/use-agent/jobscrape/models"
)

// Column is one exported record field.
type Column struct {
	Header string
	Field  string
}

// DefaultColumns are the fields every job-application worker reports.
var DefaultColumns = []Column{
	{"Title", "title"},
	{"Company", "company"},
	{"Date", "date"},
	{"Status", "status"},
	{"Link", "link"},
}

// utf8BOM makes spreadsheet apps open the file as UTF-8.
const utf8BOM = "\ufeff"

// Filename is the suggested download name for an export made at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("job_application_history_%s.csv", t.Format("20060102-150405"))
}

// WriteCSV writes records as RFC 4180 CSV preceded by a UTF-8 BOM.
// A nil columns slice means DefaultColumns.
func WriteCSV(w io.Writer, records []models.Record, columns []Column) error {
	if columns == nil {
		columns = DefaultColumns
	}
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	row := make([]string, len(columns))
	for i, c := range columns {
		row[i] = c.Header
	}
	if err := cw.Write(row); err != nil {
		return err
	}

	for _, rec := range records {
		for i, c := range columns {
			row[i] = rec.Field(c.Field)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// RenderTable writes records as a boxed terminal table.
func RenderTable(w io.Writer, records []models.Record, columns []Column) {
	if columns == nil {
		columns = DefaultColumns
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)

	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c.Header
	}
	t.AppendHeader(header)

	for _, rec := range records {
		row := make(table.Row, len(columns))
		for i, c := range columns {
			row[i] = rec.Field(c.Field)
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d records", len(records))})

	t.SetStyle(table.StyleRounded)
	t.Render()
}

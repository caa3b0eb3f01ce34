package message

import (
	"encoding/csv"
	"io"

	"github.com/pkg/errors"

	"github.com/trezcool/mashovsend/core/student"
)

// ExportHeader is the header of the export-only file.
var ExportHeader = []string{"student_display_name", "student_id", "subject", "body"}

// ExportRow is one composed message written by export-only mode.
type ExportRow struct {
	DisplayName string
	StudentID   string
	Subject     string
	Body        string
	Err         error // composition failure; the row is exported with empty subject/body
}

// ComposeAll composes every record without contacting the portal.
func (c *Composer) ComposeAll(records []student.Record) []ExportRow {
	rows := make([]ExportRow, 0, len(records))
	for _, rec := range records {
		row := ExportRow{DisplayName: rec.DisplayName(), StudentID: rec.ID}
		row.Subject, row.Body, row.Err = c.Compose(rec)
		rows = append(rows, row)
	}
	return rows
}

// WriteExport writes rows as CSV with ExportHeader.
func WriteExport(w io.Writer, rows []ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return errors.Wrap(err, "writing export header")
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.DisplayName, r.StudentID, r.Subject, r.Body}); err != nil {
			return errors.Wrap(err, "writing export row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing export")
}

package student

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/mashovsend/core"
)

const (
	utf8BOM = "\ufeff"

	// minimum similarity for a header to be suggested in place of a missing column
	suggestMinRatio = .6
)

// Table is a parsed input file: its header and one Record per data row, in file order.
type Table struct {
	Header  []string
	Records []Record
}

// Limit returns the first n records of t; n <= 0 keeps everything.
func (t Table) Limit(n int) Table {
	if n <= 0 || n >= len(t.Records) {
		return t
	}
	return Table{Header: t.Header, Records: t.Records[:n]}
}

// ReadTable parses a UTF-8 CSV with a header row. Only the identifier column is required;
// other logical columns missing from the header read as "".
func ReadTable(r io.Reader, cols Columns) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return Table{}, core.NewValidationError(errors.New("input file is empty"))
		}
		return Table{}, errors.Wrap(err, "reading csv header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		header[i] = NormalizeText(h)
		if _, dup := colIdx[header[i]]; !dup {
			colIdx[header[i]] = i
		}
	}

	idCol := NormalizeText(cols.ID)
	if _, ok := colIdx[idCol]; !ok {
		msg := fmt.Sprintf("missing identifier column %q", idCol)
		if s := suggestHeader(idCol, header); s != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", s)
		}
		return Table{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: "id_col", Error: msg})
	}

	getCol := func(row []string, col string) string {
		i, ok := colIdx[NormalizeText(col)]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	tbl := Table{Header: header}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, errors.Wrapf(err, "reading csv row %d", len(tbl.Records)+2)
		}

		raw := make([]string, len(header))
		copy(raw, row)
		fields := make(map[string]string, len(header))
		for i, h := range header {
			if _, ok := fields[h]; !ok && h != "" {
				fields[h] = raw[i]
			}
		}

		rawID := strings.TrimSpace(getCol(row, cols.ID))
		tbl.Records = append(tbl.Records, Record{
			Index:              len(tbl.Records),
			Raw:                raw,
			Fields:             fields,
			RawID:              rawID,
			ID:                 NormalizeID(rawID),
			First:              NormalizeText(getCol(row, cols.First)),
			Last:               NormalizeText(getCol(row, cols.Last)),
			Username:           NormalizeUsername(getCol(row, cols.Username)),
			UsernameWithDomain: NormalizeText(getCol(row, cols.UsernameWithDomain)),
			Password:           NormalizeText(getCol(row, cols.Password)),
		})
	}
	return tbl, nil
}

// WriteTable writes header and the records' original cells, reproducing the input's shape.
func WriteTable(w io.Writer, header []string, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, rec := range records {
		row := make([]string, len(header))
		copy(row, rec.Raw)
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "writing csv row %d", rec.Index+2)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

// suggestHeader returns the header most similar to want, if any is similar enough.
func suggestHeader(want string, header []string) string {
	var (
		best      string
		bestRatio float64
	)
	for _, h := range header {
		if h == "" {
			continue
		}
		ratio := difflib.NewMatcher(strings.Split(want, ""), strings.Split(h, "")).Ratio()
		if ratio > bestRatio {
			best, bestRatio = h, ratio
		}
	}
	if bestRatio < suggestMinRatio {
		return ""
	}
	return best
}

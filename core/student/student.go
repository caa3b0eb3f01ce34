package student

import (
	"strconv"
	"strings"
)

// Columns maps the logical student fields to the headers of the input file.
type Columns struct {
	ID                 string
	First              string
	Last               string
	Username           string
	UsernameWithDomain string
	Password           string
}

// DefaultColumns are the headers of the school's user export.
var DefaultColumns = Columns{
	ID:                 "ת.ז",
	First:              "שם פרטי",
	Last:               "שם משפחה",
	Username:           "שם משתמש",
	UsernameWithDomain: "שם משתמש עם דומיין",
	Password:           "סיסמא",
}

// Merge returns c with every empty header taken from def.
func (c Columns) Merge(def Columns) Columns {
	pick := func(v, d string) string {
		if strings.TrimSpace(v) == "" {
			return d
		}
		return v
	}
	return Columns{
		ID:                 pick(c.ID, def.ID),
		First:              pick(c.First, def.First),
		Last:               pick(c.Last, def.Last),
		Username:           pick(c.Username, def.Username),
		UsernameWithDomain: pick(c.UsernameWithDomain, def.UsernameWithDomain),
		Password:           pick(c.Password, def.Password),
	}
}

// Record is one data row of the input file. It is never mutated once read.
type Record struct {
	Index  int               // zero-based data row index
	Raw    []string          // original cells, in header order
	Fields map[string]string // header -> original cell

	RawID              string
	ID                 string // normalized, see NormalizeID
	First              string
	Last               string
	Username           string
	UsernameWithDomain string
	Password           string
}

func (r Record) DisplayName() string {
	return strings.TrimSpace(r.First + " " + r.Last)
}

// Label identifies the record in log lines.
func (r Record) Label() string {
	name := r.DisplayName()
	switch {
	case name != "" && r.RawID != "":
		return name + " (" + r.RawID + ")"
	case name != "":
		return name
	case r.RawID != "":
		return r.RawID
	}
	return "row " + strconv.Itoa(r.Index+1)
}

package run

import (
	"fmt"
	"strings"

	"github.com/trezcool/mashovsend/core/student"
)

// Summary aggregates the outcomes of a run. It is valid at any point of the run.
type Summary struct {
	RunID        string    `json:"runId"`
	Total        int       `json:"total"`
	SuccessCount int       `json:"successCount"`
	FailureCount int       `json:"failureCount"`
	Stopped      bool      `json:"stopped"`
	Outcomes     []Outcome `json:"-"`
}

func (s *Summary) Add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	if o.IsSuccess() {
		s.SuccessCount++
	} else {
		s.FailureCount++
	}
}

// Processed is the number of records that got an outcome.
func (s Summary) Processed() int {
	return len(s.Outcomes)
}

// Count returns the number of outcomes with status st.
func (s Summary) Count(st Status) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == st {
			n++
		}
	}
	return n
}

// FailedRecords returns the records that were not sent (or dry-run), in input order.
func (s Summary) FailedRecords() []student.Record {
	var recs []student.Record
	for _, o := range s.Outcomes {
		if !o.IsSuccess() {
			recs = append(recs, o.Record)
		}
	}
	return recs
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d succeeded, %d failed", s.SuccessCount, s.FailureCount)

	var parts []string
	for _, st := range []Status{StatusSent, StatusDryRun, StatusSkippedNoMatch, StatusSkippedNoRecipientID, StatusFailed} {
		if n := s.Count(st); n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", st, n))
		}
	}
	if len(parts) > 0 {
		b.WriteString(" (" + strings.Join(parts, ", ") + ")")
	}
	if s.Stopped {
		fmt.Fprintf(&b, "; stopped after %d of %d records", s.Processed(), s.Total)
	}
	return b.String()
}

func (s Summary) clone() Summary {
	c := s
	c.Outcomes = append([]Outcome(nil), s.Outcomes...)
	return c
}

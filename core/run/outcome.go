package run

import "github.com/trezcool/mashovsend/core/student"

// Status is the per-record result kind.
type Status string

const (
	StatusSent                 Status = "sent"
	StatusDryRun               Status = "dry_run"
	StatusSkippedNoMatch       Status = "skipped_no_match"
	StatusSkippedNoRecipientID Status = "skipped_no_recipient_id"
	StatusFailed               Status = "failed"
)

// IsSuccess reports whether s counts as a success. Dry runs do.
func (s Status) IsSuccess() bool {
	return s == StatusSent || s == StatusDryRun
}

// Outcome is the result of processing exactly one input record.
type Outcome struct {
	Index       int            `json:"index"`
	Record      student.Record `json:"-"`
	Status      Status         `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	RecipientID string         `json:"recipientId,omitempty"`
	Err         error          `json:"-"`
}

func (o Outcome) IsSuccess() bool {
	return o.Status.IsSuccess()
}

func newOutcome(rec student.Record, st Status) Outcome {
	return Outcome{Index: rec.Index, Record: rec, Status: st}
}

func failed(rec student.Record, err error) Outcome {
	o := newOutcome(rec, StatusFailed)
	o.Err = err
	o.Reason = err.Error()
	return o
}

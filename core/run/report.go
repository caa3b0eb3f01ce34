package run

import (
	"bytes"
	"context"
	"io"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/mashovsend/core"
	"github.com/trezcool/mashovsend/core/student"
)

const failedRowsFilename = "failed_rows.csv"

// WriteFailed exports the records that were not sent in the shape of the input file.
func WriteFailed(w io.Writer, header []string, s Summary) error {
	return student.WriteTable(w, header, s.FailedRecords())
}

// Notify emails the operator the run summary, with the failed rows attached when there are any.
func Notify(ctx context.Context, svc core.EmailService, to []mail.Address, s Summary, header []string) error {
	if len(to) == 0 {
		return nil
	}

	msg := &core.EmailMessage{
		To:          to,
		Subject:     "Run " + s.RunID + ": " + s.String(),
		TextContent: "Run " + s.RunID + "\n\n" + s.String() + "\n",
	}
	if s.FailureCount > 0 {
		var buf bytes.Buffer
		if err := WriteFailed(&buf, header, s); err != nil {
			return errors.Wrap(err, "run.Notify")
		}
		if err := msg.Attach(&buf, failedRowsFilename, "text/csv"); err != nil {
			return errors.Wrap(err, "run.Notify")
		}
	}
	return errors.Wrap(svc.SendMessages(ctx, msg), "run.Notify")
}

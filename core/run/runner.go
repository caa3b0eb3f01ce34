// Package run drives the batch-send pipeline: one outcome per student record, in input order.
package run

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/mashovsend/core"
	"github.com/trezcool/mashovsend/core/message"
	"github.com/trezcool/mashovsend/core/student"
	"github.com/trezcool/mashovsend/services/portal"
)

// Portal is the part of the portal client the runner needs. It must already be logged in.
type Portal interface {
	ResolveRecipient(ctx context.Context, id string) (*portal.Recipient, error)
	SendMessage(ctx context.Context, msg portal.Message) (portal.Ack, error)
}

// Info describes a run when it starts.
type Info struct {
	ID           string
	Account      string
	Total        int
	DryRun       bool
	SendViaEmail bool
	StartedAt    time.Time
}

// Journal keeps a record of runs. Its failures never stop a run.
type Journal interface {
	StartRun(ctx context.Context, info Info) error
	RecordOutcome(ctx context.Context, runID string, o Outcome) error
	FinishRun(ctx context.Context, runID string, s Summary) error
}

type Options struct {
	Subject      string
	Body         string
	DryRun       bool
	SendViaEmail bool
	Markdown     bool
	Account      string // display name of the logged-in account, for the journal
}

type Runner struct {
	portal     Portal
	opts       Options
	composer   *message.Composer
	composeErr error
	journal    Journal
	logger     core.Logger
}

type RunnerOption func(*Runner)

func WithJournal(j Journal) RunnerOption {
	return func(r *Runner) { r.journal = j }
}

func WithLogger(l core.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner panics on a nil portal. A template that cannot be parsed fails every record of every run.
func NewRunner(p Portal, opts Options, deps ...RunnerOption) *Runner {
	if p == nil {
		panic("run.NewRunner: portal is nil")
	}

	r := &Runner{portal: p, opts: opts, logger: core.NopLogger}
	for _, dep := range deps {
		dep(r)
	}
	r.composer, r.composeErr = message.NewComposer(opts.Subject, opts.Body, opts.Markdown)
	return r
}

// Start returns a lazy run over records. Nothing happens until the first call to Next.
func (r *Runner) Start(ctx context.Context, records []student.Record) *Run {
	run := &Run{
		runner:  r,
		ctx:     ctx,
		records: records,
		summary: Summary{RunID: uuid.New().String(), Total: len(records)},
	}
	run.step = run.begin
	return run
}

// Execute runs records to completion, handing every event to fn (which may be nil).
func (r *Runner) Execute(ctx context.Context, records []student.Record, fn func(Event)) (Summary, error) {
	run := r.Start(ctx, records)
	for run.Next() {
		if fn != nil {
			fn(run.Event())
		}
	}
	return run.Summary(), run.Err()
}

// Run is a finite, non-restartable sequence of events. It is not safe for concurrent use.
type Run struct {
	runner  *Runner
	ctx     context.Context
	records []student.Record
	summary Summary

	step    func()
	pending []Event
	event   Event
	err     error

	// current record
	pos         int
	recipientID string
	subject     string
	body        string
}

func (r *Run) ID() string {
	return r.summary.RunID
}

// Next advances to the next event. It returns false once the summary event has been consumed.
func (r *Run) Next() bool {
	for len(r.pending) == 0 {
		if r.step == nil {
			return false
		}
		r.step()
	}
	r.event, r.pending = r.pending[0], r.pending[1:]
	return true
}

func (r *Run) Event() Event {
	return r.event
}

// Summary returns a snapshot of the outcomes so far.
func (r *Run) Summary() Summary {
	return r.summary.clone()
}

// Err returns the error that stopped the run early, if any.
func (r *Run) Err() error {
	return r.err
}

func (r *Run) emit(ev Event) {
	r.pending = append(r.pending, ev)
}

func (r *Run) logf(idx int, format string, args ...interface{}) {
	r.emit(Event{Kind: EventLog, Index: idx, Message: fmt.Sprintf(format, args...)})
}

func (r *Run) current() student.Record {
	return r.records[r.pos]
}

func (r *Run) begin() {
	opts := r.runner.opts
	if j := r.runner.journal; j != nil {
		err := j.StartRun(r.ctx, Info{
			ID:           r.summary.RunID,
			Account:      opts.Account,
			Total:        len(r.records),
			DryRun:       opts.DryRun,
			SendViaEmail: opts.SendViaEmail,
			StartedAt:    time.Now().UTC(),
		})
		r.journalErr("start", err)
	}

	mode := "sending"
	if opts.DryRun {
		mode = "dry run"
	}
	r.logf(-1, "run %s: %d records (%s)", r.summary.RunID, len(r.records), mode)
	r.step = r.startRecord
}

func (r *Run) startRecord() {
	if r.pos >= len(r.records) {
		r.finish()
		return
	}
	if err := r.ctx.Err(); err != nil {
		r.stop(err)
		return
	}

	r.recipientID, r.subject, r.body = "", "", ""
	r.emit(Event{Kind: EventStatus, Index: r.pos, Status: RowProcessing})
	r.emit(Event{Kind: EventPhase, Index: r.pos, Phase: PhaseResolving})
	r.step = r.resolve
}

func (r *Run) resolve() {
	rec := r.current()
	recipient, err := r.runner.portal.ResolveRecipient(r.ctx, rec.ID)
	r.emit(Event{Kind: EventPhase, Index: r.pos, Phase: PhaseResolved})

	switch {
	case errors.Is(err, portal.ErrNotAuthenticated):
		r.record(failed(rec, err))
		r.stop(err)
		return
	case err != nil:
		r.record(failed(rec, err))
		return
	case recipient == nil:
		o := newOutcome(rec, StatusSkippedNoMatch)
		o.Reason = "no matching student"
		r.record(o)
		return
	case recipient.ID == "":
		o := newOutcome(rec, StatusSkippedNoRecipientID)
		o.Reason = "student has no recipient id"
		r.record(o)
		return
	}

	r.recipientID = recipient.ID
	r.step = r.compose
}

func (r *Run) compose() {
	rec := r.current()
	if err := r.runner.composeErr; err != nil {
		r.record(r.withRecipient(failed(rec, err)))
		return
	}
	subject, body, err := r.runner.composer.Compose(rec)
	if err != nil {
		r.record(r.withRecipient(failed(rec, err)))
		return
	}

	if r.runner.opts.DryRun {
		r.record(r.withRecipient(newOutcome(rec, StatusDryRun)))
		return
	}
	r.subject, r.body = subject, body
	r.emit(Event{Kind: EventPhase, Index: r.pos, Phase: PhaseSending})
	r.step = r.send
}

func (r *Run) send() {
	rec := r.current()
	_, err := r.runner.portal.SendMessage(r.ctx, portal.Message{
		Subject:      r.subject,
		Body:         r.body,
		RecipientIDs: []string{r.recipientID},
		SendViaEmail: r.runner.opts.SendViaEmail,
	})
	r.emit(Event{Kind: EventPhase, Index: r.pos, Phase: PhaseSent})

	switch {
	case errors.Is(err, portal.ErrNotAuthenticated):
		r.record(r.withRecipient(failed(rec, err)))
		r.stop(err)
	case err != nil:
		r.record(r.withRecipient(failed(rec, err)))
	default:
		r.record(r.withRecipient(newOutcome(rec, StatusSent)))
	}
}

func (r *Run) withRecipient(o Outcome) Outcome {
	o.RecipientID = r.recipientID
	return o
}

// record closes the current record with o and moves on to the next one.
func (r *Run) record(o Outcome) {
	r.summary.Add(o)
	if j := r.runner.journal; j != nil {
		r.journalErr("outcome", j.RecordOutcome(r.ctx, r.summary.RunID, o))
	}

	rec := o.Record
	row := RowSuccess
	switch o.Status {
	case StatusSent:
		r.logf(r.pos, "[OK] sent to %s (%s)", rec.Label(), o.RecipientID)
	case StatusDryRun:
		r.logf(r.pos, "[DRY RUN] would send to %s (%s)", rec.Label(), o.RecipientID)
	case StatusSkippedNoMatch:
		row = RowFailed
		r.logf(r.pos, "[SKIP] no match for %s", rec.Label())
	case StatusSkippedNoRecipientID:
		row = RowFailed
		r.logf(r.pos, "[SKIP] could not extract recipient id for %s", rec.Label())
	default:
		row = RowFailed
		r.logf(r.pos, "[FAIL] %s: %s", rec.Label(), o.Reason)
	}
	r.emit(Event{Kind: EventStatus, Index: r.pos, Status: row})
	r.emit(Event{Kind: EventOutcome, Index: r.pos, Outcome: &o})

	r.pos++
	r.step = r.startRecord
}

func (r *Run) stop(err error) {
	r.err = err
	r.summary.Stopped = true
	r.logf(-1, "run stopped: %v", err)
	r.finish()
}

func (r *Run) finish() {
	if j := r.runner.journal; j != nil {
		// the run context may be cancelled already; the journal still gets the end of the run
		r.journalErr("finish", j.FinishRun(context.Background(), r.summary.RunID, r.summary.clone()))
	}
	r.logf(-1, "run %s finished: %s", r.summary.RunID, r.summary)
	s := r.summary.clone()
	r.emit(Event{Kind: EventSummary, Index: -1, Summary: &s})
	r.step = nil
}

func (r *Run) journalErr(op string, err error) {
	if err != nil {
		r.runner.logger.Warn(fmt.Sprintf("run %s: journal %s: %v", r.summary.RunID, op, err))
	}
}

package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mashovsend/core/run"
)

type runRow struct {
	ID           string    `db:"id"`
	Account      string    `db:"account"`
	Total        int       `db:"total"`
	DryRun       bool      `db:"dry_run"`
	SendViaEmail bool      `db:"send_via_email"`
	StartedAt    time.Time `db:"started_at"`
	FinishedAt   null.Time `db:"finished_at"`
	SuccessCount int       `db:"success_count"`
	FailureCount int       `db:"failure_count"`
	Stopped      bool      `db:"stopped"`
}

func (r runRow) toRecord() run.RunRecord {
	return run.RunRecord{
		ID:           r.ID,
		Account:      r.Account,
		Total:        r.Total,
		DryRun:       r.DryRun,
		SendViaEmail: r.SendViaEmail,
		StartedAt:    r.StartedAt.UTC(),
		FinishedAt:   r.FinishedAt.Time.UTC(),
		SuccessCount: r.SuccessCount,
		FailureCount: r.FailureCount,
		Stopped:      r.Stopped,
	}
}

type outcomeRow struct {
	RunID       string      `db:"run_id"`
	RowIndex    int         `db:"row_index"`
	StudentID   string      `db:"student_id"`
	DisplayName string      `db:"display_name"`
	Status      string      `db:"status"`
	Reason      null.String `db:"reason"`
	RecipientID null.String `db:"recipient_id"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (r outcomeRow) toRecord() run.OutcomeRecord {
	return run.OutcomeRecord{
		RunID:       r.RunID,
		Index:       r.RowIndex,
		StudentID:   r.StudentID,
		DisplayName: r.DisplayName,
		Status:      run.Status(r.Status),
		Reason:      r.Reason.String,
		RecipientID: r.RecipientID.String,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

// RunRepository journals runs with sqlx. Queries use `?` and are rebound per driver.
type RunRepository struct {
	db *sqlx.DB
}

var _ run.Store = (*RunRepository)(nil)

func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (repo *RunRepository) StartRun(ctx context.Context, info run.Info) error {
	q := repo.db.Rebind(`INSERT INTO runs (id, account, total, dry_run, send_via_email, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := repo.db.ExecContext(ctx, q, info.ID, info.Account, info.Total, info.DryRun, info.SendViaEmail, info.StartedAt.UTC())
	return errors.Wrap(err, "inserting run")
}

func (repo *RunRepository) RecordOutcome(ctx context.Context, runID string, o run.Outcome) error {
	rec := run.NewOutcomeRecord(runID, o)
	row := outcomeRow{
		RunID:       rec.RunID,
		RowIndex:    rec.Index,
		StudentID:   rec.StudentID,
		DisplayName: rec.DisplayName,
		Status:      string(rec.Status),
		Reason:      null.NewString(rec.Reason, rec.Reason != ""),
		RecipientID: null.NewString(rec.RecipientID, rec.RecipientID != ""),
		CreatedAt:   rec.CreatedAt,
	}
	q := repo.db.Rebind(`INSERT INTO run_outcomes
		(run_id, row_index, student_id, display_name, status, reason, recipient_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := repo.db.ExecContext(ctx, q, row.RunID, row.RowIndex, row.StudentID, row.DisplayName,
		row.Status, row.Reason, row.RecipientID, row.CreatedAt)
	return errors.Wrap(err, "inserting run outcome")
}

func (repo *RunRepository) FinishRun(ctx context.Context, runID string, s run.Summary) error {
	q := repo.db.Rebind(`UPDATE runs SET finished_at = ?, success_count = ?, failure_count = ?, stopped = ?
		WHERE id = ?`)
	res, err := repo.db.ExecContext(ctx, q, null.TimeFrom(time.Now().UTC()), s.SuccessCount, s.FailureCount, s.Stopped, runID)
	if err != nil {
		return errors.Wrap(err, "updating run")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Errorf("run %s not found", runID)
	}
	return nil
}

func (repo *RunRepository) ListRuns(ctx context.Context, limit int) ([]run.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	q := repo.db.Rebind(`SELECT id, account, total, dry_run, send_via_email, started_at, finished_at,
		success_count, failure_count, stopped FROM runs ORDER BY started_at DESC LIMIT ?`)
	if err := repo.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, errors.Wrap(err, "selecting runs")
	}
	recs := make([]run.RunRecord, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, r.toRecord())
	}
	return recs, nil
}

func (repo *RunRepository) RunOutcomes(ctx context.Context, runID string) ([]run.OutcomeRecord, error) {
	var rows []outcomeRow
	q := repo.db.Rebind(`SELECT run_id, row_index, student_id, display_name, status, reason, recipient_id, created_at
		FROM run_outcomes WHERE run_id = ? ORDER BY row_index`)
	if err := repo.db.SelectContext(ctx, &rows, q, runID); err != nil {
		return nil, errors.Wrap(err, "selecting run outcomes")
	}
	recs := make([]run.OutcomeRecord, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, r.toRecord())
	}
	return recs, nil
}

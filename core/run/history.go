package run

import (
	"context"
	"time"
)

// RunRecord is a journaled run. FinishedAt is zero while the run is in progress.
type RunRecord struct {
	ID           string    `json:"id"`
	Account      string    `json:"account"`
	Total        int       `json:"total"`
	DryRun       bool      `json:"dryRun"`
	SendViaEmail bool      `json:"sendViaEmail"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	SuccessCount int       `json:"successCount"`
	FailureCount int       `json:"failureCount"`
	Stopped      bool      `json:"stopped"`
}

func (r RunRecord) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// OutcomeRecord is a journaled outcome. Passwords and message bodies are never kept.
type OutcomeRecord struct {
	RunID       string    `json:"runId"`
	Index       int       `json:"index"`
	StudentID   string    `json:"studentId"`
	DisplayName string    `json:"displayName"`
	Status      Status    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	RecipientID string    `json:"recipientId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func NewOutcomeRecord(runID string, o Outcome) OutcomeRecord {
	return OutcomeRecord{
		RunID:       runID,
		Index:       o.Index,
		StudentID:   o.Record.ID,
		DisplayName: o.Record.DisplayName(),
		Status:      o.Status,
		Reason:      o.Reason,
		RecipientID: o.RecipientID,
		CreatedAt:   time.Now().UTC(),
	}
}

// History reads journaled runs, most recent first.
type History interface {
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	RunOutcomes(ctx context.Context, runID string) ([]OutcomeRecord, error)
}

// Store is a journal that can also be read back.
type Store interface {
	Journal
	History
}

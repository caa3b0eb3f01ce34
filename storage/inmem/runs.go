// Package inmem keeps the run journal in memory, for runs without a configured database.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mashovsend/core/run"
)

type RunStore struct {
	mu       sync.RWMutex
	runs     map[string]*run.RunRecord
	outcomes map[string][]run.OutcomeRecord
}

var _ run.Store = (*RunStore)(nil)

func NewRunStore() *RunStore {
	return &RunStore{
		runs:     make(map[string]*run.RunRecord),
		outcomes: make(map[string][]run.OutcomeRecord),
	}
}

func (s *RunStore) StartRun(_ context.Context, info run.Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[info.ID]; ok {
		return errors.Errorf("run %s already exists", info.ID)
	}
	s.runs[info.ID] = &run.RunRecord{
		ID:           info.ID,
		Account:      info.Account,
		Total:        info.Total,
		DryRun:       info.DryRun,
		SendViaEmail: info.SendViaEmail,
		StartedAt:    info.StartedAt.UTC(),
	}
	return nil
}

func (s *RunStore) RecordOutcome(_ context.Context, runID string, o run.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return errors.Errorf("run %s not found", runID)
	}
	s.outcomes[runID] = append(s.outcomes[runID], run.NewOutcomeRecord(runID, o))
	return nil
}

func (s *RunStore) FinishRun(_ context.Context, runID string, sum run.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[runID]
	if !ok {
		return errors.Errorf("run %s not found", runID)
	}
	rec.FinishedAt = time.Now().UTC()
	rec.SuccessCount = sum.SuccessCount
	rec.FailureCount = sum.FailureCount
	rec.Stopped = sum.Stopped
	return nil
}

func (s *RunStore) ListRuns(_ context.Context, limit int) ([]run.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]run.RunRecord, 0, len(s.runs))
	for _, r := range s.runs {
		recs = append(recs, *r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].StartedAt.After(recs[j].StartedAt) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *RunStore) RunOutcomes(_ context.Context, runID string) ([]run.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]run.OutcomeRecord(nil), s.outcomes[runID]...), nil
}

// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/adiadia/prompt-runner/internal/domain"
	"github.com/google/uuid"
)

type promptKey struct {
	documentID   string
	promptNumber int
}

// Tracker is the in-memory registry of in-flight executions. It is an
// explicitly constructed instance passed by handle into the engine and
// the transport; there is no package-level state.
type Tracker struct {
	mu         sync.RWMutex
	executions map[uuid.UUID]*domain.ActiveExecution
	inFlight   map[promptKey]uuid.UUID
	logger     *slog.Logger
}

func New(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		executions: make(map[uuid.UUID]*domain.ActiveExecution, 8),
		inFlight:   make(map[promptKey]uuid.UUID, 8),
		logger:     logger,
	}
}

// Register inserts a new row. A second registration for the same
// (document, prompt) pair while the first is live is refused; this is
// the mutual-exclusion guard against re-entrant runs.
func (t *Tracker) Register(exec domain.ActiveExecution) error {
	key := promptKey{exec.DocumentID, exec.PromptNumber}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.inFlight[key]; ok {
		return domain.ErrExecutionInFlight
	}
	if _, ok := t.executions[exec.ExecutionID]; ok {
		return domain.ErrInvalidState
	}

	row := exec.Clone()
	t.executions[exec.ExecutionID] = &row
	t.inFlight[key] = exec.ExecutionID

	t.logger.Debug("execution registered",
		"execution_id", exec.ExecutionID,
		"document_id", exec.DocumentID,
		"prompt", exec.PromptNumber,
	)
	return nil
}

// Get returns a snapshot of the row, or ErrExecutionNotFound once the
// execution has settled or been cancelled.
func (t *Tracker) Get(id uuid.UUID) (domain.ActiveExecution, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	row, ok := t.executions[id]
	if !ok {
		return domain.ActiveExecution{}, domain.ErrExecutionNotFound
	}
	return row.Clone(), nil
}

// RecordStepResult appends one attempt's result and moves the cursor.
// Results for rows that no longer exist (cancelled executions) are
// discarded with ErrExecutionNotFound.
func (t *Tracker) RecordStepResult(id uuid.UUID, result domain.StepResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	row, ok := t.executions[id]
	if !ok {
		return domain.ErrExecutionNotFound
	}

	row.StepResults = append(row.StepResults, result)
	if result.Status == domain.StepCompleted {
		row.CurrentStep = result.StepNumber + 1
	}
	return nil
}

// Remove drops the row once the execution reached a terminal status.
func (t *Tracker) Remove(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(id)
}

// Cancel marks the row CANCELLED and removes it. The in-flight step is
// not interrupted here; the engine notices the missing row between
// steps and stops.
func (t *Tracker) Cancel(id uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	row, ok := t.executions[id]
	if !ok {
		return domain.ErrExecutionNotFound
	}

	row.Status = domain.PromptCancelled
	t.remove(id)

	t.logger.Info("execution cancelled",
		"execution_id", id,
		"document_id", row.DocumentID,
		"prompt", row.PromptNumber,
	)
	return nil
}

// ListActive returns snapshots of every live row, oldest first.
func (t *Tracker) ListActive() []domain.ActiveExecution {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.ActiveExecution, 0, len(t.executions))
	for _, row := range t.executions {
		out = append(out, row.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ExecutionID.String() < out[j].ExecutionID.String()
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// caller must hold t.mu
func (t *Tracker) remove(id uuid.UUID) {
	row, ok := t.executions[id]
	if !ok {
		return
	}
	delete(t.executions, id)

	key := promptKey{row.DocumentID, row.PromptNumber}
	if t.inFlight[key] == id {
		delete(t.inFlight, key)
	}
}

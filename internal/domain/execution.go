// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepResult records one attempt at one step. Retried steps append a
// new result per attempt; history is never rewritten.
type StepResult struct {
	StepNumber int           `json:"step_number"`
	Status     StepStatus    `json:"status"`
	Output     string        `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// ActiveExecution is one in-flight attempt to carry a prompt from
// PENDING to a terminal status. The tracker holds exactly one row per
// execution id and drops it when the execution settles.
type ActiveExecution struct {
	ExecutionID  uuid.UUID    `json:"execution_id"`
	DocumentID   string       `json:"document_id"`
	PromptNumber int          `json:"prompt_number"`
	StartedAt    time.Time    `json:"started_at"`
	CurrentStep  int          `json:"current_step"`
	Status       PromptStatus `json:"status"`
	StepResults  []StepResult `json:"step_results"`
}

// Clone returns a snapshot safe to hand outside the tracker lock.
func (e *ActiveExecution) Clone() ActiveExecution {
	out := *e
	out.StepResults = make([]StepResult, len(e.StepResults))
	copy(out.StepResults, e.StepResults)
	return out
}

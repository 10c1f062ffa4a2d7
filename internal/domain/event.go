// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventExecutionStarted   EventType = "EXECUTION_STARTED"
	EventStepCompleted      EventType = "STEP_COMPLETED"
	EventStepFailed         EventType = "STEP_FAILED"
	EventExecutionCompleted EventType = "EXECUTION_COMPLETED"
	EventExecutionFailed    EventType = "EXECUTION_FAILED"
	EventStatusUpdate       EventType = "STATUS_UPDATE"
)

// Event is one lifecycle notification pushed through the fan-out bus.
// Step fields are zero for execution-level events.
type Event struct {
	Type         EventType `json:"type"`
	ExecutionID  uuid.UUID `json:"execution_id"`
	DocumentID   string    `json:"document_id"`
	PromptNumber int       `json:"prompt_number"`
	StepNumber   int       `json:"step_number,omitempty"`
	Status       string    `json:"status,omitempty"`
	Output       string    `json:"output,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

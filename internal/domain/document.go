// SPDX-License-Identifier: Apache-2.0

package domain

import "time"

type PromptStatus string

const (
	PromptPending   PromptStatus = "PENDING"
	PromptReady     PromptStatus = "READY"
	PromptRunning   PromptStatus = "RUNNING"
	PromptCompleted PromptStatus = "COMPLETED"
	PromptFailed    PromptStatus = "FAILED"
	PromptSkipped   PromptStatus = "SKIPPED"
	PromptCancelled PromptStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (s PromptStatus) Terminal() bool {
	return s == PromptCompleted || s == PromptFailed || s == PromptCancelled
}

// PromptDocument is the parser collaborator's output: an ordered set of
// executable prompts plus aggregate metadata. The runner never parses
// text; it only mutates prompt statuses as executions settle.
type PromptDocument struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Prompts   []ExecutablePrompt `json:"prompts"`
	Metadata  DocumentMetadata   `json:"metadata"`
	CreatedAt time.Time          `json:"created_at"`
}

// Prompt returns the prompt with the given number, or nil.
func (d *PromptDocument) Prompt(number int) *ExecutablePrompt {
	for i := range d.Prompts {
		if d.Prompts[i].Number == number {
			return &d.Prompts[i]
		}
	}
	return nil
}

type DocumentMetadata struct {
	PromptCount      int      `json:"prompt_count"`
	EstimatedSeconds int64    `json:"estimated_seconds"`
	Tags             []string `json:"tags,omitempty"`
	Project          string   `json:"project,omitempty"`
	Author           string   `json:"author,omitempty"`
}

// ExecutablePrompt is one unit of work within a document. Dependencies
// reference strictly lower prompt numbers in the same document and must
// all be COMPLETED before the prompt may start.
type ExecutablePrompt struct {
	Number           int             `json:"number"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	Dependencies     []int           `json:"dependencies,omitempty"`
	EstimatedSeconds int64           `json:"estimated_seconds,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
	Steps            []ExecutionStep `json:"steps"`
	Status           PromptStatus    `json:"status"`
}

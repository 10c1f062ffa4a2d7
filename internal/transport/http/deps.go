// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/adiadia/prompt-runner/internal/domain"
	"github.com/google/uuid"
)

type DocumentRegistry interface {
	Add(doc domain.PromptDocument) error
	Snapshot(id string) (domain.PromptDocument, error)
	List() []domain.PromptDocument
}

type ExecutionStarter interface {
	StartExecution(ctx context.Context, documentID string, promptNumber int, callbackURL string) (uuid.UUID, error)
	StartSequence(ctx context.Context, documentID string, promptNumbers []int, stopOnError bool, callbackURL string) error
}

type ExecutionTracker interface {
	Get(id uuid.UUID) (domain.ActiveExecution, error)
	ListActive() []domain.ActiveExecution
	Cancel(id uuid.UUID) error
}

type EventSource interface {
	Subscribe() (<-chan domain.Event, func())
}

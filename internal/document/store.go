// SPDX-License-Identifier: Apache-2.0

package document

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adiadia/prompt-runner/internal/domain"
)

// Store is the in-memory document registry. Documents arrive fully
// parsed; Add re-validates the structural invariants the parser is
// supposed to guarantee and recomputes aggregate metadata. There is no
// durable copy; restart loses everything.
type Store struct {
	mu        sync.RWMutex
	documents map[string]*domain.PromptDocument
	byTitle   map[string]string
	logger    *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		documents: make(map[string]*domain.PromptDocument, 8),
		byTitle:   make(map[string]string, 8),
		logger:    logger,
	}
}

// Add registers a parsed document. Prompt and step statuses default to
// PENDING; any previously registered document with the same id is
// replaced.
func (s *Store) Add(doc domain.PromptDocument) error {
	if strings.TrimSpace(doc.ID) == "" {
		return fmt.Errorf("%w: missing id", domain.ErrInvalidDocument)
	}
	if strings.TrimSpace(doc.Title) == "" {
		return fmt.Errorf("%w: missing title", domain.ErrInvalidDocument)
	}
	if err := validateStructure(&doc); err != nil {
		return err
	}

	for i := range doc.Prompts {
		p := &doc.Prompts[i]
		if p.Status == "" {
			p.Status = domain.PromptPending
		}
		for j := range p.Steps {
			if p.Steps[j].Status == "" {
				p.Steps[j].Status = domain.StepPending
			}
		}
	}

	doc.Metadata = aggregateMetadata(&doc)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents[doc.ID] = &doc
	s.byTitle[strings.ToLower(doc.Title)] = doc.ID

	s.logger.Info("document registered",
		"document_id", doc.ID,
		"title", doc.Title,
		"prompts", len(doc.Prompts),
	)
	return nil
}

// Snapshot returns a deep copy of the document, safe to read while
// executions mutate prompt statuses.
func (s *Store) Snapshot(id string) (domain.PromptDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return domain.PromptDocument{}, domain.ErrDocumentNotFound
	}
	return cloneDocument(doc), nil
}

// SnapshotByTitle resolves a document by its title, case-insensitively.
func (s *Store) SnapshotByTitle(title string) (domain.PromptDocument, error) {
	s.mu.RLock()
	id, ok := s.byTitle[strings.ToLower(title)]
	s.mu.RUnlock()
	if !ok {
		return domain.PromptDocument{}, domain.ErrDocumentNotFound
	}
	return s.Snapshot(id)
}

// List returns snapshots of every registered document, oldest first.
func (s *Store) List() []domain.PromptDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PromptDocument, 0, len(s.documents))
	for _, doc := range s.documents {
		out = append(out, cloneDocument(doc))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// SetPromptStatus mutates one prompt's status in place. It is the only
// write path into a registered document after Add.
func (s *Store) SetPromptStatus(docID string, promptNumber int, status domain.PromptStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[docID]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	p := doc.Prompt(promptNumber)
	if p == nil {
		return domain.ErrPromptNotFound
	}
	p.Status = status
	return nil
}

// PromptStatus reads one prompt's current status.
func (s *Store) PromptStatus(docID string, promptNumber int) (domain.PromptStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[docID]
	if !ok {
		return "", domain.ErrDocumentNotFound
	}
	p := doc.Prompt(promptNumber)
	if p == nil {
		return "", domain.ErrPromptNotFound
	}
	return p.Status, nil
}

// validateStructure enforces what the parser is supposed to have
// guaranteed: unique ascending prompt numbers, dependencies that
// reference only strictly lower-numbered prompts in this document,
// contiguous 1-based step numbers, and well-formed step payloads.
func validateStructure(doc *domain.PromptDocument) error {
	seen := make(map[int]bool, len(doc.Prompts))
	prev := 0

	for i := range doc.Prompts {
		p := &doc.Prompts[i]
		if p.Number < 1 {
			return fmt.Errorf("%w: prompt number %d must be >= 1",
				domain.ErrInvalidDocument, p.Number)
		}
		if seen[p.Number] {
			return fmt.Errorf("%w: duplicate prompt number %d",
				domain.ErrInvalidDocument, p.Number)
		}
		if p.Number <= prev {
			return fmt.Errorf("%w: prompt numbers must be ascending (%d after %d)",
				domain.ErrInvalidDocument, p.Number, prev)
		}
		seen[p.Number] = true
		prev = p.Number

		for _, dep := range p.Dependencies {
			if dep >= p.Number {
				return fmt.Errorf("%w: prompt %d depends on %d, which is not strictly lower",
					domain.ErrInvalidDocument, p.Number, dep)
			}
			if !seen[dep] {
				return fmt.Errorf("%w: prompt %d depends on unknown prompt %d",
					domain.ErrInvalidDocument, p.Number, dep)
			}
		}

		for j := range p.Steps {
			step := p.Steps[j]
			if step.StepNumber != j+1 {
				return fmt.Errorf("%w: prompt %d: step numbers must be contiguous from 1, got %d at position %d",
					domain.ErrInvalidDocument, p.Number, step.StepNumber, j+1)
			}
			if err := step.Validate(); err != nil {
				return fmt.Errorf("prompt %d: %w", p.Number, err)
			}
		}
	}
	return nil
}

func aggregateMetadata(doc *domain.PromptDocument) domain.DocumentMetadata {
	meta := doc.Metadata
	meta.PromptCount = len(doc.Prompts)

	var total int64
	tagSet := make(map[string]bool)
	for _, p := range doc.Prompts {
		total += p.EstimatedSeconds
		for _, tag := range p.Tags {
			tagSet[tag] = true
		}
	}
	meta.EstimatedSeconds = total

	tags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	meta.Tags = tags
	return meta
}

func cloneDocument(doc *domain.PromptDocument) domain.PromptDocument {
	out := *doc
	out.Prompts = make([]domain.ExecutablePrompt, len(doc.Prompts))
	copy(out.Prompts, doc.Prompts)
	for i := range out.Prompts {
		p := &out.Prompts[i]
		p.Dependencies = append([]int(nil), p.Dependencies...)
		p.Tags = append([]string(nil), p.Tags...)
		p.Steps = append([]domain.ExecutionStep(nil), p.Steps...)
	}
	out.Metadata.Tags = append([]string(nil), doc.Metadata.Tags...)
	return out
}

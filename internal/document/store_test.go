// SPDX-License-Identifier: Apache-2.0

package document

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/adiadia/prompt-runner/internal/domain"
)

func testDocument() domain.PromptDocument {
	return domain.PromptDocument{
		ID:    "plan-42",
		Title: "Build the widget service",
		Prompts: []domain.ExecutablePrompt{
			{
				Number:           1,
				Title:            "Scaffold",
				EstimatedSeconds: 60,
				Tags:             []string{"setup"},
				Steps: []domain.ExecutionStep{
					{StepNumber: 1, Action: domain.ActionCreateDirectory, Params: domain.ActionParams{Directory: "widget"}},
					{StepNumber: 2, Action: domain.ActionCreateFile, Params: domain.ActionParams{File: "widget/main.go", Content: "package main"}},
				},
			},
			{
				Number:           2,
				Title:            "Test",
				Dependencies:     []int{1},
				EstimatedSeconds: 30,
				Tags:             []string{"test", "setup"},
				Steps: []domain.ExecutionStep{
					{StepNumber: 1, Action: domain.ActionTestExecution, Params: domain.ActionParams{Command: "go test ./..."}},
				},
			},
		},
	}
}

func TestStoreAddDefaultsAndAggregates(t *testing.T) {
	store := NewStore(discardLogger())

	if err := store.Add(testDocument()); err != nil {
		t.Fatalf("add: %v", err)
	}

	doc, err := store.Snapshot("plan-42")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if doc.Metadata.PromptCount != 2 {
		t.Fatalf("expected prompt_count 2 got %d", doc.Metadata.PromptCount)
	}
	if doc.Metadata.EstimatedSeconds != 90 {
		t.Fatalf("expected estimated_seconds 90 got %d", doc.Metadata.EstimatedSeconds)
	}
	if len(doc.Metadata.Tags) != 2 || doc.Metadata.Tags[0] != "setup" || doc.Metadata.Tags[1] != "test" {
		t.Fatalf("expected sorted deduplicated tags got %v", doc.Metadata.Tags)
	}
	if doc.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}

	for _, p := range doc.Prompts {
		if p.Status != domain.PromptPending {
			t.Fatalf("prompt %d: expected PENDING got %s", p.Number, p.Status)
		}
		for _, step := range p.Steps {
			if step.Status != domain.StepPending {
				t.Fatalf("prompt %d step %d: expected PENDING got %s", p.Number, step.StepNumber, step.Status)
			}
		}
	}
}

func TestStoreSnapshotIsIsolated(t *testing.T) {
	store := NewStore(discardLogger())
	if err := store.Add(testDocument()); err != nil {
		t.Fatalf("add: %v", err)
	}

	snap, err := store.Snapshot("plan-42")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snap.Prompts[0].Status = domain.PromptFailed
	snap.Prompts[0].Steps[0].Params.Directory = "mutated"

	fresh, err := store.Snapshot("plan-42")
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if fresh.Prompts[0].Status != domain.PromptPending {
		t.Fatal("snapshot mutation leaked into the store")
	}
	if fresh.Prompts[0].Steps[0].Params.Directory != "widget" {
		t.Fatal("step mutation leaked into the store")
	}
}

func TestStoreSnapshotByTitle(t *testing.T) {
	store := NewStore(discardLogger())
	if err := store.Add(testDocument()); err != nil {
		t.Fatalf("add: %v", err)
	}

	doc, err := store.SnapshotByTitle("BUILD THE WIDGET SERVICE")
	if err != nil {
		t.Fatalf("snapshot by title: %v", err)
	}
	if doc.ID != "plan-42" {
		t.Fatalf("expected plan-42 got %s", doc.ID)
	}

	if _, err := store.SnapshotByTitle("no such plan"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound got %v", err)
	}
}

func TestStoreSetAndReadPromptStatus(t *testing.T) {
	store := NewStore(discardLogger())
	if err := store.Add(testDocument()); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := store.SetPromptStatus("plan-42", 1, domain.PromptCompleted); err != nil {
		t.Fatalf("set status: %v", err)
	}

	status, err := store.PromptStatus("plan-42", 1)
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != domain.PromptCompleted {
		t.Fatalf("expected COMPLETED got %s", status)
	}

	if err := store.SetPromptStatus("plan-42", 99, domain.PromptRunning); !errors.Is(err, domain.ErrPromptNotFound) {
		t.Fatalf("expected ErrPromptNotFound got %v", err)
	}
	if err := store.SetPromptStatus("missing", 1, domain.PromptRunning); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound got %v", err)
	}
}

func TestStoreRejectsMalformedDocuments(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.PromptDocument)
	}{
		{"missing id", func(d *domain.PromptDocument) { d.ID = " " }},
		{"missing title", func(d *domain.PromptDocument) { d.Title = "" }},
		{"duplicate prompt number", func(d *domain.PromptDocument) { d.Prompts[1].Number = 1; d.Prompts[1].Dependencies = nil }},
		{"descending prompt numbers", func(d *domain.PromptDocument) {
			d.Prompts[0].Number = 3
			d.Prompts[1].Dependencies = nil
		}},
		{"dependency on later prompt", func(d *domain.PromptDocument) { d.Prompts[0].Dependencies = []int{2} }},
		{"dependency on unknown prompt", func(d *domain.PromptDocument) { d.Prompts[1].Dependencies = []int{7} }},
		{"non-contiguous step numbers", func(d *domain.PromptDocument) { d.Prompts[0].Steps[1].StepNumber = 5 }},
		{"invalid step payload", func(d *domain.PromptDocument) { d.Prompts[0].Steps[0].Params.Directory = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := testDocument()
			tc.mutate(&doc)

			err := NewStore(discardLogger()).Add(doc)
			if err == nil {
				t.Fatal("expected registration to fail")
			}
			if !errors.Is(err, domain.ErrInvalidDocument) && !errors.Is(err, domain.ErrInvalidStep) {
				t.Fatalf("expected a validation error got %v", err)
			}
		})
	}
}

func TestStoreListOrderedByCreation(t *testing.T) {
	store := NewStore(discardLogger())

	first := testDocument()
	second := testDocument()
	second.ID = "plan-43"
	second.Title = "Second plan"

	if err := store.Add(first); err != nil {
		t.Fatalf("add first: %v", err)
	}
	if err := store.Add(second); err != nil {
		t.Fatalf("add second: %v", err)
	}

	docs := store.List()
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents got %d", len(docs))
	}
	if docs[0].ID != "plan-42" || docs[1].ID != "plan-43" {
		t.Fatalf("expected oldest-first ordering got %s, %s", docs[0].ID, docs[1].ID)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

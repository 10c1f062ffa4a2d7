// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/adiadia/prompt-runner/internal/config"
	"github.com/adiadia/prompt-runner/internal/dispatch"
	"github.com/adiadia/prompt-runner/internal/document"
	"github.com/adiadia/prompt-runner/internal/domain"
	"github.com/adiadia/prompt-runner/internal/events"
	"github.com/adiadia/prompt-runner/internal/executor"
	"github.com/adiadia/prompt-runner/internal/logging"
	"github.com/adiadia/prompt-runner/internal/persistence/postgres"
	"github.com/adiadia/prompt-runner/internal/tracker"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger(cfg.Env)

	if len(os.Args) < 3 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "validate":
		doc, err := loadDocument(os.Args[2])
		if err != nil {
			logger.Error("validation failed", "file", os.Args[2], "error", err)
			os.Exit(1)
		}
		if err := document.NewStore(logger).Add(doc); err != nil {
			logger.Error("validation failed", "file", os.Args[2], "error", err)
			os.Exit(1)
		}
		logger.Info("document is valid",
			"document_id", doc.ID,
			"prompts", len(doc.Prompts),
		)
	case "run":
		if len(os.Args) < 4 {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		promptNumber, err := strconv.Atoi(os.Args[3])
		if err != nil || promptNumber < 1 {
			logger.Error("invalid prompt number", "arg", os.Args[3])
			os.Exit(2)
		}
		if err := runPrompts(ctx, cfg, logger, os.Args[2], []int{promptNumber}); err != nil {
			os.Exit(1)
		}
	case "sequence":
		numbers, err := parsePromptNumbers(os.Args[3:])
		if err != nil {
			logger.Error("invalid prompt numbers", "error", err)
			os.Exit(2)
		}
		if err := runPrompts(ctx, cfg, logger, os.Args[2], numbers); err != nil {
			os.Exit(1)
		}
	default:
		printUsage(os.Stderr)
		os.Exit(2)
	}
}

// runPrompts registers the document and runs the given prompts in order
// on a locally wired engine, printing lifecycle events as they arrive.
// An empty prompt list means every prompt in the document.
func runPrompts(ctx context.Context, cfg config.Config, logger *slog.Logger, path string, numbers []int) error {
	doc, err := loadDocument(path)
	if err != nil {
		logger.Error("load document failed", "file", path, "error", err)
		return err
	}

	store := document.NewStore(logger)
	if err := store.Add(doc); err != nil {
		logger.Error("register document failed", "document_id", doc.ID, "error", err)
		return err
	}

	if len(numbers) == 0 {
		for _, p := range doc.Prompts {
			numbers = append(numbers, p.Number)
		}
	}

	bus := events.NewBus(logger)
	eventCh, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	var printers sync.WaitGroup
	printers.Add(1)
	go func() {
		defer printers.Done()
		for ev := range eventCh {
			printEvent(os.Stdout, ev)
		}
	}()

	var database dispatch.Database
	if cfg.DatabaseURL != "" {
		lazy := postgres.NewLazy(cfg.DatabaseURL)
		defer lazy.Close()
		database = lazy
	}

	engine := executor.New(executor.Deps{
		Store:   store,
		Tracker: tracker.New(logger),
		Dispatcher: dispatch.New(dispatch.Deps{
			Logger:    logger,
			Database:  database,
			EditorCLI: cfg.EditorCLI,
		}),
		Bus:    bus,
		Logger: logger,
		Config: executor.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			AutoRetry:     cfg.AutoRetry,
			MaxRetries:    cfg.MaxRetries,
			RetryDelay:    cfg.RetryDelay,
			StepTimeout:   cfg.StepTimeout,
			PromptTimeout: cfg.PromptTimeout,
		},
	})

	started := time.Now()
	var firstErr error
	for _, n := range numbers {
		if _, err := engine.ExecutePrompt(ctx, doc.ID, n, ""); err != nil {
			logger.Error("prompt failed", "prompt", n, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			break
		}
	}

	unsubscribe()
	printers.Wait()

	for _, n := range numbers {
		status, err := store.PromptStatus(doc.ID, n)
		if err != nil {
			continue
		}
		fmt.Fprintf(os.Stdout, "prompt %d: %s\n", n, status)
	}
	logger.Info("run finished",
		"document_id", doc.ID,
		"prompts", len(numbers),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return firstErr
}

func loadDocument(path string) (domain.PromptDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.PromptDocument{}, err
	}
	defer f.Close()

	var doc domain.PromptDocument
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return domain.PromptDocument{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return domain.PromptDocument{}, fmt.Errorf("%s: trailing content after document", path)
	}
	return doc, nil
}

func parsePromptNumbers(args []string) ([]int, error) {
	numbers := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("bad prompt number %q", arg)
		}
		numbers = append(numbers, n)
	}
	return numbers, nil
}

func printEvent(w io.Writer, ev domain.Event) {
	switch ev.Type {
	case domain.EventStepCompleted:
		fmt.Fprintf(w, "  step %d ok", ev.StepNumber)
		if ev.Output != "" {
			fmt.Fprintf(w, ": %s", ev.Output)
		}
		fmt.Fprintln(w)
	case domain.EventStepFailed:
		fmt.Fprintf(w, "  step %d failed: %s\n", ev.StepNumber, ev.Error)
	case domain.EventExecutionStarted:
		fmt.Fprintf(w, "prompt %d started (execution %s)\n", ev.PromptNumber, ev.ExecutionID)
	case domain.EventExecutionCompleted:
		fmt.Fprintf(w, "prompt %d completed\n", ev.PromptNumber)
	case domain.EventExecutionFailed:
		fmt.Fprintf(w, "prompt %d failed: %s\n", ev.PromptNumber, ev.Error)
	default:
		fmt.Fprintf(w, "prompt %d: %s\n", ev.PromptNumber, ev.Status)
	}
}

func printUsage(w *os.File) {
	_, _ = fmt.Fprintln(w, "usage:")
	_, _ = fmt.Fprintln(w, "  go run ./cmd/cli validate <document.json>")
	_, _ = fmt.Fprintln(w, "  go run ./cmd/cli run <document.json> <prompt-number>")
	_, _ = fmt.Fprintln(w, "  go run ./cmd/cli sequence <document.json> [prompt-number ...]")
}

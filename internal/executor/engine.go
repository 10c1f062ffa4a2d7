// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adiadia/prompt-runner/internal/document"
	"github.com/adiadia/prompt-runner/internal/domain"
	"github.com/adiadia/prompt-runner/internal/metrics"
	"github.com/adiadia/prompt-runner/internal/tracker"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

type StepDispatcher interface {
	Execute(ctx context.Context, step domain.ExecutionStep) (string, error)
}

type Publisher interface {
	Publish(ev domain.Event)
}

type TerminalNotifier interface {
	Deliver(ctx context.Context, url string, payload any)
}

type Config struct {
	MaxConcurrent int
	AutoRetry     bool
	MaxRetries    int
	RetryDelay    time.Duration
	StepTimeout   time.Duration
	PromptTimeout time.Duration
}

type Deps struct {
	Store      *document.Store
	Tracker    *tracker.Tracker
	Dispatcher StepDispatcher
	Bus        Publisher

	// Webhooks receives terminal events for executions started with a
	// callback URL. Optional.
	Webhooks TerminalNotifier

	Logger *slog.Logger
	Config Config
}

// Engine drives one prompt at a time through its ordered steps:
// dependency gate, dispatch, retry policy, terminal settle. Concurrent
// executions of different prompts are bounded by MaxConcurrent.
type Engine struct {
	store      *document.Store
	tracker    *tracker.Tracker
	dispatcher StepDispatcher
	bus        Publisher
	webhooks   TerminalNotifier
	logger     *slog.Logger
	cfg        Config
	sem        *semaphore.Weighted
}

func New(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := deps.Config
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 10 * time.Minute
	}
	if cfg.PromptTimeout <= 0 {
		cfg.PromptTimeout = time.Hour
	}

	return &Engine{
		store:      deps.Store,
		tracker:    deps.Tracker,
		dispatcher: deps.Dispatcher,
		bus:        deps.Bus,
		webhooks:   deps.Webhooks,
		logger:     logger,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

type prepared struct {
	executionID uuid.UUID
	documentID  string
	prompt      domain.ExecutablePrompt
	callbackURL string
}

// StartExecution admits the prompt and runs it asynchronously. The
// returned execution id can be polled through the tracker. NotFound,
// dependency, and in-flight errors surface here, before any step runs.
func (e *Engine) StartExecution(ctx context.Context, documentID string, promptNumber int, callbackURL string) (uuid.UUID, error) {
	prep, err := e.prepare(documentID, promptNumber, callbackURL)
	if err != nil {
		return uuid.Nil, err
	}

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), e.cfg.PromptTimeout)
		defer cancel()
		_ = e.run(runCtx, prep)
	}()

	return prep.executionID, nil
}

// ExecutePrompt is the synchronous path used by the CLI and by
// sequence runs: it admits the prompt and blocks until it settles.
func (e *Engine) ExecutePrompt(ctx context.Context, documentID string, promptNumber int, callbackURL string) (uuid.UUID, error) {
	prep, err := e.prepare(documentID, promptNumber, callbackURL)
	if err != nil {
		return uuid.Nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.PromptTimeout)
	defer cancel()

	return prep.executionID, e.run(runCtx, prep)
}

// StartSequence runs the given prompts in order on a background
// goroutine. Prompt existence is verified up front; per-prompt
// admission (dependencies, in-flight guard) happens as each prompt's
// turn arrives. With stopOnError false, a failed prompt does not stop
// later prompts whose dependencies are still satisfiable.
func (e *Engine) StartSequence(ctx context.Context, documentID string, promptNumbers []int, stopOnError bool, callbackURL string) error {
	if len(promptNumbers) == 0 {
		return fmt.Errorf("%w: empty prompt sequence", domain.ErrInvalidState)
	}

	snap, err := e.store.Snapshot(documentID)
	if err != nil {
		return err
	}
	for _, n := range promptNumbers {
		if snap.Prompt(n) == nil {
			return fmt.Errorf("%w: prompt %d in document %s", domain.ErrPromptNotFound, n, documentID)
		}
	}

	go func() {
		for _, n := range promptNumbers {
			_, err := e.ExecutePrompt(context.Background(), documentID, n, callbackURL)
			if err != nil {
				e.logger.Warn("sequence prompt failed",
					"document_id", documentID,
					"prompt", n,
					"stop_on_error", stopOnError,
					"error", err,
				)
				if stopOnError {
					return
				}
			}
		}
	}()

	return nil
}

func (e *Engine) prepare(documentID string, promptNumber int, callbackURL string) (prepared, error) {
	snap, err := e.store.Snapshot(documentID)
	if err != nil {
		return prepared{}, err
	}

	prompt := snap.Prompt(promptNumber)
	if prompt == nil {
		return prepared{}, fmt.Errorf("%w: prompt %d in document %s",
			domain.ErrPromptNotFound, promptNumber, documentID)
	}

	if err := validateDependencies(&snap, prompt); err != nil {
		return prepared{}, err
	}

	executionID := uuid.New()
	err = e.tracker.Register(domain.ActiveExecution{
		ExecutionID:  executionID,
		DocumentID:   documentID,
		PromptNumber: promptNumber,
		StartedAt:    time.Now(),
		CurrentStep:  1,
		Status:       domain.PromptRunning,
	})
	if err != nil {
		return prepared{}, err
	}

	_ = e.store.SetPromptStatus(documentID, promptNumber, domain.PromptRunning)
	metrics.IncActiveExecutions()

	e.logger.Info("execution started",
		"execution_id", executionID,
		"document_id", documentID,
		"prompt", promptNumber,
		"steps", len(prompt.Steps),
	)

	e.publish(domain.Event{
		Type:         domain.EventExecutionStarted,
		ExecutionID:  executionID,
		DocumentID:   documentID,
		PromptNumber: promptNumber,
		Status:       string(domain.PromptRunning),
	})

	return prepared{
		executionID: executionID,
		documentID:  documentID,
		prompt:      *prompt,
		callbackURL: callbackURL,
	}, nil
}

func (e *Engine) run(ctx context.Context, prep prepared) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return e.settleFailure(prep, fmt.Errorf("waiting for execution slot: %w", err))
	}
	defer e.sem.Release(1)

	for i := range prep.prompt.Steps {
		step := prep.prompt.Steps[i]

		if _, err := e.tracker.Get(prep.executionID); err != nil {
			return e.settleCancelled(prep)
		}

		out, took, err := e.dispatchStep(ctx, step)
		if err == nil {
			if !e.recordSuccess(prep, step, out, took) {
				return e.settleCancelled(prep)
			}
			continue
		}

		if !e.recordFailure(prep, step, err, took) {
			return e.settleCancelled(prep)
		}

		if !e.cfg.AutoRetry || domain.IsTerminal(err) {
			return e.settleFailure(prep, &domain.RetryExhaustedError{
				StepNumber: step.StepNumber,
				Attempts:   1,
				Err:        err,
			})
		}

		attempts := 1
		lastErr := err
		recovered := false

		for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
			timer := time.NewTimer(e.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return e.settleFailure(prep, &domain.RetryExhaustedError{
					StepNumber: step.StepNumber,
					Attempts:   attempts,
					Err:        ctx.Err(),
				})
			case <-timer.C:
			}

			if _, err := e.tracker.Get(prep.executionID); err != nil {
				return e.settleCancelled(prep)
			}

			metrics.IncStepRetries()
			e.logger.Warn("retrying step",
				"execution_id", prep.executionID,
				"step", step.StepNumber,
				"attempt", attempt,
				"max_retries", e.cfg.MaxRetries,
			)

			out, took, retryErr := e.dispatchStep(ctx, step)
			attempts++

			if retryErr == nil {
				if !e.recordSuccess(prep, step, out, took) {
					return e.settleCancelled(prep)
				}
				recovered = true
				break
			}

			lastErr = retryErr
			if !e.recordFailure(prep, step, retryErr, took) {
				return e.settleCancelled(prep)
			}
			if domain.IsTerminal(retryErr) {
				break
			}
		}

		if !recovered {
			return e.settleFailure(prep, &domain.RetryExhaustedError{
				StepNumber: step.StepNumber,
				Attempts:   attempts,
				Err:        lastErr,
			})
		}
	}

	e.settleSuccess(prep)
	return nil
}

// dispatchStep races one dispatch against the per-step timeout. Expiry
// is reported as a plain (retryable) failure.
func (e *Engine) dispatchStep(ctx context.Context, step domain.ExecutionStep) (string, time.Duration, error) {
	stepCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()

	start := time.Now()
	out, err := e.dispatcher.Execute(stepCtx, step)
	took := time.Since(start)
	metrics.ObserveStepDuration(took)

	if err != nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return "", took, fmt.Errorf("step %d timed out after %s", step.StepNumber, e.cfg.StepTimeout)
	}
	return out, took, err
}

// recordSuccess appends the result and publishes StepCompleted. A false
// return means the tracker row is gone (cancelled) and the result was
// discarded.
func (e *Engine) recordSuccess(prep prepared, step domain.ExecutionStep, out string, took time.Duration) bool {
	err := e.tracker.RecordStepResult(prep.executionID, domain.StepResult{
		StepNumber: step.StepNumber,
		Status:     domain.StepCompleted,
		Output:     out,
		Duration:   took,
	})
	if err != nil {
		return false
	}

	metrics.IncStepStatus(domain.StepCompleted)
	e.publish(domain.Event{
		Type:         domain.EventStepCompleted,
		ExecutionID:  prep.executionID,
		DocumentID:   prep.documentID,
		PromptNumber: prep.prompt.Number,
		StepNumber:   step.StepNumber,
		Output:       out,
	})
	return true
}

func (e *Engine) recordFailure(prep prepared, step domain.ExecutionStep, stepErr error, took time.Duration) bool {
	err := e.tracker.RecordStepResult(prep.executionID, domain.StepResult{
		StepNumber: step.StepNumber,
		Status:     domain.StepFailed,
		Error:      stepErr.Error(),
		Duration:   took,
	})
	if err != nil {
		return false
	}

	metrics.IncStepStatus(domain.StepFailed)
	e.logger.Warn("step failed",
		"execution_id", prep.executionID,
		"step", step.StepNumber,
		"action", step.Action,
		"error", stepErr,
	)
	e.publish(domain.Event{
		Type:         domain.EventStepFailed,
		ExecutionID:  prep.executionID,
		DocumentID:   prep.documentID,
		PromptNumber: prep.prompt.Number,
		StepNumber:   step.StepNumber,
		Error:        stepErr.Error(),
	})
	return true
}

func (e *Engine) settleSuccess(prep prepared) {
	e.tracker.Remove(prep.executionID)
	_ = e.store.SetPromptStatus(prep.documentID, prep.prompt.Number, domain.PromptCompleted)

	metrics.IncExecutionStatus(domain.PromptCompleted)
	metrics.DecActiveExecutions()

	e.logger.Info("execution completed",
		"execution_id", prep.executionID,
		"document_id", prep.documentID,
		"prompt", prep.prompt.Number,
	)

	ev := domain.Event{
		Type:         domain.EventExecutionCompleted,
		ExecutionID:  prep.executionID,
		DocumentID:   prep.documentID,
		PromptNumber: prep.prompt.Number,
		Status:       string(domain.PromptCompleted),
	}
	e.publish(ev)
	e.notifyTerminal(prep.callbackURL, ev)
}

func (e *Engine) settleFailure(prep prepared, cause error) error {
	e.tracker.Remove(prep.executionID)
	_ = e.store.SetPromptStatus(prep.documentID, prep.prompt.Number, domain.PromptFailed)

	metrics.IncExecutionStatus(domain.PromptFailed)
	metrics.DecActiveExecutions()

	e.logger.Error("execution failed",
		"execution_id", prep.executionID,
		"document_id", prep.documentID,
		"prompt", prep.prompt.Number,
		"error", cause,
	)

	ev := domain.Event{
		Type:         domain.EventExecutionFailed,
		ExecutionID:  prep.executionID,
		DocumentID:   prep.documentID,
		PromptNumber: prep.prompt.Number,
		Status:       string(domain.PromptFailed),
		Error:        cause.Error(),
	}
	e.publish(ev)
	e.notifyTerminal(prep.callbackURL, ev)

	return cause
}

// settleCancelled handles the row having been removed by a cancel
// request: remaining steps are skipped and in-flight results were
// already discarded by the tracker.
func (e *Engine) settleCancelled(prep prepared) error {
	_ = e.store.SetPromptStatus(prep.documentID, prep.prompt.Number, domain.PromptCancelled)

	metrics.IncExecutionStatus(domain.PromptCancelled)
	metrics.DecActiveExecutions()

	e.logger.Info("execution stopped after cancel",
		"execution_id", prep.executionID,
		"document_id", prep.documentID,
		"prompt", prep.prompt.Number,
	)

	ev := domain.Event{
		Type:         domain.EventStatusUpdate,
		ExecutionID:  prep.executionID,
		DocumentID:   prep.documentID,
		PromptNumber: prep.prompt.Number,
		Status:       string(domain.PromptCancelled),
	}
	e.publish(ev)
	e.notifyTerminal(prep.callbackURL, ev)

	return domain.ErrExecutionNotFound
}

func (e *Engine) publish(ev domain.Event) {
	if e.bus == nil {
		return
	}
	ev.Timestamp = time.Now()
	e.bus.Publish(ev)
}

func (e *Engine) notifyTerminal(callbackURL string, ev domain.Event) {
	if e.webhooks == nil || callbackURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	e.webhooks.Deliver(ctx, callbackURL, ev)
}

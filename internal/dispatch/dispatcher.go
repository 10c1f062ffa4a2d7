// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/adiadia/prompt-runner/internal/domain"
)

// StepExecutor performs exactly one concrete operation against the
// host. Output is human-readable result text; errors wrapped with
// domain.TerminalError are never retried by the engine.
type StepExecutor interface {
	Execute(ctx context.Context, step domain.ExecutionStep) (string, error)
}

type Deps struct {
	Logger *slog.Logger

	// Database backs DATABASE_OPERATION steps. Nil means those steps
	// fail terminally.
	Database Database

	// HTTPClient backs API_CALL steps. Defaults to a 30s client.
	HTTPClient *http.Client

	// EditorCLI is the binary used by EXTERNAL_TOOL steps, e.g. "code".
	EditorCLI string
}

// Dispatcher routes a typed step to its executor. It holds no
// per-execution state; the same instance serves all executions.
type Dispatcher struct {
	executors map[domain.ActionKind]StepExecutor
	logger    *slog.Logger
}

func New(deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	editor := deps.EditorCLI
	if editor == "" {
		editor = "code"
	}

	registry := map[domain.ActionKind]StepExecutor{
		domain.ActionCreateFile:      &CreateFileExecutor{},
		domain.ActionModifyFile:      &ModifyFileExecutor{},
		domain.ActionCreateDirectory: &CreateDirectoryExecutor{},
		domain.ActionValidation:      &ValidationExecutor{},
		domain.ActionExecuteCommand:  &CommandExecutor{},
		domain.ActionTestExecution:   &TestExecutor{},
		domain.ActionGitOperation:    &GitExecutor{},
		domain.ActionExternalTool:    &ExternalToolExecutor{Binary: editor},
		domain.ActionAPICall:         &APICallExecutor{Client: client},
		domain.ActionDatabase:        &DatabaseExecutor{DB: deps.Database},
		domain.ActionCustom:          &CustomExecutor{},
	}

	return &Dispatcher{
		executors: registry,
		logger:    logger,
	}
}

// Execute runs one step and returns its output text.
func (d *Dispatcher) Execute(ctx context.Context, step domain.ExecutionStep) (string, error) {
	executor, ok := d.executors[step.Action]
	if !ok {
		return "", domain.TerminalError(
			fmt.Errorf("no executor registered for action %q", step.Action))
	}

	d.logger.Debug("dispatching step",
		"step", step.StepNumber,
		"action", step.Action,
	)

	return executor.Execute(ctx, step)
}

// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/adiadia/prompt-runner/internal/domain"
)

// CreateFileExecutor writes the step's content to the named path,
// overwriting any existing file.
type CreateFileExecutor struct{}

func (e *CreateFileExecutor) Execute(ctx context.Context, step domain.ExecutionStep) (string, error) {
	path := step.Params.File
	if err := os.WriteFile(path, []byte(step.Params.Content), 0o644); err != nil {
		return "", classifyFSError(fmt.Errorf("create file %s: %w", path, err))
	}
	return fmt.Sprintf("created file: %s", path), nil
}

// ModifyFileExecutor appends the step's content to an existing file.
// Richer mutation semantics are an extension point; append is the only
// supported operation.
type ModifyFileExecutor struct{}

func (e *ModifyFileExecutor) Execute(ctx context.Context, step domain.ExecutionStep) (string, error) {
	path := step.Params.File

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.TerminalError(fmt.Errorf("modify file: %s does not exist", path))
		}
		return "", fmt.Errorf("modify file %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", classifyFSError(fmt.Errorf("modify file %s: %w", path, err))
	}
	defer f.Close()

	if _, err := f.WriteString(step.Params.Content); err != nil {
		return "", fmt.Errorf("modify file %s: %w", path, err)
	}
	return fmt.Sprintf("modified file: %s", path), nil
}

// CreateDirectoryExecutor creates the directory recursively. Running it
// twice is a no-op.
type CreateDirectoryExecutor struct{}

func (e *CreateDirectoryExecutor) Execute(ctx context.Context, step domain.ExecutionStep) (string, error) {
	path := step.Params.Directory
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", classifyFSError(fmt.Errorf("create directory %s: %w", path, err))
	}
	return fmt.Sprintf("created directory: %s", path), nil
}

// ValidationExecutor checks a post-condition. file_exists is the only
// real check; unknown checks succeed with an echo so documents can
// carry forward-compatible validations.
type ValidationExecutor struct{}

func (e *ValidationExecutor) Execute(ctx context.Context, step domain.ExecutionStep) (string, error) {
	switch step.Params.Check {
	case "file_exists":
		path := step.Params.File
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("validation failed: %s does not exist", path)
		}
		return fmt.Sprintf("validation passed: %s exists", path), nil
	default:
		return fmt.Sprintf("validation (%s) completed", step.Params.Check), nil
	}
}

// classifyFSError marks permission and missing-parent failures as
// terminal; retrying the same path cannot fix them.
func classifyFSError(err error) error {
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
		return domain.TerminalError(err)
	}
	return err
}

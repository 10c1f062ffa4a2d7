// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/adiadia/prompt-runner/internal/domain"
)

// CommandExecutor runs the step's command through the platform shell.
// Captured stdout becomes the step output; stderr becomes the error on
// a non-zero exit.
type CommandExecutor struct{}

func (e *CommandExecutor) Execute(ctx context.Context, step domain.ExecutionStep) (string, error) {
	return runShell(ctx, step.Params.Command, step.Params.Directory)
}

// TestExecutor runs a test command; any non-zero exit is a failure.
type TestExecutor struct{}

func (e *TestExecutor) Execute(ctx context.Context, step domain.ExecutionStep) (string, error) {
	out, err := runShell(ctx, step.Params.Command, step.Params.Directory)
	if err != nil {
		return "", fmt.Errorf("tests failed: %w", err)
	}
	return fmt.Sprintf("tests passed:\n%s", out), nil
}

// GitExecutor maps the step's operation to one git invocation. The
// operation set is validated at document registration; an unknown value
// here means the document bypassed the store and is a hard error.
type GitExecutor struct{}

func (e *GitExecutor) Execute(ctx context.Context, step domain.ExecutionStep) (string, error) {
	var args []string

	switch op := step.Params.Operation; op {
	case "init":
		args = []string{"init"}
	case "status":
		args = []string{"status"}
	case "add":
		files := step.Params.Files
		if files == "" {
			files = "."
		}
		args = []string{"add", files}
	case "commit":
		args = []string{"commit", "-m", step.Params.Message}
	default:
		return "", domain.TerminalError(fmt.Errorf("unknown git operation %q", op))
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	if step.Params.Directory != "" {
		cmd.Dir = step.Params.Directory
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", commandError(err, &stderr)
	}
	return fmt.Sprintf("git %s completed:\n%s", step.Params.Operation, stdout.String()), nil
}

// ExternalToolExecutor drives a configured editor CLI.
type ExternalToolExecutor struct {
	Binary string
}

func (e *ExternalToolExecutor) Execute(ctx context.Context, step domain.ExecutionStep) (string, error) {
	var cmd *exec.Cmd

	switch action := step.Params.Action; action {
	case "open":
		cmd = exec.CommandContext(ctx, e.Binary, step.Params.Path)
	case "install_extension":
		cmd = exec.CommandContext(ctx, e.Binary, "--install-extension", step.Params.Extension)
	default:
		return "", domain.TerminalError(fmt.Errorf("unknown external tool action %q", action))
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", commandError(err, &stderr)
	}

	if step.Params.Action == "open" {
		return fmt.Sprintf("opened %s with %s", step.Params.Path, e.Binary), nil
	}
	return fmt.Sprintf("installed extension %s", step.Params.Extension), nil
}

// CustomExecutor is the extension placeholder: it records the action
// without touching the host.
type CustomExecutor struct{}

func (e *CustomExecutor) Execute(ctx context.Context, step domain.ExecutionStep) (string, error) {
	out := fmt.Sprintf("custom action %q completed", step.Params.Name)
	if step.Description != "" {
		out += ": " + step.Description
	}
	return out, nil
}

func runShell(ctx context.Context, command, dir string) (string, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", commandError(err, &stderr)
	}
	return stdout.String(), nil
}

func commandError(err error, stderr *bytes.Buffer) error {
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}

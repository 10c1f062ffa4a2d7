// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"testing"
)

func TestStepValidateAcceptsWellFormedPayloads(t *testing.T) {
	steps := []ExecutionStep{
		{StepNumber: 1, Action: ActionCreateFile, Params: ActionParams{File: "main.go", Content: "package main"}},
		{StepNumber: 2, Action: ActionModifyFile, Params: ActionParams{File: "main.go", Content: "// more"}},
		{StepNumber: 3, Action: ActionExecuteCommand, Params: ActionParams{Command: "ls"}},
		{StepNumber: 4, Action: ActionCreateDirectory, Params: ActionParams{Directory: "build"}},
		{StepNumber: 5, Action: ActionGitOperation, Params: ActionParams{Operation: "commit", Message: "initial"}},
		{StepNumber: 6, Action: ActionExternalTool, Params: ActionParams{Action: "open", Path: "."}},
		{StepNumber: 7, Action: ActionAPICall, Params: ActionParams{URL: "https://example.com", Method: "GET"}},
		{StepNumber: 8, Action: ActionDatabase, Params: ActionParams{Operation: "query", Statement: "SELECT 1"}},
		{StepNumber: 9, Action: ActionTestExecution, Params: ActionParams{Command: "go test ./..."}},
		{StepNumber: 10, Action: ActionValidation, Params: ActionParams{Check: "file_exists", File: "main.go"}},
		{StepNumber: 11, Action: ActionCustom, Params: ActionParams{Name: "noop"}},
	}

	for _, step := range steps {
		if err := step.Validate(); err != nil {
			t.Fatalf("step %d (%s): unexpected error: %v", step.StepNumber, step.Action, err)
		}
	}
}

func TestStepValidateRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		step ExecutionStep
	}{
		{"create file without file", ExecutionStep{StepNumber: 1, Action: ActionCreateFile}},
		{"command without command", ExecutionStep{StepNumber: 1, Action: ActionExecuteCommand}},
		{"command with blank command", ExecutionStep{StepNumber: 1, Action: ActionExecuteCommand, Params: ActionParams{Command: "   "}}},
		{"directory without directory", ExecutionStep{StepNumber: 1, Action: ActionCreateDirectory}},
		{"git commit without message", ExecutionStep{StepNumber: 1, Action: ActionGitOperation, Params: ActionParams{Operation: "commit"}}},
		{"git with unknown operation", ExecutionStep{StepNumber: 1, Action: ActionGitOperation, Params: ActionParams{Operation: "rebase"}}},
		{"external tool open without path", ExecutionStep{StepNumber: 1, Action: ActionExternalTool, Params: ActionParams{Action: "open"}}},
		{"external tool with unknown action", ExecutionStep{StepNumber: 1, Action: ActionExternalTool, Params: ActionParams{Action: "format"}}},
		{"api call without method", ExecutionStep{StepNumber: 1, Action: ActionAPICall, Params: ActionParams{URL: "https://example.com"}}},
		{"database query without statement", ExecutionStep{StepNumber: 1, Action: ActionDatabase, Params: ActionParams{Operation: "query"}}},
		{"database with unknown operation", ExecutionStep{StepNumber: 1, Action: ActionDatabase, Params: ActionParams{Operation: "drop"}}},
		{"validation file_exists without file", ExecutionStep{StepNumber: 1, Action: ActionValidation, Params: ActionParams{Check: "file_exists"}}},
		{"custom without name", ExecutionStep{StepNumber: 1, Action: ActionCustom}},
		{"unknown action kind", ExecutionStep{StepNumber: 1, Action: ActionKind("TELEPORT")}},
		{"zero step number", ExecutionStep{StepNumber: 0, Action: ActionCustom, Params: ActionParams{Name: "noop"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.step.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidStep) {
				t.Fatalf("expected ErrInvalidStep got %v", err)
			}
		})
	}
}

func TestPromptStatusTerminal(t *testing.T) {
	terminal := []PromptStatus{PromptCompleted, PromptFailed, PromptCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}

	live := []PromptStatus{PromptPending, PromptReady, PromptRunning, PromptSkipped}
	for _, s := range live {
		if s.Terminal() {
			t.Fatalf("expected %s not to be terminal", s)
		}
	}
}

func TestTerminalErrorMarking(t *testing.T) {
	base := errors.New("unknown git operation")

	if IsTerminal(base) {
		t.Fatal("plain error must not be terminal")
	}
	if !IsTerminal(TerminalError(base)) {
		t.Fatal("marked error must be terminal")
	}
	if TerminalError(nil) != nil {
		t.Fatal("marking nil must return nil")
	}
	if !errors.Is(TerminalError(base), base) {
		t.Fatal("marking must preserve the error chain")
	}
}

func TestRetryExhaustedErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &RetryExhaustedError{StepNumber: 2, Attempts: 3, Err: cause}

	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable through Unwrap")
	}
}

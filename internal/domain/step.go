// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"fmt"
	"strings"
)

type StepStatus string
type ActionKind string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
	StepSkipped   StepStatus = "SKIPPED"
)

const (
	ActionCreateFile      ActionKind = "CREATE_FILE"
	ActionModifyFile      ActionKind = "MODIFY_FILE"
	ActionExecuteCommand  ActionKind = "EXECUTE_COMMAND"
	ActionCreateDirectory ActionKind = "CREATE_DIRECTORY"
	ActionGitOperation    ActionKind = "GIT_OPERATION"
	ActionExternalTool    ActionKind = "EXTERNAL_TOOL"
	ActionAPICall         ActionKind = "API_CALL"
	ActionDatabase        ActionKind = "DATABASE_OPERATION"
	ActionTestExecution   ActionKind = "TEST_EXECUTION"
	ActionValidation      ActionKind = "VALIDATION"
	ActionCustom          ActionKind = "CUSTOM"
)

// ActionParams carries the per-kind payload of a step. Which fields are
// required depends on the action kind; Validate enforces that at
// document registration time so dispatch never hits a missing field.
type ActionParams struct {
	// File actions.
	File      string `json:"file,omitempty"`
	Content   string `json:"content,omitempty"`
	Directory string `json:"directory,omitempty"`

	// Command / test execution.
	Command string `json:"command,omitempty"`

	// Git: Operation is one of init, status, add, commit.
	Operation string `json:"operation,omitempty"`
	Files     string `json:"files,omitempty"`
	Message   string `json:"message,omitempty"`

	// External tool: Action is one of open, install_extension.
	Action    string `json:"action,omitempty"`
	Path      string `json:"path,omitempty"`
	Extension string `json:"extension,omitempty"`

	// API call.
	URL    string `json:"url,omitempty"`
	Method string `json:"method,omitempty"`
	Body   string `json:"body,omitempty"`

	// Database operation: Statement is required for query/exec.
	Statement string `json:"statement,omitempty"`

	// Validation.
	Check string `json:"check,omitempty"`

	// Custom action name.
	Name string `json:"name,omitempty"`
}

// ExecutionStep is one atomic typed action within a prompt. StepNumber
// is 1-based and defines execution order.
type ExecutionStep struct {
	StepNumber  int          `json:"step_number"`
	Description string       `json:"description,omitempty"`
	Action      ActionKind   `json:"action"`
	Params      ActionParams `json:"params"`
	Status      StepStatus   `json:"status"`
}

var gitOperations = map[string]bool{
	"init":   true,
	"status": true,
	"add":    true,
	"commit": true,
}

var externalToolActions = map[string]bool{
	"open":              true,
	"install_extension": true,
}

// Validate checks the payload against the step's action kind. It is run
// when a document is registered, not at dispatch time.
func (s ExecutionStep) Validate() error {
	if s.StepNumber < 1 {
		return fmt.Errorf("%w: step_number must be >= 1", ErrInvalidStep)
	}

	switch s.Action {
	case ActionCreateFile, ActionModifyFile:
		if s.Params.File == "" {
			return s.missing("file")
		}
	case ActionExecuteCommand, ActionTestExecution:
		if strings.TrimSpace(s.Params.Command) == "" {
			return s.missing("command")
		}
	case ActionCreateDirectory:
		if s.Params.Directory == "" {
			return s.missing("directory")
		}
	case ActionGitOperation:
		if s.Params.Operation == "" {
			return s.missing("operation")
		}
		if !gitOperations[s.Params.Operation] {
			return fmt.Errorf("%w: step %d: unknown git operation %q",
				ErrInvalidStep, s.StepNumber, s.Params.Operation)
		}
		if s.Params.Operation == "commit" && strings.TrimSpace(s.Params.Message) == "" {
			return s.missing("message")
		}
	case ActionExternalTool:
		if s.Params.Action == "" {
			return s.missing("action")
		}
		if !externalToolActions[s.Params.Action] {
			return fmt.Errorf("%w: step %d: unknown external tool action %q",
				ErrInvalidStep, s.StepNumber, s.Params.Action)
		}
		if s.Params.Action == "open" && s.Params.Path == "" {
			return s.missing("path")
		}
		if s.Params.Action == "install_extension" && s.Params.Extension == "" {
			return s.missing("extension")
		}
	case ActionAPICall:
		if s.Params.URL == "" {
			return s.missing("url")
		}
		if s.Params.Method == "" {
			return s.missing("method")
		}
	case ActionDatabase:
		switch s.Params.Operation {
		case "ping":
		case "query", "exec":
			if strings.TrimSpace(s.Params.Statement) == "" {
				return s.missing("statement")
			}
		case "":
			return s.missing("operation")
		default:
			return fmt.Errorf("%w: step %d: unknown database operation %q",
				ErrInvalidStep, s.StepNumber, s.Params.Operation)
		}
	case ActionValidation:
		if s.Params.Check == "" {
			return s.missing("check")
		}
		if s.Params.Check == "file_exists" && s.Params.File == "" {
			return s.missing("file")
		}
	case ActionCustom:
		if s.Params.Name == "" {
			return s.missing("name")
		}
	default:
		return fmt.Errorf("%w: step %d: unknown action %q",
			ErrInvalidStep, s.StepNumber, s.Action)
	}

	return nil
}

func (s ExecutionStep) missing(field string) error {
	return fmt.Errorf("%w: step %d (%s): missing required parameter %q",
		ErrInvalidStep, s.StepNumber, s.Action, field)
}

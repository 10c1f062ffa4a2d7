// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"fmt"
)

var ErrDocumentNotFound = errors.New("document not found")
var ErrPromptNotFound = errors.New("prompt not found")
var ErrExecutionNotFound = errors.New("execution not found")
var ErrExecutionInFlight = errors.New("prompt execution already in flight")
var ErrInvalidState = errors.New("execution is not in the expected state")
var ErrInvalidStep = errors.New("invalid step")
var ErrInvalidDocument = errors.New("invalid document")

// UnsatisfiedDependencyError reports the first dependency of a prompt
// that has not reached COMPLETED. The gate fails fast; it never
// aggregates remaining unmet dependencies.
type UnsatisfiedDependencyError struct {
	PromptNumber int
	DepNumber    int
	DepStatus    PromptStatus
}

func (e *UnsatisfiedDependencyError) Error() string {
	return fmt.Sprintf("prompt %d: dependency %d not satisfied (status %s)",
		e.PromptNumber, e.DepNumber, e.DepStatus)
}

// RetryExhaustedError terminates a prompt after a step kept failing
// past the retry budget. Attempts counts every dispatch of the step,
// including the first.
type RetryExhaustedError struct {
	StepNumber int
	Attempts   int
	Err        error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("step %d failed after %d attempts: %v",
		e.StepNumber, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

type terminalStepError struct {
	err error
}

func (e *terminalStepError) Error() string { return e.err.Error() }
func (e *terminalStepError) Unwrap() error { return e.err }

// TerminalError marks a step failure as not worth retrying (bad input,
// unknown operation, missing file). Failures without the mark are
// treated as transient and retried per policy.
func TerminalError(err error) error {
	if err == nil {
		return nil
	}
	return &terminalStepError{err: err}
}

func IsTerminal(err error) bool {
	var t *terminalStepError
	return errors.As(err, &t)
}

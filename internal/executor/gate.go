// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"fmt"

	"github.com/adiadia/prompt-runner/internal/domain"
)

// validateDependencies admits a prompt only when every dependency has
// reached COMPLETED. It fails on the first unmet dependency and has no
// side effects. A dependency number with no matching prompt means the
// parser collaborator broke its contract; that surfaces as a distinct
// error rather than an unmet dependency.
func validateDependencies(doc *domain.PromptDocument, prompt *domain.ExecutablePrompt) error {
	for _, dep := range prompt.Dependencies {
		depPrompt := doc.Prompt(dep)
		if depPrompt == nil {
			return fmt.Errorf("%w: dependency prompt %d missing from document %s",
				domain.ErrPromptNotFound, dep, doc.ID)
		}
		if depPrompt.Status != domain.PromptCompleted {
			return &domain.UnsatisfiedDependencyError{
				PromptNumber: prompt.Number,
				DepNumber:    dep,
				DepStatus:    depPrompt.Status,
			}
		}
	}
	return nil
}

package service

import (
	"strings"

	"github.com/trungvu/tripflow/internal/domain/workflow"
)

// workflowState parses a caller-supplied status string into a lifecycle
// state, returning the zero value for anything unrecognized.
func workflowState(s string) workflow.State {
	if s == "" {
		return ""
	}
	state := workflow.State(strings.ToUpper(s))
	if !state.IsValid() {
		return ""
	}
	return state
}

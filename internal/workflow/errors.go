package workflow

import (
	"fmt"
	"strings"
)

// DuplicateTaskError reports an attempt to add a task whose id already
// exists in the workflow. Construction-time, fatal.
type DuplicateTaskError struct {
	ID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task with id %q already exists", e.ID)
}

// NotFoundError reports a lookup of a task id not present in the workflow.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %q not found", e.ID)
}

// InvalidStatusError reports a status value outside the defined enum.
type InvalidStatusError struct {
	Status string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q", e.Status)
}

// ValidationError aggregates the problems found by Validate. Any problem
// is fatal: a workflow that fails validation must not be run.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow validation failed: %s", strings.Join(e.Problems, "; "))
}

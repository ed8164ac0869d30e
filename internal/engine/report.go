package engine

import (
	"time"

	"github.com/emezac/dawn-sub002/internal/errctx"
	"github.com/emezac/dawn-sub002/internal/workflow"
)

// TaskTiming captures one task's execution window for the debug sink.
type TaskTiming struct {
	TaskID    string              `json:"task_id"`
	Status    workflow.TaskStatus `json:"status"`
	Success   bool                `json:"success"`
	Attempts  int                 `json:"attempts"`
	StartTime time.Time           `json:"start_time"`
	EndTime   time.Time           `json:"end_time"`
	Duration  time.Duration       `json:"duration"`
}

// RunReport is the full per-run debug report: traversal path, timings,
// and the error summary. It has no effect on execution; persistence and
// tooling consume it.
type RunReport struct {
	RunID         string          `json:"run_id"`
	WorkflowID    string          `json:"workflow_id"`
	WorkflowName  string          `json:"workflow_name"`
	Status        workflow.Status `json:"status"`
	Success       bool            `json:"success"`
	Error         string          `json:"error,omitempty"`
	ExecutionPath []string        `json:"execution_path"`
	TaskTimings   []TaskTiming    `json:"task_timings"`
	Errors        errctx.Summary  `json:"errors"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	Duration      time.Duration   `json:"duration"`
}

// RunResult is what a caller gets back from Run: the outcome, the last
// successful task's result, the first unrecovered failure, and the
// workflow variables accumulated along the way.
type RunResult struct {
	Success   bool            `json:"success"`
	Status    workflow.Status `json:"status"`
	Result    any             `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Variables map[string]any  `json:"variables,omitempty"`
	Report    *RunReport      `json:"report,omitempty"`
}

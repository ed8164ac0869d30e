package workflow

import (
	"github.com/emezac/dawn-sub002/internal/body"
	"github.com/emezac/dawn-sub002/internal/response"
)

// Kind selects which body backend a task delegates to.
type Kind string

const (
	KindTool          Kind = "tool"
	KindLLM           Kind = "llm"
	KindDirectHandler Kind = "direct_handler"
)

// TaskStatus represents the lifecycle state of one task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

var validTaskStatus = map[TaskStatus]bool{
	TaskPending:   true,
	TaskRunning:   true,
	TaskCompleted: true,
	TaskFailed:    true,
	TaskSkipped:   true,
}

// Task is one node of the workflow graph. A Task belongs to exactly one
// Workflow instance; it is never shared across concurrent runs. Use
// Workflow.Clone to get a fresh graph per run.
type Task struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Kind      Kind           `json:"kind"`
	InputData map[string]any `json:"input_data,omitempty"`

	// ToolName / HandlerName pick the concrete body out of the registry
	// for tool and direct_handler tasks. LLM tasks use the installed
	// invoker directly.
	ToolName    string `json:"tool_name,omitempty"`
	HandlerName string `json:"handler_name,omitempty"`

	Condition     string `json:"condition,omitempty"`
	NextOnSuccess string `json:"next_task_id_on_success,omitempty"`
	NextOnFailure string `json:"next_task_id_on_failure,omitempty"`
	AlwaysRun     bool   `json:"always_run,omitempty"`

	// MaxRetries and RetryDelaySeconds override the engine defaults when
	// set; nil means "use the configured default".
	MaxRetries        *int     `json:"max_retries,omitempty"`
	RetryDelaySeconds *float64 `json:"retry_delay_seconds,omitempty"`

	Status     TaskStatus         `json:"status"`
	OutputData *response.Response `json:"output_data,omitempty"`

	// Body is bound once at workflow build time from the registry and
	// never serialized.
	Body body.Func `json:"-"`
}

// SetStatus transitions the task to a new status. Only defined enum
// values are accepted.
func (t *Task) SetStatus(s TaskStatus) error {
	if !validTaskStatus[s] {
		return &InvalidStatusError{Status: string(s)}
	}
	t.Status = s
	return nil
}

// Terminal reports whether the task reached a terminal status.
func (t *Task) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed || t.Status == TaskSkipped
}

// Target returns the registry name the task's kind binds against.
func (t *Task) Target() string {
	switch t.Kind {
	case KindTool:
		return t.ToolName
	case KindDirectHandler:
		return t.HandlerName
	default:
		return ""
	}
}

// clone copies the task with fresh execution state. Configuration and
// the bound body carry over; status and output do not.
func (t *Task) clone() *Task {
	c := *t
	c.Status = TaskPending
	c.OutputData = nil
	c.InputData = deepCopyMap(t.InputData)
	return &c
}

// deepCopyMap copies nested maps and slices so clones never alias the
// original's input data.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

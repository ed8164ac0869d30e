// Package workflow holds the in-memory task graph: tasks, their explicit
// success/failure edges, and the fallback linear order used when a task
// defines no edge.
package workflow

import (
	"sync"
)

// Status represents the lifecycle state of a workflow run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var validStatus = map[Status]bool{
	StatusPending:   true,
	StatusRunning:   true,
	StatusCompleted: true,
	StatusFailed:    true,
	StatusCancelled: true,
}

// Workflow is the task collection plus traversal state. TaskOrder is the
// fallback chain: the engine walks it only when the current task defines
// no explicit next edge for its outcome.
type Workflow struct {
	mu sync.RWMutex

	ID        string
	Name      string
	Status    Status
	TaskOrder []string
	Variables map[string]any

	tasks map[string]*Task
}

// New creates an empty pending workflow.
func New(id, name string) *Workflow {
	return &Workflow{
		ID:        id,
		Name:      name,
		Status:    StatusPending,
		Variables: make(map[string]any),
		tasks:     make(map[string]*Task),
	}
}

// AddTask adds a task to the graph and appends it to the fallback order.
// A duplicate id is a fatal construction error and leaves the original
// task untouched.
func (w *Workflow) AddTask(t *Task) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.tasks[t.ID]; exists {
		return &DuplicateTaskError{ID: t.ID}
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	w.tasks[t.ID] = t
	w.TaskOrder = append(w.TaskOrder, t.ID)
	return nil
}

// GetTask returns the task with the given id.
func (w *Workflow) GetTask(id string) (*Task, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	t, ok := w.tasks[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return t, nil
}

// HasTask reports whether the id exists in the graph.
func (w *Workflow) HasTask(id string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.tasks[id]
	return ok
}

// Tasks returns the tasks in fallback order.
func (w *Workflow) Tasks() []*Task {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]*Task, 0, len(w.TaskOrder))
	for _, id := range w.TaskOrder {
		if t, ok := w.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of tasks.
func (w *Workflow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.tasks)
}

// SetStatus transitions the workflow to a new status. Only defined enum
// values are accepted.
func (w *Workflow) SetStatus(s Status) error {
	if !validStatus[s] {
		return &InvalidStatusError{Status: string(s)}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Status = s
	return nil
}

// Terminal reports whether the workflow reached a terminal status.
func (w *Workflow) Terminal() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Status == StatusCompleted || w.Status == StatusFailed || w.Status == StatusCancelled
}

// Clone produces a fresh graph for a new run: same configuration and
// body bindings, pristine statuses, empty outputs and variables.
// Concurrent runs of one definition must each run on their own clone.
func (w *Workflow) Clone() *Workflow {
	w.mu.RLock()
	defer w.mu.RUnlock()

	c := New(w.ID, w.Name)
	c.TaskOrder = make([]string, len(w.TaskOrder))
	copy(c.TaskOrder, w.TaskOrder)
	for id, t := range w.tasks {
		c.tasks[id] = t.clone()
	}
	return c
}

package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
)

// workflowJSON is the serialized shape of a workflow definition:
// {id, name, status, tasks: {id: task}, task_order}.
type workflowJSON struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Status    Status           `json:"status"`
	Tasks     map[string]*Task `json:"tasks"`
	TaskOrder []string         `json:"task_order"`
	Variables map[string]any   `json:"variables,omitempty"`
}

// MarshalJSON renders the workflow in its serialized definition shape.
func (w *Workflow) MarshalJSON() ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return json.Marshal(workflowJSON{
		ID:        w.ID,
		Name:      w.Name,
		Status:    w.Status,
		Tasks:     w.tasks,
		TaskOrder: w.TaskOrder,
		Variables: w.Variables,
	})
}

// FromJSON builds a workflow from its serialized definition. Tasks are
// added in task_order; tasks present in the map but absent from the
// order are appended in sorted id order so the fallback chain stays
// deterministic. Construction errors (duplicate ids) are fatal.
func FromJSON(data []byte) (*Workflow, error) {
	var def workflowJSON
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing workflow definition: %w", err)
	}
	if def.ID == "" {
		return nil, &ValidationError{Problems: []string{"workflow id is required"}}
	}

	w := New(def.ID, def.Name)
	if def.Status != "" {
		if err := w.SetStatus(def.Status); err != nil {
			return nil, err
		}
	}
	if def.Variables != nil {
		w.Variables = def.Variables
	}

	seen := make(map[string]bool)
	add := func(id string) error {
		t, ok := def.Tasks[id]
		if !ok {
			return &ValidationError{Problems: []string{fmt.Sprintf("task_order references unknown task %q", id)}}
		}
		if t.ID == "" {
			t.ID = id
		}
		if t.ID != id {
			return &ValidationError{Problems: []string{fmt.Sprintf("task key %q does not match task id %q", id, t.ID)}}
		}
		seen[id] = true
		return w.AddTask(t)
	}

	for _, id := range def.TaskOrder {
		if err := add(id); err != nil {
			return nil, err
		}
	}

	rest := make([]string, 0, len(def.Tasks))
	for id := range def.Tasks {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		if err := add(id); err != nil {
			return nil, err
		}
	}

	return w, nil
}

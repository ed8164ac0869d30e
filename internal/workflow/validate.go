package workflow

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// Validate checks the graph once at build time so traversal never has to:
// every success/failure edge must point at an existing task, and the
// success edges combined with the fallback order must be acyclic, since
// a cycle there means a run that can never terminate. Failure edges may
// point backwards: error-handling hops are legal.
func (w *Workflow) Validate() error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var problems []string

	for _, id := range w.TaskOrder {
		if _, ok := w.tasks[id]; !ok {
			problems = append(problems, fmt.Sprintf("task_order references unknown task %q", id))
		}
	}

	for id, t := range w.tasks {
		if t.NextOnSuccess != "" {
			if _, ok := w.tasks[t.NextOnSuccess]; !ok {
				problems = append(problems, fmt.Sprintf("task %q: success edge targets unknown task %q", id, t.NextOnSuccess))
			}
		}
		if t.NextOnFailure != "" {
			if _, ok := w.tasks[t.NextOnFailure]; !ok {
				problems = append(problems, fmt.Sprintf("task %q: failure edge targets unknown task %q", id, t.NextOnFailure))
			}
		}
		switch t.Kind {
		case KindTool, KindLLM, KindDirectHandler:
		default:
			problems = append(problems, fmt.Sprintf("task %q: unknown kind %q", id, t.Kind))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	if err := w.checkAcyclic(); err != nil {
		return err
	}
	return nil
}

// checkAcyclic runs a topological sort over the forward graph: explicit
// success edges plus consecutive fallback-order hops.
func (w *Workflow) checkAcyclic() error {
	var edges []toposort.Edge

	for i, id := range w.TaskOrder {
		if i+1 < len(w.TaskOrder) {
			edges = append(edges, toposort.Edge{id, w.TaskOrder[i+1]})
		} else {
			// Last task still needs a node in the sort.
			edges = append(edges, toposort.Edge{nil, id})
		}
	}
	for id, t := range w.tasks {
		if t.NextOnSuccess != "" {
			edges = append(edges, toposort.Edge{id, t.NextOnSuccess})
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return &ValidationError{Problems: []string{fmt.Sprintf("success path contains a cycle: %v", err)}}
	}
	return nil
}

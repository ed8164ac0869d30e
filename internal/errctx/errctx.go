// Package errctx tracks task errors across one workflow run: recording,
// propagation between tasks, and derived summaries. The variable resolver
// reads it to answer ${error....} references.
package errctx

import (
	"fmt"
	"sort"
	"time"
)

// ChainEntry marks one hop in an error's propagation chain.
type ChainEntry struct {
	TaskID    string `json:"task_id"`
	Timestamp string `json:"timestamp"`
}

// Record holds the normalized error recorded for one task.
type Record struct {
	Error            string         `json:"error"`
	ErrorCode        string         `json:"error_code"`
	ErrorDetails     map[string]any `json:"error_details,omitempty"`
	Timestamp        string         `json:"timestamp"`
	PropagationChain []ChainEntry   `json:"propagation_chain,omitempty"`

	// seq orders records stored in the same context so equal timestamps
	// still resolve to the most recent one.
	seq int
}

// PropagationEvent records one propagate call for the run summary.
type PropagationEvent struct {
	SourceTaskID string `json:"source_task_id"`
	TargetTaskID string `json:"target_task_id"`
	Timestamp    string `json:"timestamp"`
}

// Summary is the derived view returned by Summary().
type Summary struct {
	WorkflowID       string   `json:"workflow_id"`
	ErrorCount       int      `json:"error_count"`
	HasErrors        bool     `json:"has_errors"`
	TasksWithErrors  []string `json:"tasks_with_errors"`
	PropagationCount int      `json:"propagation_count"`
	LatestError      *Record  `json:"latest_error,omitempty"`
}

// Context is the per-run error store. One instance is created per
// workflow run and mutated only by that run's engine; it is never shared
// between concurrent runs.
type Context struct {
	workflowID string
	taskErrors map[string]*Record
	propagated []PropagationEvent
	seq        int
	now        func() time.Time
}

// New creates an empty error context for a workflow run.
func New(workflowID string) *Context {
	return &Context{
		workflowID: workflowID,
		taskErrors: make(map[string]*Record),
		now:        time.Now,
	}
}

// WorkflowID returns the owning workflow's id.
func (c *Context) WorkflowID() string { return c.workflowID }

// Record normalizes error data and stores it for the task, overwriting
// any prior record (last write wins). Missing fields are defaulted:
// error_code to UNKNOWN_ERROR and timestamp to now.
func (c *Context) Record(taskID string, data map[string]any) *Record {
	rec := &Record{}
	if v, ok := data["error"].(string); ok && v != "" {
		rec.Error = v
	} else {
		rec.Error = fmt.Sprintf("task %s failed", taskID)
	}
	if v, ok := data["error_code"].(string); ok && v != "" {
		rec.ErrorCode = v
	} else {
		rec.ErrorCode = "UNKNOWN_ERROR"
	}
	if v, ok := data["error_details"].(map[string]any); ok {
		rec.ErrorDetails = v
	}
	if v, ok := data["timestamp"].(string); ok && v != "" {
		rec.Timestamp = v
	} else {
		rec.Timestamp = c.timestamp()
	}
	c.seq++
	rec.seq = c.seq
	c.taskErrors[taskID] = rec
	return rec
}

// Propagate copies the source task's error onto the target task, noting
// the causal hop in the propagation chain. A source with no recorded
// error yields a synthesized generic record rather than an error; the
// downstream task still needs something to inherit.
func (c *Context) Propagate(sourceTaskID, targetTaskID string, additional map[string]any) *Record {
	src, ok := c.taskErrors[sourceTaskID]
	if !ok {
		src = &Record{
			Error:     fmt.Sprintf("unknown error in task %s", sourceTaskID),
			ErrorCode: "UNKNOWN_ERROR",
			Timestamp: c.timestamp(),
		}
	}

	rec := &Record{
		Error:     fmt.Sprintf("error propagated from task %s: %s", sourceTaskID, src.Error),
		ErrorCode: src.ErrorCode,
		Timestamp: c.timestamp(),
	}
	rec.ErrorDetails = make(map[string]any, len(src.ErrorDetails)+len(additional))
	for k, v := range src.ErrorDetails {
		rec.ErrorDetails[k] = v
	}
	for k, v := range additional {
		rec.ErrorDetails[k] = v
	}
	rec.PropagationChain = append(rec.PropagationChain, src.PropagationChain...)
	rec.PropagationChain = append(rec.PropagationChain, ChainEntry{
		TaskID:    sourceTaskID,
		Timestamp: rec.Timestamp,
	})

	c.seq++
	rec.seq = c.seq
	c.taskErrors[targetTaskID] = rec
	c.propagated = append(c.propagated, PropagationEvent{
		SourceTaskID: sourceTaskID,
		TargetTaskID: targetTaskID,
		Timestamp:    rec.Timestamp,
	})
	return rec
}

// Get returns the record for a task, or nil if none was recorded.
func (c *Context) Get(taskID string) *Record {
	return c.taskErrors[taskID]
}

// Latest returns the record with the greatest timestamp, or nil if the
// context is empty. RFC 3339 timestamps compare correctly as strings;
// equal timestamps resolve to the most recently stored record.
func (c *Context) Latest() *Record {
	var latest *Record
	for _, rec := range c.taskErrors {
		if latest == nil || rec.Timestamp > latest.Timestamp ||
			(rec.Timestamp == latest.Timestamp && rec.seq > latest.seq) {
			latest = rec
		}
	}
	return latest
}

// Summary derives the run-level error overview. Calling it repeatedly
// without intervening mutation returns identical output.
func (c *Context) Summary() Summary {
	return Summary{
		WorkflowID:       c.workflowID,
		ErrorCount:       len(c.taskErrors),
		HasErrors:        len(c.taskErrors) > 0,
		TasksWithErrors:  c.taskIDs(),
		PropagationCount: len(c.propagated),
		LatestError:      c.Latest(),
	}
}

// Propagations returns the propagate events in occurrence order.
func (c *Context) Propagations() []PropagationEvent {
	out := make([]PropagationEvent, len(c.propagated))
	copy(out, c.propagated)
	return out
}

func (c *Context) taskIDs() []string {
	ids := make([]string, 0, len(c.taskErrors))
	for id := range c.taskErrors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Context) timestamp() string {
	return c.now().UTC().Format(time.RFC3339Nano)
}

// AsMap renders a record as a plain map for dotted-path navigation.
func (r *Record) AsMap() map[string]any {
	if r == nil {
		return nil
	}
	m := map[string]any{
		"error":      r.Error,
		"error_code": r.ErrorCode,
		"timestamp":  r.Timestamp,
	}
	if r.ErrorDetails != nil {
		m["error_details"] = r.ErrorDetails
	}
	if len(r.PropagationChain) > 0 {
		chain := make([]any, len(r.PropagationChain))
		for i, e := range r.PropagationChain {
			chain[i] = map[string]any{"task_id": e.TaskID, "timestamp": e.Timestamp}
		}
		m["propagation_chain"] = chain
	}
	return m
}

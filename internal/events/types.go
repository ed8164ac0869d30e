package events

import (
	"time"
)

// Event is the base interface for everything published on the bus.
type Event interface {
	EventType() string
	RunID() string
}

// Topic constants
const (
	TopicTask = "task"
	TopicRun  = "run"
)

// Event type constants
const (
	EventTypeRunStarted      = "run.started"
	EventTypeRunFinished     = "run.finished"
	EventTypeTaskStarted     = "task.started"
	EventTypeTaskCompleted   = "task.completed"
	EventTypeTaskFailed      = "task.failed"
	EventTypeTaskSkipped     = "task.skipped"
	EventTypeTaskRetrying    = "task.retrying"
	EventTypeErrorPropagated = "task.error_propagated"
)

// RunStartedEvent is published when a workflow run begins.
type RunStartedEvent struct {
	ID         string // run id
	WorkflowID string
	TaskCount  int
	Timestamp  time.Time
}

func (e RunStartedEvent) EventType() string { return EventTypeRunStarted }
func (e RunStartedEvent) RunID() string     { return e.ID }

// RunFinishedEvent is published when a workflow run reaches a terminal
// status.
type RunFinishedEvent struct {
	ID         string
	WorkflowID string
	Status     string
	Success    bool
	Error      string
	Duration   time.Duration
	Timestamp  time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) RunID() string     { return e.ID }

// TaskStartedEvent is published when the engine selects a task and
// begins executing its body.
type TaskStartedEvent struct {
	Run       string
	TaskID    string
	Name      string
	Kind      string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) RunID() string     { return e.Run }

// TaskCompletedEvent is published when a task body succeeds.
type TaskCompletedEvent struct {
	Run       string
	TaskID    string
	Duration  time.Duration
	Attempts  int
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) RunID() string     { return e.Run }

// TaskFailedEvent is published when a task's final attempt fails.
type TaskFailedEvent struct {
	Run       string
	TaskID    string
	Error     string
	ErrorCode string
	Duration  time.Duration
	Attempts  int
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) RunID() string     { return e.Run }

// TaskSkippedEvent is published when a task is skipped, either by a
// false condition or because the workflow already failed.
type TaskSkippedEvent struct {
	Run       string
	TaskID    string
	Reason    string
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) RunID() string     { return e.Run }

// TaskRetryingEvent is published before each retry attempt.
type TaskRetryingEvent struct {
	Run       string
	TaskID    string
	Attempt   int
	Delay     time.Duration
	Timestamp time.Time
}

func (e TaskRetryingEvent) EventType() string { return EventTypeTaskRetrying }
func (e TaskRetryingEvent) RunID() string     { return e.Run }

// ErrorPropagatedEvent is published when an error record is copied from
// one task onto another.
type ErrorPropagatedEvent struct {
	Run        string
	SourceTask string
	TargetTask string
	Timestamp  time.Time
}

func (e ErrorPropagatedEvent) EventType() string { return EventTypeErrorPropagated }
func (e ErrorPropagatedEvent) RunID() string     { return e.Run }

package engine

import (
	"github.com/emezac/dawn-sub002/internal/workflow"
)

// Hooks receives lifecycle callbacks around task and run execution.
// Implementations must be fast and must not block: the engine calls them
// inline. Instrumentation is passed in at construction, not patched in
// at runtime.
type Hooks interface {
	OnTaskStart(task *workflow.Task)
	OnTaskEnd(task *workflow.Task, timing TaskTiming)
	OnRunEnd(report *RunReport)
}

// NopHooks is the default no-op implementation.
type NopHooks struct{}

func (NopHooks) OnTaskStart(*workflow.Task)           {}
func (NopHooks) OnTaskEnd(*workflow.Task, TaskTiming) {}
func (NopHooks) OnRunEnd(*RunReport)                  {}

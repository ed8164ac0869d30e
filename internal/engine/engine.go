// Package engine walks a workflow graph: it selects tasks, resolves
// their inputs against prior outputs and recorded errors, invokes task
// bodies under retry and circuit-breaker policy, and follows explicit
// success/failure edges (or the fallback order) until the run reaches a
// terminal status.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/emezac/dawn-sub002/internal/body"
	"github.com/emezac/dawn-sub002/internal/config"
	"github.com/emezac/dawn-sub002/internal/errctx"
	"github.com/emezac/dawn-sub002/internal/events"
	"github.com/emezac/dawn-sub002/internal/resolver"
	"github.com/emezac/dawn-sub002/internal/response"
	"github.com/emezac/dawn-sub002/internal/workflow"
)

// Engine executes workflow runs. It is safe for concurrent use as long
// as every concurrent run receives its own Workflow instance (use
// Workflow.Clone); the engine itself holds no per-run state.
type Engine struct {
	cfg        config.EngineConfig
	registry   *body.Registry
	logger     *log.Logger
	bus        *events.Bus
	hooks      Hooks
	breakers   *breakerRegistry
	conditions *conditionEvaluator
	resolver   *resolver.Resolver
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithBus attaches an event bus for telemetry. Nil disables publishing.
func WithBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithHooks installs lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// New creates an engine around a body registry and engine settings.
func New(cfg config.EngineConfig, registry *body.Registry, opts ...Option) (*Engine, error) {
	conditions, err := newConditionEvaluator()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:        cfg,
		registry:   registry,
		logger:     log.Default(),
		hooks:      NopHooks{},
		breakers:   newBreakerRegistry(),
		conditions: conditions,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = resolver.New(e.logger)
	return e, nil
}

// Prepare validates the workflow, binds task bodies from the registry,
// and compiles every condition. Construction problems are fatal here so
// a run never trips over them mid-traversal.
func (e *Engine) Prepare(wf *workflow.Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}

	var problems []string
	for _, task := range wf.Tasks() {
		if task.Body == nil {
			fn, err := e.registry.Bind(string(task.Kind), task.Target())
			if err != nil {
				problems = append(problems, fmt.Sprintf("task %q: %v", task.ID, err))
				continue
			}
			task.Body = fn
		}
		if task.Condition != "" {
			if _, err := e.conditions.compile(task.Condition); err != nil {
				problems = append(problems, fmt.Sprintf("task %q: %v", task.ID, err))
			}
		}
	}
	if len(problems) > 0 {
		return &workflow.ValidationError{Problems: problems}
	}
	return nil
}

// run carries the mutable state of one traversal.
type run struct {
	id      string
	wf      *workflow.Workflow
	ec      *errctx.Context
	outputs map[string]*response.Response

	path       []string
	timings    []TaskTiming
	lastResult any
	firstError string
	sawFailure bool
	startedAt  time.Time
	orderIndex map[string]int
}

// Run executes one workflow instance to a terminal status. The workflow
// must not be shared with another in-flight run. Input becomes the
// initial workflow variables (user_prompt lives here).
func (e *Engine) Run(ctx context.Context, wf *workflow.Workflow, input map[string]any) (*RunResult, error) {
	if err := e.Prepare(wf); err != nil {
		return nil, err
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.Timeout*float64(time.Second)))
		defer cancel()
	}

	r := &run{
		id:         uuid.NewString(),
		wf:         wf,
		ec:         errctx.New(wf.ID),
		outputs:    make(map[string]*response.Response),
		orderIndex: make(map[string]int, len(wf.TaskOrder)),
		startedAt:  time.Now(),
	}
	for i, id := range wf.TaskOrder {
		if _, ok := r.orderIndex[id]; !ok {
			r.orderIndex[id] = i
		}
	}
	for k, v := range input {
		wf.Variables[k] = v
	}

	if err := wf.SetStatus(workflow.StatusRunning); err != nil {
		return nil, err
	}
	e.logger.Info("run started", "run", r.id, "workflow", wf.ID, "tasks", wf.Len())
	e.publish(events.TopicRun, events.RunStartedEvent{
		ID:         r.id,
		WorkflowID: wf.ID,
		TaskCount:  wf.Len(),
		Timestamp:  r.startedAt,
	})

	e.traverse(ctx, r)

	// Cleanup pass: always_run tasks still execute after a failure so
	// error reports and teardown get their turn.
	if r.sawFailure {
		e.runAlwaysRunTasks(ctx, r)
	}

	return e.finalize(r), nil
}

// traverse walks the graph from the first task in the fallback order
// until no next task exists or the run is cancelled.
func (e *Engine) traverse(ctx context.Context, r *run) {
	if len(r.wf.TaskOrder) == 0 {
		return
	}
	current := r.wf.TaskOrder[0]

	for current != "" {
		if err := ctx.Err(); err != nil {
			e.cancelRun(r, err)
			return
		}

		task, err := r.wf.GetTask(current)
		if err != nil || task.Terminal() {
			// A terminal task means a failure edge looped back; the
			// single-traversal rule ends the run here.
			return
		}

		outcome := e.executeTask(ctx, r, task)
		current = e.nextTask(r, task, outcome)
	}
}

// executeTask runs one task through the execution algorithm (condition
// gate, input resolution, body invocation, outcome recording) and
// returns its terminal status.
func (e *Engine) executeTask(ctx context.Context, r *run, task *workflow.Task) workflow.TaskStatus {
	r.path = append(r.path, task.ID)

	// (a) Condition gate.
	if task.Condition != "" {
		ok, err := e.conditions.evaluate(task.Condition, r.wf.Variables, r.taskMaps())
		if err != nil {
			// Compile errors were caught in Prepare; a runtime error
			// (missing key, bad type) gates the task closed.
			e.logger.Warn("condition evaluation failed, skipping task", "task", task.ID, "err", err)
			ok = false
		}
		if !ok {
			e.skipTask(r, task, "condition evaluated false")
			return workflow.TaskSkipped
		}
	}

	// (b) Resolve inputs against prior outputs and recorded errors.
	scope := &resolver.Scope{
		TaskOutputs: r.outputs,
		Errors:      r.ec,
		Variables:   r.wf.Variables,
	}
	input, err := e.resolver.ResolveInput(task.InputData, scope)
	if err != nil {
		resp := response.NewFailure(err.Error(), response.CodeInvalidReference, nil)
		e.recordOutcome(r, task, resp, 1, time.Now(), time.Now())
		return workflow.TaskFailed
	}

	_ = task.SetStatus(workflow.TaskRunning)
	e.hooks.OnTaskStart(task)
	start := time.Now()
	e.publish(events.TopicTask, events.TaskStartedEvent{
		Run:       r.id,
		TaskID:    task.ID,
		Name:      task.Name,
		Kind:      string(task.Kind),
		Timestamp: start,
	})

	// (c) Invoke the body under retry and breaker policy.
	resp, attempts := e.invokeWithRetry(ctx, r.id, task, input)
	end := time.Now()

	// (d) Classify, store, record.
	e.recordOutcome(r, task, resp, attempts, start, end)
	if resp.Success {
		return workflow.TaskCompleted
	}
	return workflow.TaskFailed
}

// recordOutcome stores a task's final response, records failures in the
// error context, and emits timing telemetry. A failure does not mark the
// workflow failed here: traversal decides whether a failure edge handles
// it, and finalize derives the terminal status.
func (e *Engine) recordOutcome(r *run, task *workflow.Task, resp *response.Response, attempts int, start, end time.Time) {
	task.OutputData = resp
	r.outputs[task.ID] = resp

	timing := TaskTiming{
		TaskID:    task.ID,
		Attempts:  attempts,
		Success:   resp.Success,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
	}

	if resp.Success {
		_ = task.SetStatus(workflow.TaskCompleted)
		timing.Status = workflow.TaskCompleted
		r.lastResult = resp.Result
		r.wf.Variables[task.ID] = resp.Result
		e.logger.Info("task completed", "task", task.ID, "attempts", attempts, "duration", timing.Duration)
		e.publish(events.TopicTask, events.TaskCompletedEvent{
			Run:       r.id,
			TaskID:    task.ID,
			Duration:  timing.Duration,
			Attempts:  attempts,
			Timestamp: end,
		})
	} else {
		_ = task.SetStatus(workflow.TaskFailed)
		timing.Status = workflow.TaskFailed
		r.sawFailure = true
		if r.firstError == "" {
			r.firstError = resp.Error
		}
		r.ec.Record(task.ID, map[string]any{
			"error":         resp.Error,
			"error_code":    resp.ErrorCode,
			"error_details": resp.ErrorDetails,
			"timestamp":     resp.Timestamp,
		})
		e.logger.Error("task failed", "task", task.ID, "code", resp.ErrorCode, "err", resp.Error)
		e.publish(events.TopicTask, events.TaskFailedEvent{
			Run:       r.id,
			TaskID:    task.ID,
			Error:     resp.Error,
			ErrorCode: resp.ErrorCode,
			Duration:  timing.Duration,
			Attempts:  attempts,
			Timestamp: end,
		})
	}

	r.timings = append(r.timings, timing)
	e.hooks.OnTaskEnd(task, timing)
}

// skipTask marks a task skipped without invoking its body.
func (e *Engine) skipTask(r *run, task *workflow.Task, reason string) {
	_ = task.SetStatus(workflow.TaskSkipped)
	now := time.Now()
	r.timings = append(r.timings, TaskTiming{
		TaskID:    task.ID,
		Status:    workflow.TaskSkipped,
		StartTime: now,
		EndTime:   now,
	})
	e.logger.Debug("task skipped", "task", task.ID, "reason", reason)
	e.publish(events.TopicTask, events.TaskSkippedEvent{
		Run:       r.id,
		TaskID:    task.ID,
		Reason:    reason,
		Timestamp: now,
	})
}

// nextTask applies the selection rule: the outcome's explicit edge wins;
// a missing success edge falls back to the next entry in task_order; a
// missing failure edge terminates the run. Skipped tasks follow the
// success path.
func (e *Engine) nextTask(r *run, task *workflow.Task, outcome workflow.TaskStatus) string {
	if outcome == workflow.TaskFailed {
		if task.NextOnFailure != "" {
			// The edge target executes like any other task; always_run
			// is not required to handle a failure. The target inherits
			// the failure's detail along with the causal hop.
			r.ec.Propagate(task.ID, task.NextOnFailure, nil)
			e.publish(events.TopicTask, events.ErrorPropagatedEvent{
				Run:        r.id,
				SourceTask: task.ID,
				TargetTask: task.NextOnFailure,
				Timestamp:  time.Now(),
			})
			return task.NextOnFailure
		}
		return ""
	}

	if task.NextOnSuccess != "" {
		return task.NextOnSuccess
	}
	if idx, ok := r.orderIndex[task.ID]; ok && idx+1 < len(r.wf.TaskOrder) {
		return r.wf.TaskOrder[idx+1]
	}
	return ""
}

// runAlwaysRunTasks executes pending always_run tasks after the main
// traversal ended in failure, in fallback order.
func (e *Engine) runAlwaysRunTasks(ctx context.Context, r *run) {
	for _, task := range r.wf.Tasks() {
		if task.Status != workflow.TaskPending || !task.AlwaysRun {
			continue
		}
		if err := ctx.Err(); err != nil {
			e.cancelRun(r, err)
			return
		}
		e.executeTask(ctx, r, task)
	}
}

// cancelRun handles context termination between tasks. A deadline turns
// into a run failure; an explicit cancellation ends the run cancelled.
func (e *Engine) cancelRun(r *run, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		r.sawFailure = true
		if r.firstError == "" {
			r.firstError = "workflow run timed out"
		}
		_ = r.wf.SetStatus(workflow.StatusFailed)
		e.logger.Error("run timed out", "run", r.id, "workflow", r.wf.ID)
		return
	}
	_ = r.wf.SetStatus(workflow.StatusCancelled)
	e.logger.Warn("run cancelled", "run", r.id, "workflow", r.wf.ID)
}

// finalize computes the terminal workflow status, marks untouched tasks
// skipped, and assembles the run result and report.
func (e *Engine) finalize(r *run) *RunResult {
	wf := r.wf
	if wf.Status != workflow.StatusCancelled {
		if r.sawFailure {
			_ = wf.SetStatus(workflow.StatusFailed)
		} else {
			_ = wf.SetStatus(workflow.StatusCompleted)
		}
	}
	for _, task := range wf.Tasks() {
		if task.Status == workflow.TaskPending {
			_ = task.SetStatus(workflow.TaskSkipped)
		}
	}

	finished := time.Now()
	report := &RunReport{
		RunID:         r.id,
		WorkflowID:    wf.ID,
		WorkflowName:  wf.Name,
		Status:        wf.Status,
		Success:       wf.Status == workflow.StatusCompleted,
		Error:         r.firstError,
		ExecutionPath: r.path,
		TaskTimings:   r.timings,
		Errors:        r.ec.Summary(),
		StartedAt:     r.startedAt,
		FinishedAt:    finished,
		Duration:      finished.Sub(r.startedAt),
	}
	e.hooks.OnRunEnd(report)
	e.logger.Info("run finished", "run", r.id, "status", wf.Status, "duration", report.Duration)
	e.publish(events.TopicRun, events.RunFinishedEvent{
		ID:         r.id,
		WorkflowID: wf.ID,
		Status:     string(wf.Status),
		Success:    report.Success,
		Error:      r.firstError,
		Duration:   report.Duration,
		Timestamp:  finished,
	})

	return &RunResult{
		Success:   report.Success,
		Status:    wf.Status,
		Result:    r.lastResult,
		Error:     r.firstError,
		Variables: wf.Variables,
		Report:    report,
	}
}

// taskMaps renders prior outputs for condition evaluation.
func (r *run) taskMaps() map[string]any {
	out := make(map[string]any, len(r.outputs))
	for id, resp := range r.outputs {
		out[id] = resp.AsMap()
	}
	return out
}

// publish sends an event if a bus is attached.
func (e *Engine) publish(topic string, event events.Event) {
	if e.bus != nil {
		e.bus.Publish(topic, event)
	}
}

// RunMany executes one workflow definition over several inputs
// concurrently, each run on its own cloned graph and fresh error
// context. concurrency <= 0 means unbounded.
func (e *Engine) RunMany(ctx context.Context, def *workflow.Workflow, inputs []map[string]any, concurrency int) ([]*RunResult, error) {
	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	results := make([]*RunResult, len(inputs))
	for i, input := range inputs {
		g.Go(func() error {
			res, err := e.Run(ctx, def.Clone(), input)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

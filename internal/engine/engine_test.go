package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/emezac/dawn-sub002/internal/body"
	"github.com/emezac/dawn-sub002/internal/config"
	"github.com/emezac/dawn-sub002/internal/response"
	"github.com/emezac/dawn-sub002/internal/workflow"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.EngineConfig{MaxRetries: 0, RetryDelay: 0, Timeout: 0}
	e, err := New(cfg, body.NewRegistry(), WithLogger(log.New(io.Discard)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func okBody(result any) body.Func {
	return func(ctx context.Context, input map[string]any) (any, error) {
		return result, nil
	}
}

func failBody(msg string) body.Func {
	return func(ctx context.Context, input map[string]any) (any, error) {
		return nil, errors.New(msg)
	}
}

func mustAdd(t *testing.T, wf *workflow.Workflow, task *workflow.Task) {
	t.Helper()
	if err := wf.AddTask(task); err != nil {
		t.Fatalf("AddTask(%s): %v", task.ID, err)
	}
}

// TestRunLinearSuccess walks a three-task chain with no explicit edges:
// fallback order applies, every task completes, and the run result
// carries the final task's output.
func TestRunLinearSuccess(t *testing.T) {
	wf := workflow.New("wf-linear", "linear")
	var order []string
	for _, id := range []string{"a", "b", "c"} {
		task := &workflow.Task{ID: id, Kind: workflow.KindTool}
		task.Body = func(ctx context.Context, input map[string]any) (any, error) {
			order = append(order, task.ID)
			return task.ID + "-done", nil
		}
		mustAdd(t, wf, task)
	}

	res, err := testEngine(t).Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !res.Success || res.Status != workflow.StatusCompleted {
		t.Errorf("result = success=%v status=%q, want completed", res.Success, res.Status)
	}
	if strings.Join(order, ",") != "a,b,c" {
		t.Errorf("execution order = %v", order)
	}
	if res.Result != "c-done" {
		t.Errorf("result = %v, want c-done", res.Result)
	}
	for _, task := range wf.Tasks() {
		if task.Status != workflow.TaskCompleted {
			t.Errorf("task %s status = %q", task.ID, task.Status)
		}
	}
	if got := res.Report.ExecutionPath; strings.Join(got, ",") != "a,b,c" {
		t.Errorf("execution path = %v", got)
	}
}

// TestRunRetryCap bounds attempts at max_retries+1 and surfaces only the
// final attempt's outcome.
func TestRunRetryCap(t *testing.T) {
	retries := 2
	var calls atomic.Int32

	wf := workflow.New("wf-retry", "retry")
	mustAdd(t, wf, &workflow.Task{
		ID:         "flaky",
		Kind:       workflow.KindTool,
		MaxRetries: &retries,
		Body: func(ctx context.Context, input map[string]any) (any, error) {
			if calls.Add(1) < 3 {
				return nil, errors.New("transient")
			}
			return "ok", nil
		},
	})

	res, err := testEngine(t).Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if calls.Load() != 3 {
		t.Errorf("body calls = %d, want 3", calls.Load())
	}
	if !res.Success {
		t.Errorf("run failed: %s", res.Error)
	}
	if got := res.Report.TaskTimings[0].Attempts; got != 3 {
		t.Errorf("recorded attempts = %d, want 3", got)
	}
}

// TestRunRetryExhausted keeps failing past the cap: the task fails, the
// workflow fails, and attempts stop at the bound.
func TestRunRetryExhausted(t *testing.T) {
	retries := 2
	var calls atomic.Int32

	wf := workflow.New("wf-exhaust", "exhaust")
	mustAdd(t, wf, &workflow.Task{
		ID:         "doomed",
		Kind:       workflow.KindTool,
		MaxRetries: &retries,
		Body: func(ctx context.Context, input map[string]any) (any, error) {
			calls.Add(1)
			return nil, errors.New("permanent")
		},
	})

	res, err := testEngine(t).Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if calls.Load() != 3 {
		t.Errorf("body calls = %d, want 3", calls.Load())
	}
	if res.Success || res.Status != workflow.StatusFailed {
		t.Errorf("result = success=%v status=%q, want failed", res.Success, res.Status)
	}
	task, _ := wf.GetTask("doomed")
	if task.OutputData.ErrorCode != response.CodeToolFailed {
		t.Errorf("error code = %q, want %q", task.OutputData.ErrorCode, response.CodeToolFailed)
	}
}

// TestRunFailureWithoutEdgeTerminates stops the traversal at a failed
// task with no failure edge; downstream tasks end up skipped.
func TestRunFailureWithoutEdgeTerminates(t *testing.T) {
	wf := workflow.New("wf-halt", "halt")
	mustAdd(t, wf, &workflow.Task{ID: "a", Kind: workflow.KindTool, Body: failBody("boom")})
	mustAdd(t, wf, &workflow.Task{ID: "b", Kind: workflow.KindTool, Body: okBody("unreached")})

	res, err := testEngine(t).Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Status != workflow.StatusFailed {
		t.Errorf("status = %q, want failed", res.Status)
	}
	b, _ := wf.GetTask("b")
	if b.Status != workflow.TaskSkipped {
		t.Errorf("downstream task status = %q, want skipped", b.Status)
	}
	if res.Error == "" || !strings.Contains(res.Error, "boom") {
		t.Errorf("run error = %q, want the task failure", res.Error)
	}
}

// TestRunFailureEdgeAndErrorReference is the canonical error-handling
// pipeline: b fails, its failure edge leads to the always_run report
// task, which reads b's error message through an error reference. The
// workflow still ends failed because a non-skipped task failed.
func TestRunFailureEdgeAndErrorReference(t *testing.T) {
	var reported any

	wf := workflow.New("wf-report", "report")
	mustAdd(t, wf, &workflow.Task{ID: "a", Kind: workflow.KindTool, Body: okBody("fine"), NextOnSuccess: "b"})
	mustAdd(t, wf, &workflow.Task{ID: "b", Kind: workflow.KindTool, Body: failBody("upstream exploded"), NextOnFailure: "c"})
	mustAdd(t, wf, &workflow.Task{
		ID:        "c",
		Kind:      workflow.KindTool,
		AlwaysRun: true,
		InputData: map[string]any{"error": "${error.b.error}"},
		Body: func(ctx context.Context, input map[string]any) (any, error) {
			reported = input["error"]
			return "reported", nil
		},
	})

	res, err := testEngine(t).Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Status != workflow.StatusFailed {
		t.Errorf("status = %q, want failed despite handled error", res.Status)
	}
	c, _ := wf.GetTask("c")
	if c.Status != workflow.TaskCompleted {
		t.Errorf("report task status = %q, want completed", c.Status)
	}
	if s, ok := reported.(string); !ok || !strings.Contains(s, "upstream exploded") {
		t.Errorf("report input = %v, want b's error message", reported)
	}
	if res.Report.Errors.PropagationCount != 1 {
		t.Errorf("propagation count = %d, want 1", res.Report.Errors.PropagationCount)
	}
}

// TestRunFailureEdgeRunsPlainHandler transfers control to the failure
// edge target even when it is not marked always_run, and the run
// continues past it; only a failure with no edge halts traversal.
func TestRunFailureEdgeRunsPlainHandler(t *testing.T) {
	var cause any
	handled := false

	wf := workflow.New("wf-plain-handler", "plain handler")
	mustAdd(t, wf, &workflow.Task{ID: "a", Kind: workflow.KindTool, Body: failBody("boom"), NextOnFailure: "handler"})
	mustAdd(t, wf, &workflow.Task{
		ID:        "handler",
		Kind:      workflow.KindDirectHandler,
		InputData: map[string]any{"cause": "${error.a.error}"},
		Body: func(ctx context.Context, input map[string]any) (any, error) {
			handled = true
			cause = input["cause"]
			return "handled", nil
		},
	})
	mustAdd(t, wf, &workflow.Task{ID: "after", Kind: workflow.KindTool, Body: okBody("ran")})

	res, err := testEngine(t).Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !handled {
		t.Fatal("failure edge target never executed")
	}
	handler, _ := wf.GetTask("handler")
	if handler.Status != workflow.TaskCompleted {
		t.Errorf("handler status = %q, want completed", handler.Status)
	}
	if s, ok := cause.(string); !ok || !strings.Contains(s, "boom") {
		t.Errorf("handler input = %v, want a's error message", cause)
	}
	after, _ := wf.GetTask("after")
	if after.Status != workflow.TaskCompleted {
		t.Errorf("downstream status = %q, want completed", after.Status)
	}
	if res.Status != workflow.StatusFailed {
		t.Errorf("status = %q, want failed because a non-skipped task failed", res.Status)
	}
}

// TestRunAlwaysRunSweep executes a pending always_run task even when the
// failed task had no failure edge pointing at it.
func TestRunAlwaysRunSweep(t *testing.T) {
	var cleaned bool

	wf := workflow.New("wf-sweep", "sweep")
	mustAdd(t, wf, &workflow.Task{ID: "work", Kind: workflow.KindTool, Body: failBody("died")})
	mustAdd(t, wf, &workflow.Task{
		ID:        "cleanup",
		Kind:      workflow.KindTool,
		AlwaysRun: true,
		Body: func(ctx context.Context, input map[string]any) (any, error) {
			cleaned = true
			return "done", nil
		},
	})

	res, err := testEngine(t).Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !cleaned {
		t.Error("always_run task never executed")
	}
	if res.Status != workflow.StatusFailed {
		t.Errorf("status = %q, want failed", res.Status)
	}
}

// TestRunConditionSkip gates a task closed and continues down the
// success path.
func TestRunConditionSkip(t *testing.T) {
	wf := workflow.New("wf-cond", "cond")
	mustAdd(t, wf, &workflow.Task{ID: "a", Kind: workflow.KindTool, Body: okBody("x")})
	mustAdd(t, wf, &workflow.Task{
		ID:        "gated",
		Kind:      workflow.KindTool,
		Condition: `variables.flag == true`,
		Body:      okBody("never"),
	})
	mustAdd(t, wf, &workflow.Task{ID: "c", Kind: workflow.KindTool, Body: okBody("last")})

	res, err := testEngine(t).Run(context.Background(), wf, map[string]any{"flag": false})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !res.Success {
		t.Errorf("run failed: %s", res.Error)
	}
	gated, _ := wf.GetTask("gated")
	if gated.Status != workflow.TaskSkipped {
		t.Errorf("gated status = %q, want skipped", gated.Status)
	}
	if res.Result != "last" {
		t.Errorf("result = %v, want last", res.Result)
	}
}

// TestRunConditionSeesTaskOutputs exposes prior outputs to conditions
// under the tasks variable.
func TestRunConditionSeesTaskOutputs(t *testing.T) {
	wf := workflow.New("wf-cond-tasks", "cond tasks")
	mustAdd(t, wf, &workflow.Task{ID: "probe", Kind: workflow.KindTool, Body: okBody("ready")})
	mustAdd(t, wf, &workflow.Task{
		ID:        "dependent",
		Kind:      workflow.KindTool,
		Condition: `tasks.probe.result == "ready"`,
		Body:      okBody("ran"),
	})

	res, err := testEngine(t).Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	dep, _ := wf.GetTask("dependent")
	if dep.Status != workflow.TaskCompleted {
		t.Errorf("dependent status = %q, want completed", dep.Status)
	}
	if !res.Success {
		t.Errorf("run failed: %s", res.Error)
	}
}

// TestRunResolutionError fails the task when its input holds a malformed
// reference.
func TestRunResolutionError(t *testing.T) {
	wf := workflow.New("wf-badref", "badref")
	mustAdd(t, wf, &workflow.Task{ID: "a", Kind: workflow.KindTool, Body: okBody("x"), NextOnSuccess: "b"})
	mustAdd(t, wf, &workflow.Task{
		ID:        "b",
		Kind:      workflow.KindTool,
		InputData: map[string]any{"v": "${a.result.x}"},
		Body:      okBody("never"),
	})

	res, err := testEngine(t).Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Status != workflow.StatusFailed {
		t.Errorf("status = %q, want failed", res.Status)
	}
	b, _ := wf.GetTask("b")
	if b.OutputData == nil || b.OutputData.ErrorCode != response.CodeInvalidReference {
		t.Errorf("output = %+v, want %s", b.OutputData, response.CodeInvalidReference)
	}
}

// TestRunInputResolution threads one task's output into the next task's
// input with the original type preserved.
func TestRunInputResolution(t *testing.T) {
	var got any

	wf := workflow.New("wf-resolve", "resolve")
	mustAdd(t, wf, &workflow.Task{ID: "produce", Kind: workflow.KindTool, Body: okBody(map[string]any{"count": 41})})
	mustAdd(t, wf, &workflow.Task{
		ID:        "consume",
		Kind:      workflow.KindTool,
		InputData: map[string]any{"n": "${produce.output.result.count}"},
		Body: func(ctx context.Context, input map[string]any) (any, error) {
			got = input["n"]
			return "done", nil
		},
	})

	if _, err := testEngine(t).Run(context.Background(), wf, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n, ok := got.(int); !ok || n != 41 {
		t.Errorf("resolved input = %v (%T), want int 41", got, got)
	}
}

// TestRunCancellation ends the run cancelled when the context is
// cancelled between tasks; untouched tasks end skipped.
func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	wf := workflow.New("wf-cancel", "cancel")
	mustAdd(t, wf, &workflow.Task{
		ID:   "first",
		Kind: workflow.KindTool,
		Body: func(ctx context.Context, input map[string]any) (any, error) {
			cancel()
			return "done", nil
		},
	})
	mustAdd(t, wf, &workflow.Task{ID: "second", Kind: workflow.KindTool, Body: okBody("never")})

	res, err := testEngine(t).Run(ctx, wf, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Status != workflow.StatusCancelled {
		t.Errorf("status = %q, want cancelled", res.Status)
	}
	second, _ := wf.GetTask("second")
	if second.Status != workflow.TaskSkipped {
		t.Errorf("second status = %q, want skipped", second.Status)
	}
}

// TestRunTimeout fails the run when the engine-level deadline fires
// inside a task body.
func TestRunTimeout(t *testing.T) {
	cfg := config.EngineConfig{MaxRetries: 0, RetryDelay: 0, Timeout: 0.05}
	e, err := New(cfg, body.NewRegistry(), WithLogger(log.New(io.Discard)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wf := workflow.New("wf-timeout", "timeout")
	mustAdd(t, wf, &workflow.Task{
		ID:   "slow",
		Kind: workflow.KindTool,
		Body: func(ctx context.Context, input map[string]any) (any, error) {
			select {
			case <-time.After(5 * time.Second):
				return "too late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})

	res, err := e.Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Status != workflow.StatusFailed {
		t.Errorf("status = %q, want failed", res.Status)
	}
	slow, _ := wf.GetTask("slow")
	if slow.OutputData.ErrorCode != response.CodeTimeout {
		t.Errorf("error code = %q, want %q", slow.OutputData.ErrorCode, response.CodeTimeout)
	}
}

// TestRunFailureBodyResponse treats a structured failure response from a
// body the same as a returned error.
func TestRunFailureBodyResponse(t *testing.T) {
	wf := workflow.New("wf-resp", "resp")
	mustAdd(t, wf, &workflow.Task{
		ID:   "soft",
		Kind: workflow.KindTool,
		Body: func(ctx context.Context, input map[string]any) (any, error) {
			return map[string]any{"success": false, "error": "validation rejected", "error_code": "BAD_INPUT"}, nil
		},
	})

	res, err := testEngine(t).Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Status != workflow.StatusFailed {
		t.Errorf("status = %q, want failed", res.Status)
	}
	soft, _ := wf.GetTask("soft")
	if soft.OutputData.ErrorCode != "BAD_INPUT" {
		t.Errorf("error code = %q, want BAD_INPUT", soft.OutputData.ErrorCode)
	}
}

// TestRunPrepareErrors surfaces construction problems before any task
// runs.
func TestRunPrepareErrors(t *testing.T) {
	t.Run("unbound body", func(t *testing.T) {
		wf := workflow.New("wf-unbound", "unbound")
		mustAdd(t, wf, &workflow.Task{ID: "a", Kind: workflow.KindTool, ToolName: "ghost"})
		if _, err := testEngine(t).Run(context.Background(), wf, nil); err == nil {
			t.Error("expected bind error")
		}
	})

	t.Run("bad condition", func(t *testing.T) {
		wf := workflow.New("wf-badcond", "badcond")
		mustAdd(t, wf, &workflow.Task{ID: "a", Kind: workflow.KindTool, Body: okBody("x"), Condition: "this is not CEL ((("})
		if _, err := testEngine(t).Run(context.Background(), wf, nil); err == nil {
			t.Error("expected compile error")
		}
	})

	t.Run("dangling edge", func(t *testing.T) {
		wf := workflow.New("wf-dangling", "dangling")
		mustAdd(t, wf, &workflow.Task{ID: "a", Kind: workflow.KindTool, Body: okBody("x"), NextOnSuccess: "ghost"})
		if _, err := testEngine(t).Run(context.Background(), wf, nil); err == nil {
			t.Error("expected validation error")
		}
	})
}

// TestRunMany executes the same definition over several inputs, each on
// its own clone.
func TestRunMany(t *testing.T) {
	def := workflow.New("wf-many", "many")
	mustAdd(t, def, &workflow.Task{
		ID:   "greet",
		Kind: workflow.KindTool,
		Body: func(ctx context.Context, input map[string]any) (any, error) {
			return input, nil
		},
		InputData: map[string]any{"prompt": "${user_prompt}"},
	})

	inputs := []map[string]any{
		{"user_prompt": "one"},
		{"user_prompt": "two"},
		{"user_prompt": "three"},
	}
	results, err := testEngine(t).RunMany(context.Background(), def, inputs, 2)
	if err != nil {
		t.Fatalf("RunMany: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, res := range results {
		if !res.Success {
			t.Errorf("run %d failed: %s", i, res.Error)
		}
		out, ok := res.Result.(map[string]any)
		if !ok || out["prompt"] != inputs[i]["user_prompt"] {
			t.Errorf("run %d result = %v", i, res.Result)
		}
	}
	if def.Status != workflow.StatusPending {
		t.Errorf("definition status mutated to %q", def.Status)
	}
}

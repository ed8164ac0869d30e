package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/emezac/dawn-sub002/internal/events"
	"github.com/emezac/dawn-sub002/internal/response"
	"github.com/emezac/dawn-sub002/internal/workflow"
)

// breakerRegistry manages per-task-kind circuit breakers. A flapping
// tool backend trips its breaker without affecting llm or handler tasks.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[workflow.Kind]*gobreaker.CircuitBreaker
}

func newBreakerRegistry() *breakerRegistry {
	return &breakerRegistry{
		breakers: make(map[workflow.Kind]*gobreaker.CircuitBreaker),
	}
}

// get returns the circuit breaker for the given task kind, creating it
// on first use.
func (r *breakerRegistry) get(kind workflow.Kind) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[kind]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(kind),
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// User cancellation is not a backend failure.
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	r.breakers[kind] = cb
	return cb
}

// errFailureResponse signals a body that completed but reported failure;
// it drives the retry loop without losing the response itself.
var errFailureResponse = errors.New("task body reported failure")

// invokeWithRetry runs a task body through its circuit breaker with a
// constant-interval retry policy: maxRetries retries after the first
// attempt, delay between attempts. Only the final attempt's outcome is
// returned; intermediate outcomes are visible solely as retry events.
func (e *Engine) invokeWithRetry(ctx context.Context, runID string, task *workflow.Task, input map[string]any) (*response.Response, int) {
	maxRetries := e.effectiveRetries(task)
	delay := e.effectiveDelay(task)
	cb := e.breakers.get(task.Kind)

	var lastResp *response.Response
	attempts := 0

	operation := func() error {
		if err := ctx.Err(); err != nil {
			lastResp = cancellationResponse(err)
			return backoff.Permanent(err)
		}
		attempts++

		result, err := cb.Execute(func() (interface{}, error) {
			return task.Body(ctx, input)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				lastResp = response.NewFailure(
					fmt.Sprintf("circuit breaker open for %s tasks: %v", task.Kind, err),
					response.CodeCircuitOpen, nil)
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				lastResp = cancellationResponse(ctx.Err())
				return backoff.Permanent(err)
			}
			lastResp = response.NewFailure(err.Error(), response.FailureCode(string(task.Kind)), map[string]any{
				"exception_type": fmt.Sprintf("%T", err),
			})
			return err
		}

		lastResp = response.FromValue(result)
		if !lastResp.Success {
			return errFailureResponse
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(maxRetries)), ctx)

	notify := func(err error, next time.Duration) {
		e.logger.Warn("retrying task", "task", task.ID, "attempt", attempts, "delay", next, "err", err)
		e.publish(events.TopicTask, events.TaskRetryingEvent{
			Run:       runID,
			TaskID:    task.ID,
			Attempt:   attempts,
			Delay:     next,
			Timestamp: time.Now(),
		})
	}

	// The error is already folded into lastResp; retries exhausting is
	// not a distinct outcome.
	_ = backoff.RetryNotify(operation, policy, notify)

	if lastResp == nil {
		lastResp = response.NewFailure("task body produced no response", response.CodeUnknownError, nil)
	}
	return lastResp, attempts
}

func cancellationResponse(err error) *response.Response {
	code := response.CodeCancelled
	if errors.Is(err, context.DeadlineExceeded) {
		code = response.CodeTimeout
	}
	return response.NewFailure(err.Error(), code, nil)
}

// effectiveRetries applies the engine default when the task does not set
// its own retry count.
func (e *Engine) effectiveRetries(task *workflow.Task) int {
	if task.MaxRetries != nil {
		if *task.MaxRetries < 0 {
			return 0
		}
		return *task.MaxRetries
	}
	return e.cfg.MaxRetries
}

// effectiveDelay applies the engine default when the task does not set
// its own retry delay.
func (e *Engine) effectiveDelay(task *workflow.Task) time.Duration {
	if task.RetryDelaySeconds != nil {
		return time.Duration(*task.RetryDelaySeconds * float64(time.Second))
	}
	return time.Duration(e.cfg.RetryDelay * float64(time.Second))
}

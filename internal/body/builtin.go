package body

import (
	"context"
	"fmt"
	"time"
)

// RegisterBuiltins installs the small set of tools the CLI ships with.
// Host applications register their own on top.
func RegisterBuiltins(r *Registry) {
	r.RegisterTool("echo", Echo)
	r.RegisterTool("sleep", Sleep)
	r.RegisterHandler("collect", Collect)
}

// Echo returns its "message" input unchanged, or the whole input map
// when no message is given. Useful for wiring and template testing.
func Echo(_ context.Context, input map[string]any) (any, error) {
	if msg, ok := input["message"]; ok {
		return msg, nil
	}
	return input, nil
}

// Sleep pauses for input["seconds"] (a number) and returns the elapsed
// duration. Respects context cancellation.
func Sleep(ctx context.Context, input map[string]any) (any, error) {
	seconds, ok := input["seconds"].(float64)
	if !ok {
		if n, isInt := input["seconds"].(int); isInt {
			seconds = float64(n)
		} else {
			return nil, fmt.Errorf("sleep requires a numeric seconds input")
		}
	}
	d := time.Duration(seconds * float64(time.Second))
	select {
	case <-time.After(d):
		return map[string]any{"slept_seconds": seconds}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Collect returns its entire resolved input as the result. Serves as the
// terminal reporting handler in error-handling chains: whatever
// ${error....} references resolved to becomes its output.
func Collect(_ context.Context, input map[string]any) (any, error) {
	return input, nil
}

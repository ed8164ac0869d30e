// Package resolver substitutes ${...} references inside task input data.
// The grammar is deliberately tiny: dot-separated paths into prior task
// outputs, recorded errors, or workflow variables. It is a scanner plus a
// path walk, not an expression language.
package resolver

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/emezac/dawn-sub002/internal/errctx"
	"github.com/emezac/dawn-sub002/internal/response"
)

// Scope is everything a reference may point into: outputs of tasks that
// already ran, the run's error context, and workflow-level variables.
type Scope struct {
	TaskOutputs map[string]*response.Response
	Errors      *errctx.Context
	Variables   map[string]any
}

// ResolutionError reports malformed reference syntax. Missing data is
// not an error (it degrades to nil), but a reference the grammar cannot
// parse is surfaced to the caller.
type ResolutionError struct {
	Ref    string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("invalid reference %q: %s", e.Ref, e.Reason)
}

// Resolver resolves template values against a scope.
type Resolver struct {
	logger *log.Logger
}

// New creates a resolver. A nil logger falls back to the default logger.
func New(logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve resolves one template value. Non-strings and strings without
// any ${...} occurrence are returned unchanged. A string that is exactly
// one reference resolves to the raw underlying value, preserving its
// type; references embedded in surrounding text are stringified in
// place. Unresolved references substitute the empty string and log a
// warning (the documented policy for missing data).
func (r *Resolver) Resolve(value any, scope *Scope) (any, error) {
	s, ok := value.(string)
	if !ok || !strings.Contains(s, "${") {
		return value, nil
	}

	spans, err := scan(s)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return value, nil
	}

	// Full-match references return the raw value so structured data
	// survives task-to-task handoff.
	if len(spans) == 1 && spans[0].start == 0 && spans[0].end == len(s) {
		val, found, err := r.lookup(spans[0].ref, scope)
		if err != nil {
			return nil, err
		}
		if !found {
			r.logger.Warn("unresolved reference", "ref", spans[0].ref)
			return nil, nil
		}
		return val, nil
	}

	var b strings.Builder
	pos := 0
	for _, sp := range spans {
		b.WriteString(s[pos:sp.start])
		val, found, err := r.lookup(sp.ref, scope)
		if err != nil {
			return nil, err
		}
		if !found || val == nil {
			r.logger.Warn("unresolved reference substituted as empty string", "ref", sp.ref)
		} else {
			b.WriteString(stringify(val))
		}
		pos = sp.end
	}
	b.WriteString(s[pos:])
	return b.String(), nil
}

// ResolveInput resolves every value of a task's input data, descending
// into nested maps and slices so references buried in structured inputs
// are substituted too.
func (r *Resolver) ResolveInput(input map[string]any, scope *Scope) (map[string]any, error) {
	if input == nil {
		return nil, nil
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		resolved, err := r.resolveDeep(v, scope)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func (r *Resolver) resolveDeep(value any, scope *Scope) (any, error) {
	switch t := value.(type) {
	case string:
		return r.Resolve(t, scope)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			resolved, err := r.resolveDeep(v, scope)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			resolved, err := r.resolveDeep(v, scope)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// lookup resolves a single parsed reference against the scope. The bool
// reports whether the reference located a value; a false return with a
// nil error means the data simply was not there.
func (r *Resolver) lookup(ref string, scope *Scope) (any, bool, error) {
	segs := strings.Split(ref, ".")
	for _, seg := range segs {
		if seg == "" {
			return nil, false, &ResolutionError{Ref: ref, Reason: "empty path segment"}
		}
	}

	switch {
	case segs[0] == "error":
		if len(segs) < 2 {
			return nil, false, &ResolutionError{Ref: ref, Reason: "error reference needs a task id"}
		}
		return r.lookupError(segs[1], segs[2:], scope)

	case len(segs) == 1:
		// Bare names (user_prompt and friends) read workflow variables.
		if scope.Variables == nil {
			return nil, false, nil
		}
		val, ok := scope.Variables[segs[0]]
		return val, ok, nil

	default:
		if segs[1] != "output" && segs[1] != "output_data" {
			return nil, false, &ResolutionError{Ref: ref, Reason: "expected output or output_data after task id"}
		}
		resp, ok := scope.TaskOutputs[segs[0]]
		if !ok || resp == nil {
			return nil, false, nil
		}
		if len(segs) == 2 {
			return resp.AsMap(), true, nil
		}
		return navigate(resp.AsMap(), segs[2:])
	}
}

// lookupError navigates an error record: top-level fields first, then
// error_details.
func (r *Resolver) lookupError(taskID string, path []string, scope *Scope) (any, bool, error) {
	if scope.Errors == nil {
		return nil, false, nil
	}
	rec := scope.Errors.Get(taskID)
	if rec == nil {
		return nil, false, nil
	}
	m := rec.AsMap()
	if len(path) == 0 {
		return m, true, nil
	}
	if val, found, err := navigate(m, path); err != nil || found {
		return val, found, err
	}
	details, ok := m["error_details"].(map[string]any)
	if !ok {
		return nil, false, nil
	}
	return navigate(details, path)
}

// navigate walks a dotted path through nested maps and slices. A missing
// segment or a non-container intermediate resolves to not-found, never
// an error.
func navigate(value any, segs []string) (any, bool, error) {
	cur := value
	for _, seg := range segs {
		switch c := cur.(type) {
		case map[string]any:
			next, ok := c[seg]
			if !ok {
				return nil, false, nil
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, false, nil
			}
			cur = c[idx]
		default:
			return nil, false, nil
		}
	}
	return cur, true, nil
}

// stringify renders a resolved value for in-place substitution.
// Structured values render as compact JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}

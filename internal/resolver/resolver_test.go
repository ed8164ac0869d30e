package resolver

import (
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/emezac/dawn-sub002/internal/errctx"
	"github.com/emezac/dawn-sub002/internal/response"
)

func quietResolver() *Resolver {
	return New(log.New(io.Discard))
}

func sampleScope() *Scope {
	ec := errctx.New("wf")
	ec.Record("b", map[string]any{
		"error":         "b exploded",
		"error_code":    "TOOL_FAILED",
		"error_details": map[string]any{"exit_code": 2},
	})
	return &Scope{
		TaskOutputs: map[string]*response.Response{
			"t": response.NewSuccess(map[string]any{
				"x":     5,
				"items": []any{"a", "b", "c"},
				"inner": map[string]any{"deep": true},
			}),
		},
		Errors:    ec,
		Variables: map[string]any{"user_prompt": "summarize the report"},
	}
}

// TestResolveExactMatch verifies type-preserving resolution.
func TestResolveExactMatch(t *testing.T) {
	r := quietResolver()
	scope := sampleScope()

	tests := []struct {
		name string
		in   string
		want any
	}{
		{name: "integer preserved", in: "${t.output.result.x}", want: 5},
		{name: "output_data alias", in: "${t.output_data.result.x}", want: 5},
		{name: "nested map", in: "${t.output.result.inner}", want: map[string]any{"deep": true}},
		{name: "list index", in: "${t.output.result.items.1}", want: "b"},
		{name: "workflow variable", in: "${user_prompt}", want: "summarize the report"},
		{name: "error field", in: "${error.b.error}", want: "b exploded"},
		{name: "error details fallback", in: "${error.b.exit_code}", want: 2},
		{name: "unknown task degrades to nil", in: "${ghost.output.result}", want: nil},
		{name: "missing field degrades to nil", in: "${t.output.result.missing.deeper}", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.in, scope)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

// TestResolveEmbedded verifies stringified in-place substitution.
func TestResolveEmbedded(t *testing.T) {
	r := quietResolver()
	scope := sampleScope()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "number embeds as text", in: "count=${t.output.result.x}", want: "count=5"},
		{name: "two references", in: "${t.output.result.x}-${user_prompt}", want: "5-summarize the report"},
		{name: "unresolved embeds empty", in: "got [${ghost.output.result.x}]", want: "got []"},
		{name: "structured value embeds as json", in: "inner=${t.output.result.inner}", want: `inner={"deep":true}`},
		{name: "error message in text", in: "failed: ${error.b.error}", want: "failed: b exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.in, scope)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestResolveNonTemplates leaves non-template values untouched.
func TestResolveNonTemplates(t *testing.T) {
	r := quietResolver()
	scope := sampleScope()

	for _, v := range []any{42, true, "plain text", nil, map[string]any{"k": "v"}} {
		got, err := r.Resolve(v, scope)
		if err != nil {
			t.Fatalf("unexpected error for %v: %v", v, err)
		}
		if !reflect.DeepEqual(got, v) {
			t.Errorf("Resolve(%v) = %v, want unchanged", v, got)
		}
	}
}

// TestResolveMalformed surfaces syntax errors instead of swallowing them.
func TestResolveMalformed(t *testing.T) {
	r := quietResolver()
	scope := sampleScope()

	tests := []string{
		"${t.output.}",
		"${}",
		"${t..output}",
		"prefix ${unterminated",
		"${t.result.x}",
	}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := r.Resolve(in, scope)
			var resErr *ResolutionError
			if !errors.As(err, &resErr) {
				t.Errorf("Resolve(%q) err = %v, want ResolutionError", in, err)
			}
		})
	}
}

// TestResolveWholeErrorRecord returns the record as a map.
func TestResolveWholeErrorRecord(t *testing.T) {
	r := quietResolver()
	scope := sampleScope()

	got, err := r.Resolve("${error.b}", scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("got %T, want map", got)
	}
	if m["error"] != "b exploded" || m["error_code"] != "TOOL_FAILED" {
		t.Errorf("record map = %v", m)
	}

	// No error recorded resolves to nil, not a failure.
	got, err = r.Resolve("${error.never_ran}", scope)
	if err != nil || got != nil {
		t.Errorf("Resolve(error.never_ran) = %v, %v, want nil, nil", got, err)
	}
}

// TestResolveInput descends into nested structures.
func TestResolveInput(t *testing.T) {
	r := quietResolver()
	scope := sampleScope()

	input := map[string]any{
		"prompt": "${user_prompt}",
		"nested": map[string]any{"x": "${t.output.result.x}"},
		"list":   []any{"${t.output.result.items.0}", "literal"},
		"number": 7,
	}
	got, err := r.ResolveInput(input, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got["prompt"] != "summarize the report" {
		t.Errorf("prompt = %v", got["prompt"])
	}
	if nested := got["nested"].(map[string]any); nested["x"] != 5 {
		t.Errorf("nested.x = %v, want 5", nested["x"])
	}
	if list := got["list"].([]any); list[0] != "a" || list[1] != "literal" {
		t.Errorf("list = %v", list)
	}
	if got["number"] != 7 {
		t.Errorf("number = %v, want unchanged 7", got["number"])
	}
}

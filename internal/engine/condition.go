package engine

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// conditionEvaluator compiles and caches the CEL programs behind task
// condition strings. Conditions see two variables: "variables" (the
// workflow's shared state) and "tasks" (outputs of tasks that already
// ran, keyed by task id).
type conditionEvaluator struct {
	env *cel.Env

	mu       sync.Mutex
	programs map[string]cel.Program
}

func newConditionEvaluator() (*conditionEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("variables", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("tasks", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating condition environment: %w", err)
	}
	return &conditionEvaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// compile compiles an expression, caching the program. Compile errors
// surface at workflow build time so a bad condition never reaches a run.
func (c *conditionEvaluator) compile(expr string) (cel.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prg, ok := c.programs[expr]; ok {
		return prg, nil
	}
	ast, iss := c.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compiling condition %q: %w", expr, iss.Err())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building condition program %q: %w", expr, err)
	}
	c.programs[expr] = prg
	return prg, nil
}

// evaluate runs a compiled condition. Non-boolean results are an error.
func (c *conditionEvaluator) evaluate(expr string, variables, tasks map[string]any) (bool, error) {
	prg, err := c.compile(expr)
	if err != nil {
		return false, err
	}
	if variables == nil {
		variables = map[string]any{}
	}
	if tasks == nil {
		tasks = map[string]any{}
	}
	out, _, err := prg.Eval(map[string]any{
		"variables": variables,
		"tasks":     tasks,
	})
	if err != nil {
		return false, fmt.Errorf("evaluating condition %q: %w", expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition %q returned %T, want bool", expr, out.Value())
	}
	return b, nil
}

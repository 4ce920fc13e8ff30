package gwselect

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

func init() {
	registerMatcher("ADVANCED", "cel", buildAdvancedCEL)
}

// celEnv is the single process-wide CEL environment shared by every
// compiled ADVANCED/cel matcher. Building it touches cel-go's internal
// type registries, so it is created once and reused rather than per
// rule.
var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

func advancedCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("ctx", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, celEnvErr
}

// AdvancedCEL evaluates a precompiled CEL boolean expression against the
// request context, supplementing the native JSON predicate grammar for
// conditions too irregular to express as a tree of ValueIn/Regex/
// AmountRange/TimeWindow leaves. The native grammar remains authoritative;
// this is an alternate impl for the same ADVANCED leaf type.
type AdvancedCEL struct {
	Source  string
	program cel.Program
}

func (a AdvancedCEL) Evaluate(ctx Context) bool {
	val, _, err := a.program.Eval(map[string]any{"ctx": map[string]any(ctx)})
	if err != nil {
		return false
	}
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case ref.Val:
		if v.Type() == types.BoolType {
			if b, ok := v.Value().(bool); ok {
				return b
			}
		}
	}
	return false
}

func (AdvancedCEL) Kind() string { return "ADVANCED" }

func buildAdvancedCEL(node map[string]any) (Matcher, error) {
	expression, ok := node["expression"].(string)
	if !ok || strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("gwselect: ADVANCED.expression is required")
	}

	env, err := advancedCELEnv()
	if err != nil {
		return nil, fmt.Errorf("gwselect: ADVANCED cel environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("gwselect: ADVANCED.expression compile: %w", issues.Err())
	}
	if t := ast.OutputType(); t != cel.BoolType && t != cel.DynType {
		return nil, fmt.Errorf("gwselect: ADVANCED.expression must return bool, got %s", cel.FormatCELType(t))
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("gwselect: ADVANCED.expression program: %w", err)
	}

	return AdvancedCEL{Source: expression, program: program}, nil
}

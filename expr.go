package mosaic

import (
	"context"
	"reflect"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// evaluator compiles and runs template expressions against a context. The
// compiled programs are cached by expression text, since the same expression
// tends to get evaluated once per render but appears in templates that render
// many times.
//
// Expressions are evaluated against a closed environment: the merged template
// context is the entire variable namespace, and names that aren't in it read
// as nil rather than erroring.
type evaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func newEvaluator() *evaluator {
	return &evaluator{
		programs: map[string]*vm.Program{},
	}
}

func (e *evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, &ExpressionError{Expr: expression, Err: err}
	}
	e.mu.Lock()
	e.programs[expression] = program
	e.mu.Unlock()
	return program, nil
}

// eval compiles (or reuses) expression and runs it with tctx as the variable
// namespace.
func (e *evaluator) eval(expression string, tctx Context) (any, error) {
	program, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	env := map[string]any(tctx)
	if env == nil {
		env = map[string]any{}
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, &ExpressionError{Expr: expression, Err: err}
	}
	return result, nil
}

// evalBool evaluates expression and reduces the result to truthiness.
func (e *evaluator) evalBool(ctx context.Context, expression string, tctx Context) bool {
	result, err := e.eval(expression, tctx)
	if err != nil {
		logger(ctx).WarnContext(ctx, "conditional expression failed, treating as false",
			"expression", expression, "error", err)
		return false
	}
	return truthy(result)
}

// evalSequence evaluates expression and returns the result as an ordered
// sequence. A nil result, an evaluation failure, or a non-sequence result all
// return nil.
func (e *evaluator) evalSequence(ctx context.Context, expression string, tctx Context) []any {
	result, err := e.eval(expression, tctx)
	if err != nil {
		logger(ctx).WarnContext(ctx, "loop expression failed, expanding to nothing",
			"expression", expression, "error", err)
		return nil
	}
	if result == nil {
		return nil
	}
	if items, ok := result.([]any); ok {
		return items
	}
	value := reflect.ValueOf(result)
	if value.Kind() != reflect.Slice && value.Kind() != reflect.Array {
		logger(ctx).WarnContext(ctx, "loop expression is not a sequence, expanding to nothing",
			"expression", expression)
		return nil
	}
	items := make([]any, value.Len())
	for pos := 0; pos < value.Len(); pos++ {
		items[pos] = value.Index(pos).Interface()
	}
	return items
}

// truthy reports whether a value counts as true for conditionals: false, nil,
// zero numbers, empty strings, and empty sequences are false, everything else
// is true.
func truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		return typed != ""
	case int:
		return typed != 0
	case int64:
		return typed != 0
	case float64:
		return typed != 0
	case float32:
		return typed != 0
	case uint:
		return typed != 0
	case uint64:
		return typed != 0
	}
	reflected := reflect.ValueOf(value)
	switch reflected.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return reflected.Len() > 0
	case reflect.Ptr, reflect.Interface:
		return !reflected.IsNil()
	default:
		return true
	}
}

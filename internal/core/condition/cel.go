// SPDX-License-Identifier: Apache-2.0

// Package condition evaluates CEL rules against a service description.
package condition

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

// CELEvaluator handles evaluation of CEL expressions. Compiled programs are
// cached per expression.
type CELEvaluator struct {
	env *cel.Env

	mu       sync.Mutex
	programs map[string]cel.Program
}

// NewCELEvaluator creates a new CEL evaluator exposing a `service` map
func NewCELEvaluator() (*CELEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("service", cel.MapType(cel.StringType, cel.DynType)),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %w", err)
	}

	return &CELEvaluator{env: env, programs: map[string]cel.Program{}}, nil
}

func (e *CELEvaluator) program(expression string) (cel.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.programs[expression]; ok {
		return p, nil
	}

	ast, issues := e.env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error parsing expression: %w", issues.Err())
	}

	checked, issues := e.env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error type-checking expression: %w", issues.Err())
	}

	p, err := e.env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("error compiling expression: %w", err)
	}
	e.programs[expression] = p
	return p, nil
}

func (e *CELEvaluator) eval(expression string, data map[string]interface{}) (interface{}, ref.Type, error) {
	p, err := e.program(expression)
	if err != nil {
		return nil, nil, err
	}

	service, ok := data["service"]
	if !ok || service == nil {
		return nil, nil, fmt.Errorf("no service to evaluate %q against", expression)
	}

	result, _, err := p.Eval(map[string]interface{}{"service": service})
	if err != nil {
		return nil, nil, fmt.Errorf("error evaluating expression: %w", err)
	}
	return result.Value(), result.Type(), nil
}

// EvaluateExpression evaluates a boolean CEL expression against data
func (e *CELEvaluator) EvaluateExpression(expression string, data map[string]interface{}) (bool, error) {
	v, t, err := e.eval(expression, data)
	if err != nil {
		return false, err
	}
	if t != types.BoolType {
		return false, fmt.Errorf("expression did not evaluate to a boolean")
	}
	return v.(bool), nil
}

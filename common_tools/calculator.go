package common_tools

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Desarso/opsagent/models"
	"github.com/expr-lang/expr"
)

// calculatorEnv exposes math helpers on top of expr's builtins
// (abs, ceil, floor, round, max, min).
var calculatorEnv = map[string]interface{}{
	"sqrt": math.Sqrt,
	"pow":  math.Pow,
	"log":  math.Log,
	"exp":  math.Exp,
	"pi":   math.Pi,
	"e":    math.E,
}

type calculatorRequest struct {
	Expression string `json:"expression"`
}

// Evaluate computes an arithmetic expression as a float64.
func Evaluate(expression string) (float64, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return 0, fmt.Errorf("empty expression")
	}

	program, err := expr.Compile(expression, expr.Env(calculatorEnv), expr.AsFloat64())
	if err != nil {
		return 0, fmt.Errorf("invalid expression: %w", err)
	}
	out, err := expr.Run(program, calculatorEnv)
	if err != nil {
		return 0, fmt.Errorf("evaluation failed: %w", err)
	}

	result, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("expression did not produce a number")
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return result, nil
}

// CalculatorTool returns the calculator tool.
func CalculatorTool() models.Tool {
	return NewTool(models.FunctionDeclaration{
		Name:        "calculator",
		Description: "Evaluate an arithmetic expression, e.g. (12.5 * 4) / 3 or sqrt(16) + 2^3.",
		Parameters: models.Parameters{
			Properties: map[string]interface{}{
				"expression": stringProp("Arithmetic expression to evaluate"),
			},
			Required: []string{"expression"},
		},
	}, func(ctx context.Context, req calculatorRequest) (interface{}, error) {
		result, err := Evaluate(req.Expression)
		if err != nil {
			return nil, err
		}
		return success(Result{"expression": req.Expression, "result": result}), nil
	})
}

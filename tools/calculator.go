package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CalculatorTool provides arithmetic for payroll figures: add, sub, mul, div,
// pow, sqrt and pct (a percent of b, e.g. a 6.2% social security rate on wages).
//
// Input is either the JSON object described by Schema or the compact text
// form "op arg1 [arg2]", e.g. "pct 6.2 50000", "sqrt 9".
type CalculatorTool struct{}

type calculatorArgs struct {
	Operation string   `json:"operation"`
	A         *float64 `json:"a"`
	B         *float64 `json:"b"`
	Input     string   `json:"input"`
}

func (c *CalculatorTool) Name() string { return "calculator" }
func (c *CalculatorTool) Description() string {
	return "Perform payroll arithmetic. operation is one of add, sub, mul, div, pow, sqrt, pct " +
		"(pct returns a percent of b: pct(6.2, 50000) = 3100)."
}

func (c *CalculatorTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"operation": map[string]interface{}{
				"type": "string",
				"enum": []string{"add", "sub", "mul", "div", "pow", "sqrt", "pct"},
			},
			"a": map[string]interface{}{"type": "number"},
			"b": map[string]interface{}{"type": "number", "description": "second operand; omitted for sqrt"},
		},
		"required": []string{"operation", "a"},
	}
}

func (c *CalculatorTool) Execute(ctx context.Context, input string) (string, error) {
	op, args, err := parseCalculatorInput(input)
	if err != nil {
		return "", err
	}

	switch op {
	case "sqrt":
		if len(args) != 1 {
			return "", errors.New("sqrt requires 1 argument")
		}
		if args[0] < 0 {
			return "", errors.New("sqrt of negative")
		}
		return format(math.Sqrt(args[0])), nil
	case "add", "sub", "mul", "div", "pow", "pct":
		if len(args) != 2 {
			return "", errors.New(op + " requires 2 arguments")
		}
		a, b := args[0], args[1]
		var res float64
		switch op {
		case "add":
			res = a + b
		case "sub":
			res = a - b
		case "mul":
			res = a * b
		case "div":
			if b == 0 {
				return "", errors.New("division by zero")
			}
			res = a / b
		case "pow":
			res = math.Pow(a, b)
		case "pct":
			res = a * b / 100
		}
		return format(res), nil
	default:
		return "", fmt.Errorf("unknown op %q", op)
	}
}

func parseCalculatorInput(input string) (string, []float64, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "{") {
		var args calculatorArgs
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			return "", nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if args.Input != "" {
			return parseCalculatorInput(args.Input)
		}
		var nums []float64
		if args.A != nil {
			nums = append(nums, *args.A)
		}
		if args.B != nil {
			nums = append(nums, *args.B)
		}
		if args.Operation == "" || len(nums) == 0 {
			return "", nil, errors.New("operation and a are required")
		}
		return strings.ToLower(args.Operation), nums, nil
	}

	parts := strings.Fields(input)
	if len(parts) < 2 {
		return "", nil, errors.New("usage: '<op> arg1 [arg2]'")
	}
	nums := make([]float64, 0, len(parts)-1)
	for _, p := range parts[1:] {
		f, err := strconv.ParseFloat(strings.TrimSuffix(p, "%"), 64)
		if err != nil {
			return "", nil, err
		}
		nums = append(nums, f)
	}
	return strings.ToLower(parts[0]), nums, nil
}

// format rounds to six decimals so currency results don't carry float noise.
func format(f float64) string {
	return strconv.FormatFloat(math.Round(f*1e6)/1e6, 'f', -1, 64)
}

var _ Tool = (*CalculatorTool)(nil)

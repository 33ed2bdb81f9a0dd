package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Multiply returns a tool that multiplies two integers and answers with the
// product in decimal form.
func Multiply() Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "integer"},
			"b": map[string]any{"type": "integer"},
		},
		"required": []string{"a", "b"},
	}
	return NewFunc(
		"multiply",
		"Multiplies two integers and returns the result integer",
		schema,
		func(_ context.Context, args map[string]any) (string, error) {
			a, err := intArg(args, "a")
			if err != nil {
				return "", err
			}
			b, err := intArg(args, "b")
			if err != nil {
				return "", err
			}
			return strconv.Itoa(a * b), nil
		},
	)
}

// intArg reads an integer argument, tolerating the float64 and json.Number
// representations JSON decoding produces.
func intArg(args map[string]any, key string) (int, error) {
	raw, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("argument %q must be an integer, got %v", key, v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("argument %q must be an integer, got %v", key, v)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("argument %q must be an integer, got %T", key, raw)
	}
}

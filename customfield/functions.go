package customfield

import (
	"fmt"
	"math"
)

func length(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len: want 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case string:
		return float64(len(v)), nil
	case []any:
		return float64(len(v)), nil
	case map[string]any:
		return float64(len(v)), nil
	default:
		return nil, fmt.Errorf("len: unsupported %T", v)
	}
}

// numbers flattens the arguments of an aggregate function into floats.
func numbers(name string, args []any) ([]float64, error) {
	var out []float64
	for _, a := range args {
		switch v := a.(type) {
		case []any:
			inner, err := numbers(name, v)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		case float64:
			out = append(out, v)
		case int:
			out = append(out, float64(v))
		case bool:
			if v {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		default:
			return nil, fmt.Errorf("%s: not a number: %T", name, a)
		}
	}
	return out, nil
}

func sum(args ...any) (any, error) {
	xs, err := numbers("sum", args)
	if err != nil {
		return nil, err
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s, nil
}

func abs(args ...any) (any, error) {
	xs, err := numbers("abs", args)
	if err != nil {
		return nil, err
	}
	if len(xs) != 1 {
		return nil, fmt.Errorf("abs: want 1 argument, got %d", len(xs))
	}
	return math.Abs(xs[0]), nil
}

func minimum(args ...any) (any, error) {
	xs, err := numbers("min", args)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return nil, fmt.Errorf("min: no argument")
	}
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Min(m, x)
	}
	return m, nil
}

func maximum(args ...any) (any, error) {
	xs, err := numbers("max", args)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return nil, fmt.Errorf("max: no argument")
	}
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return m, nil
}

package decision

import (
	"context"
	"encoding/json"
	"fmt"

	"botkit/internal/state"
)

// Resolver supplies the numeric operand for a leaf node: recipe names the
// input kind (stock price, indicator, position metric), field the operand
// within it. Real resolvers live outside this module; the engine's contract
// is the same either way.
type Resolver interface {
	Resolve(ctx context.Context, recipe, field string, ec *Context) (float64, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, recipe, field string, ec *Context) (float64, error)

func (f ResolverFunc) Resolve(ctx context.Context, recipe, field string, ec *Context) (float64, error) {
	return f(ctx, recipe, field, ec)
}

// StaticResolver always returns a fixed value. It stands in for real
// market-data recipes in tests and dry runs.
type StaticResolver struct {
	Value float64
}

func (r StaticResolver) Resolve(context.Context, string, string, *Context) (float64, error) {
	return r.Value, nil
}

// StateResolver reads operands from the hot tier. The recipe names the
// key; the value is either a bare number or a map holding the field.
// Market-data feeders publish into those keys out of band.
type StateResolver struct{}

func (StateResolver) Resolve(_ context.Context, recipe, field string, ec *Context) (float64, error) {
	if ec == nil || ec.State == nil {
		return 0, fmt.Errorf("no state manager available")
	}
	v, err := ec.State.Get(state.TierHot, recipe)
	if err != nil {
		return 0, fmt.Errorf("recipe %q: %w", recipe, err)
	}
	if field != "" {
		m, ok := v.(map[string]any)
		if !ok {
			return 0, fmt.Errorf("recipe %q is not a map, cannot select field %q", recipe, field)
		}
		v, ok = m[field]
		if !ok {
			return 0, fmt.Errorf("recipe %q has no field %q", recipe, field)
		}
	}
	return toFloat(v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}

// Package condition evaluates a rule's ordered condition list against an
// event context. Evaluation is pure and non-blocking; it never panics into
// the dispatcher.
package condition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fixl-developer/tma-automation/pkg/types"
)

// ErrUnknownOperator marks a malformed condition. The dispatcher records the
// rule's execution as SKIPPED when it sees this.
var ErrUnknownOperator = errors.New("unknown condition operator")

// Evaluate folds the condition list left to right. An empty list is true:
// the rule always executes when its trigger fires. Each condition after the
// first combines with the running result via its AND/OR logic; there is no
// operator precedence beyond strict sequence folding.
func Evaluate(conds []types.Condition, ctx map[string]any) (bool, error) {
	if len(conds) == 0 {
		return true, nil
	}

	result, err := test(conds[0], ctx)
	if err != nil {
		return false, err
	}
	for _, c := range conds[1:] {
		next, err := test(c, ctx)
		if err != nil {
			return false, err
		}
		if c.Logic == types.LogicOr {
			result = result || next
		} else {
			result = result && next
		}
	}
	return result, nil
}

// test evaluates a single condition. A field path that resolves to nothing
// is treated as missing: exists is false and every other operator is false.
// A field explicitly set to null is the same as missing.
func test(c types.Condition, ctx map[string]any) (bool, error) {
	val, present := resolve(c.Field, ctx)
	if val == nil {
		present = false
	}

	switch c.Operator {
	case types.OpExists:
		return present, nil
	case types.OpEquals:
		if !present {
			return false, nil
		}
		return looseEqual(val, c.Value), nil
	case types.OpNotEquals:
		if !present {
			return false, nil
		}
		return !looseEqual(val, c.Value), nil
	case types.OpGreaterThan:
		if !present {
			return false, nil
		}
		a, aok := toFloat(val)
		b, bok := toFloat(c.Value)
		// Fail closed on non-numeric operands.
		return aok && bok && a > b, nil
	case types.OpLessThan:
		if !present {
			return false, nil
		}
		a, aok := toFloat(val)
		b, bok := toFloat(c.Value)
		return aok && bok && a < b, nil
	case types.OpContains:
		if !present {
			return false, nil
		}
		return contains(val, c.Value), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}
}

// resolve walks a dotted field path through nested maps. The second return
// reports whether the path resolved to anything at all.
func resolve(path string, ctx map[string]any) (any, bool) {
	if path == "" || ctx == nil {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur any = ctx
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// looseEqual compares type-aware: operands that both coerce to numbers are
// compared numerically (so "1500" equals 1500), everything else as strings.
func looseEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// contains is substring match for strings and membership for slices.
func contains(val, want any) bool {
	switch v := val.(type) {
	case string:
		return strings.Contains(v, fmt.Sprint(want))
	case []any:
		for _, item := range v {
			if looseEqual(item, want) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if item == fmt.Sprint(want) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

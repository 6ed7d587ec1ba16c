package condition

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixl-developer/tma-automation/pkg/types"
)

func TestEvaluateEmptyListIsTrue(t *testing.T) {
	ok, err := Evaluate(nil, map[string]any{"amount": 10})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Evaluate([]types.Condition{}, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOperators(t *testing.T) {
	ctx := map[string]any{
		"amount":   1500.0,
		"currency": "EUR",
		"tags":     []any{"vip", "priority"},
		"note":     "urgent booking",
		"booking": map[string]any{
			"status": "confirmed",
			"nights": 3,
		},
	}

	tests := []struct {
		name string
		cond types.Condition
		want bool
	}{
		{"equals number", types.Condition{Field: "amount", Operator: types.OpEquals, Value: 1500}, true},
		{"equals numeric string", types.Condition{Field: "amount", Operator: types.OpEquals, Value: "1500"}, true},
		{"equals mismatch", types.Condition{Field: "currency", Operator: types.OpEquals, Value: "USD"}, false},
		{"not_equals", types.Condition{Field: "currency", Operator: types.OpNotEquals, Value: "USD"}, true},
		{"greater_than true", types.Condition{Field: "amount", Operator: types.OpGreaterThan, Value: 1000}, true},
		{"greater_than false", types.Condition{Field: "amount", Operator: types.OpGreaterThan, Value: 2000}, false},
		{"greater_than equal is false", types.Condition{Field: "amount", Operator: types.OpGreaterThan, Value: 1500}, false},
		{"greater_than non-numeric fails closed", types.Condition{Field: "currency", Operator: types.OpGreaterThan, Value: 10}, false},
		{"less_than", types.Condition{Field: "amount", Operator: types.OpLessThan, Value: 2000}, true},
		{"contains substring", types.Condition{Field: "note", Operator: types.OpContains, Value: "urgent"}, true},
		{"contains slice member", types.Condition{Field: "tags", Operator: types.OpContains, Value: "vip"}, true},
		{"contains slice miss", types.Condition{Field: "tags", Operator: types.OpContains, Value: "basic"}, false},
		{"exists present", types.Condition{Field: "currency", Operator: types.OpExists}, true},
		{"exists missing", types.Condition{Field: "coupon", Operator: types.OpExists}, false},
		{"dotted path", types.Condition{Field: "booking.status", Operator: types.OpEquals, Value: "confirmed"}, true},
		{"dotted path numeric", types.Condition{Field: "booking.nights", Operator: types.OpGreaterThan, Value: 2}, true},
		{"dotted path missing leaf", types.Condition{Field: "booking.guest", Operator: types.OpEquals, Value: "x"}, false},
		{"path through non-map", types.Condition{Field: "amount.cents", Operator: types.OpExists}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate([]types.Condition{tt.cond}, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// A field explicitly set to null behaves like a missing field for every
// operator: the two contexts must be indistinguishable. Negated operators
// are the ones that drift here (not_equals on null must not flip to true).
func TestNullFieldBehavesLikeMissing(t *testing.T) {
	missing := map[string]any{"amount": 1}
	null := map[string]any{"amount": 1, "coupon": nil}

	ops := []types.Operator{
		types.OpEquals, types.OpNotEquals, types.OpGreaterThan,
		types.OpLessThan, types.OpContains, types.OpExists,
	}
	for _, op := range ops {
		cond := []types.Condition{{Field: "coupon", Operator: op, Value: "x"}}

		onMissing, err := Evaluate(cond, missing)
		require.NoError(t, err)
		onNull, err := Evaluate(cond, null)
		require.NoError(t, err)

		assert.False(t, onMissing, "operator %s on missing field", op)
		assert.Equal(t, onMissing, onNull, "operator %s diverges between null and missing", op)
	}
}

func TestMissingFieldIsFalseForAllOperators(t *testing.T) {
	ops := []types.Operator{
		types.OpEquals, types.OpNotEquals, types.OpGreaterThan,
		types.OpLessThan, types.OpContains, types.OpExists,
	}
	for _, op := range ops {
		got, err := Evaluate([]types.Condition{
			{Field: "nope", Operator: op, Value: 1},
		}, map[string]any{"amount": 1})
		require.NoError(t, err)
		assert.False(t, got, "operator %s on missing field", op)
	}
}

func TestUnknownOperator(t *testing.T) {
	_, err := Evaluate([]types.Condition{
		{Field: "amount", Operator: "matches", Value: 1},
	}, map[string]any{"amount": 1})
	require.ErrorIs(t, err, ErrUnknownOperator)
}

func TestFoldIsLeftToRight(t *testing.T) {
	ctx := map[string]any{"a": 1, "b": 2, "c": 3}
	tr := types.Condition{Field: "a", Operator: types.OpEquals, Value: 1}
	fa := types.Condition{Field: "a", Operator: types.OpEquals, Value: 99}

	and := func(c types.Condition) types.Condition { c.Logic = types.LogicAnd; return c }
	or := func(c types.Condition) types.Condition { c.Logic = types.LogicOr; return c }

	tests := []struct {
		name  string
		conds []types.Condition
		want  bool
	}{
		// (false AND true) OR true = true; with precedence it would also be
		// true, so pin the order-sensitive case below.
		{"t AND f", []types.Condition{tr, and(fa)}, false},
		{"f OR t", []types.Condition{fa, or(tr)}, true},
		// false OR true AND false: strict folding gives (false OR true) AND
		// false = false; AND-precedence would give false OR (true AND false)
		// = false too. Distinguishing case: true OR false AND false.
		// Strict: (true OR false) AND false = false.
		// Precedence: true OR (false AND false) = true.
		{"no operator precedence", []types.Condition{tr, or(fa), and(fa)}, false},
		{"chain ends true", []types.Condition{fa, and(tr), or(tr)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.conds, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Property test: random chains must match a reference left-to-right fold
// over the individual condition outcomes.
func TestFoldMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ctx := map[string]any{"x": 10}

	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(6)
		conds := make([]types.Condition, n)
		truth := make([]bool, n)
		for j := 0; j < n; j++ {
			val := rng.Intn(2) * 10 // 0 or 10
			conds[j] = types.Condition{Field: "x", Operator: types.OpEquals, Value: val}
			truth[j] = val == 10
			if j > 0 {
				if rng.Intn(2) == 0 {
					conds[j].Logic = types.LogicAnd
				} else {
					conds[j].Logic = types.LogicOr
				}
			}
		}

		want := truth[0]
		for j := 1; j < n; j++ {
			if conds[j].Logic == types.LogicOr {
				want = want || truth[j]
			} else {
				want = want && truth[j]
			}
		}

		got, err := Evaluate(conds, ctx)
		require.NoError(t, err)
		require.Equal(t, want, got, fmt.Sprintf("chain %d: %+v", i, conds))
	}
}

package common_tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		expr string
		want float64
	}{
		{"2 + 3 * 4", 14},
		{"(1 + 2) * 3", 9},
		{"10 / 4", 2.5},
		{"sqrt(16)", 4},
		{"2 ^ 3", 8},
		{"abs(-7)", 7},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := Evaluate(tc.expr)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	for _, expr := range []string{"", "2 +", `"text"`, "1 / 0"} {
		_, err := Evaluate(expr)
		assert.Error(t, err, expr)
	}
}

func TestCalculatorTool(t *testing.T) {
	out, err := CalculatorTool().Invoke(context.Background(), map[string]interface{}{"expression": "6 * 7"}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"expression":"6 * 7","result":42}`, out.String())
}

package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cmdkit/pkg/host/memhost"
)

func TestEvaluator_Evaluate(t *testing.T) {
	scene := memhost.New("scene")
	scene.SetAttr("pos.x", 1.5)
	eval := NewEvaluator()

	tests := []struct {
		name       string
		expression string
		args       map[string]any
		want       any
	}{
		{name: "arithmetic", expression: "1 + 2", want: 3},
		{name: "argument by name", expression: "width * 2", args: map[string]any{"width": 3}, want: 6},
		{name: "argument through args", expression: `args.label + "!"`, args: map[string]any{"label": "hi"}, want: "hi!"},
		{name: "scene attribute", expression: `attr("pos.x")`, want: 1.5},
		{name: "missing attribute", expression: `attr("pos.y")`, want: nil},
		{name: "attribute presence", expression: `hasAttr("pos.x") && !hasAttr("pos.y")`, want: true},
		{name: "undefined argument", expression: "missing == nil", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.Evaluate(tt.expression, Env(tt.args, scene))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_Errors(t *testing.T) {
	eval := NewEvaluator()
	env := Env(map[string]any{"name": "box"}, nil)

	_, err := eval.Evaluate(`os.Getenv("HOME")`, env)
	assert.ErrorIs(t, err, ErrUnsafeOperation)

	_, err = eval.Evaluate("1 +", env)
	assert.ErrorIs(t, err, ErrInvalidExpression)

	_, err = eval.Evaluate("   ", env)
	assert.ErrorIs(t, err, ErrInvalidExpression)

	_, err = eval.Evaluate("name - 1", env)
	assert.ErrorIs(t, err, ErrInvalidExpression)

	_, err = eval.EvaluateBool("1 + 1", env)
	assert.ErrorIs(t, err, ErrInvalidExpression)
}

func TestEvaluator_UnsafePatternNeedsWordBoundary(t *testing.T) {
	assert.NoError(t, validateExpression(`attr("pos.x")`))
	assert.ErrorIs(t, validateExpression(`exec.Command("ls")`), ErrUnsafeOperation)
	assert.ErrorIs(t, validateExpression(`1 + os.Args`), ErrUnsafeOperation)
}

func TestEvaluator_CachesPrograms(t *testing.T) {
	eval := NewEvaluator()
	for _, n := range []int{1, 2, 3} {
		got, err := eval.Evaluate("n * n", Env(map[string]any{"n": n}, nil))
		require.NoError(t, err)
		assert.Equal(t, n*n, got)
	}
	require.NoError(t, eval.Check("n + 1"))
	assert.Equal(t, 2, eval.Len())
}

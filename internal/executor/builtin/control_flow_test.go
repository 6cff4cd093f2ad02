package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-studio/workflow-core/pkg/models"
)

func TestApplyAggregateStrategy_ArrayDefault(t *testing.T) {
	out := ApplyAggregateStrategy("array", nil, []interface{}{"a", "b"}, "agg1")
	m := out.(map[string]interface{})
	assert.Equal(t, []interface{}{"a", "b"}, m["result"])
	assert.Equal(t, 2, m["count"])
}

func TestApplyAggregateStrategy_ConcatWithSeparator(t *testing.T) {
	cfg := map[string]interface{}{"separator": ", "}
	out := ApplyAggregateStrategy("concat", cfg, []interface{}{"a", "b", "c"}, "agg1")
	assert.Equal(t, "a, b, c", out)
}

func TestApplyAggregateStrategy_Merge(t *testing.T) {
	items := []interface{}{
		map[string]interface{}{"x": 1},
		map[string]interface{}{"y": 2},
	}
	out := ApplyAggregateStrategy("merge", nil, items, "agg1")
	m := out.(map[string]interface{})
	assert.Equal(t, 1, m["x"])
	assert.Equal(t, 2, m["y"])
}

func TestApplyAggregateStrategy_SingleNonSliceValueIsWrapped(t *testing.T) {
	out := ApplyAggregateStrategy("array", nil, "lone value", "agg1")
	m := out.(map[string]interface{})
	assert.Equal(t, []interface{}{"lone value"}, m["result"])
	assert.Equal(t, 1, m["count"])
}

func TestApplyAggregateStrategy_NilIncomingYieldsEmpty(t *testing.T) {
	out := ApplyAggregateStrategy("array", nil, nil, "agg1")
	m := out.(map[string]interface{})
	assert.Empty(t, m["result"])
	assert.Equal(t, 0, m["count"])
}

func TestAggregatorExecutor_UsesConfiguredStrategy(t *testing.T) {
	node := &models.Node{Config: map[string]interface{}{"strategy": "concat"}}
	out, err := AggregatorExecutor{}.Execute(context.Background(), "agg1", node, []interface{}{"x", "y"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "xy", out.Value)
}

func TestExitExecutor_PassesValueThrough(t *testing.T) {
	out, err := ExitExecutor{}.Execute(context.Background(), "exit1", &models.Node{}, map[string]interface{}{"stop": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"stop": true}, out.Value)
}

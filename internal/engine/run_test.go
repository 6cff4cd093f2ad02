package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/pkg/models"
)

func passthroughExecutor() exec.ExecutorFunc {
	return func(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, ec *exec.Context) (*models.NodeOutput, error) {
		return &models.NodeOutput{Value: incoming}, nil
	}
}

func constantExecutor(v interface{}) exec.ExecutorFunc {
	return func(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, ec *exec.Context) (*models.NodeOutput, error) {
		return &models.NodeOutput{Value: v}, nil
	}
}

func newTestEngine(t *testing.T) (*Engine, *exec.Registry) {
	t.Helper()
	reg := exec.NewRegistry()
	reg.Register(models.NodeInput, passthroughExecutor())
	reg.Register(models.NodeOutputType, passthroughExecutor())
	return New(reg, nil), reg
}

func runSimple(t *testing.T, eng *Engine, g *models.Graph, inputs map[string]interface{}) *models.RunResult {
	t.Helper()
	seq := int64(0)
	ec := &exec.Context{SeqCounter: &seq}
	result, err := eng.Run(context.Background(), g, inputs, ec)
	require.NoError(t, err)
	return result
}

func TestEngineRun_LinearGraph(t *testing.T) {
	eng, reg := newTestEngine(t)
	reg.Register(models.NodeTransform, constantExecutor("transformed"))

	g := &models.Graph{
		Nodes: []*models.Node{
			{ID: "in", Type: models.NodeInput},
			{ID: "mid", Type: models.NodeTransform},
			{ID: "out", Type: models.NodeOutputType},
		},
		Edges: []*models.Edge{
			{Source: "in", Target: "mid"},
			{Source: "mid", Target: "out"},
		},
	}

	result := runSimple(t, eng, g, map[string]interface{}{})
	assert.False(t, result.Failed)
	assert.Equal(t, "transformed", result.Outputs["out"])
	assert.Equal(t, []string{"out"}, result.OutputOrder)
}

func TestEngineRun_UnsupportedNodeTypeIsSkipped(t *testing.T) {
	eng, _ := newTestEngine(t)

	g := &models.Graph{
		Nodes: []*models.Node{
			{ID: "in", Type: models.NodeInput},
			{ID: "weird", Type: models.NodeType("not_registered")},
			{ID: "out", Type: models.NodeOutputType},
		},
		Edges: []*models.Edge{
			{Source: "in", Target: "weird"},
			{Source: "weird", Target: "out"},
		},
	}

	result := runSimple(t, eng, g, map[string]interface{}{})
	assert.False(t, result.Failed)
	// "out"'s only predecessor was skipped, so it never produces output.
	_, hasOutput := result.Outputs["out"]
	assert.False(t, hasOutput)
}

func TestEngineRun_EdgeConditionFalseExcludesEdge(t *testing.T) {
	eng, reg := newTestEngine(t)
	reg.Register(models.NodeTransform, constantExecutor(map[string]interface{}{"status": "error"}))

	g := &models.Graph{
		Nodes: []*models.Node{
			{ID: "in", Type: models.NodeInput},
			{ID: "mid", Type: models.NodeTransform},
			{ID: "out", Type: models.NodeOutputType},
		},
		Edges: []*models.Edge{
			{Source: "in", Target: "mid"},
			{Source: "mid", Target: "out", Condition: `output.status == "ok"`},
		},
	}

	result := runSimple(t, eng, g, map[string]interface{}{})
	assert.False(t, result.Failed)
	value, hasOutput := result.Outputs["out"]
	assert.True(t, hasOutput, "out still runs; only the edge is excluded")
	assert.Nil(t, value, "edge whose condition evaluates false should be treated as absent")
}

func TestEngineRun_EdgeConditionTruePassesValue(t *testing.T) {
	eng, reg := newTestEngine(t)
	reg.Register(models.NodeTransform, constantExecutor(map[string]interface{}{"status": "ok", "value": "payload"}))

	g := &models.Graph{
		Nodes: []*models.Node{
			{ID: "in", Type: models.NodeInput},
			{ID: "mid", Type: models.NodeTransform},
			{ID: "out", Type: models.NodeOutputType},
		},
		Edges: []*models.Edge{
			{Source: "in", Target: "mid"},
			{Source: "mid", Target: "out", Condition: `output.status == "ok"`},
		},
	}

	result := runSimple(t, eng, g, map[string]interface{}{})
	assert.False(t, result.Failed)
	assert.Equal(t, map[string]interface{}{"status": "ok", "value": "payload"}, result.Outputs["out"])
}

func TestEngineRun_InvalidEdgeConditionFailsRun(t *testing.T) {
	eng, reg := newTestEngine(t)
	reg.Register(models.NodeTransform, constantExecutor("x"))

	g := &models.Graph{
		Nodes: []*models.Node{
			{ID: "in", Type: models.NodeInput},
			{ID: "mid", Type: models.NodeTransform},
			{ID: "out", Type: models.NodeOutputType},
		},
		Edges: []*models.Edge{
			{Source: "in", Target: "mid"},
			{Source: "mid", Target: "out", Condition: "not valid >>>"},
		},
	}

	result := runSimple(t, eng, g, map[string]interface{}{})
	assert.True(t, result.Failed)
	assert.Equal(t, "out", result.FailedNodeID)
	assert.Error(t, result.Err)
}

func TestEngineRun_IteratorWithoutControlFlowRunnerFails(t *testing.T) {
	eng, _ := newTestEngine(t)

	g := &models.Graph{
		Nodes: []*models.Node{
			{ID: "in", Type: models.NodeInput},
			{ID: "iter", Type: models.NodeIterator},
		},
		Edges: []*models.Edge{{Source: "in", Target: "iter"}},
	}

	result := runSimple(t, eng, g, map[string]interface{}{})
	assert.True(t, result.Failed)
	assert.Equal(t, "iter", result.FailedNodeID)
}

// skipButPrecommitExecutor mimics what the iterator/loop control-flow
// drivers do to their paired aggregator/exit node: it skips companionID
// downstream (SkipNodes) while also pre-committing its value
// (ExtraOutputs), so a node downstream of that companion must still run.
func skipButPrecommitExecutor(companionID string, companionValue interface{}) exec.ExecutorFunc {
	return func(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, ec *exec.Context) (*models.NodeOutput, error) {
		return &models.NodeOutput{
			Value:        "mid-value",
			SkipNodes:    map[string]bool{companionID: true},
			ExtraOutputs: map[string]interface{}{companionID: companionValue},
		}, nil
	}
}

func TestEngineRun_NodeDownstreamOfPrecommittedCompanionStillRuns(t *testing.T) {
	eng, reg := newTestEngine(t)
	reg.Register(models.NodeTransform, skipButPrecommitExecutor("companion", "aggregated-value"))

	g := &models.Graph{
		Nodes: []*models.Node{
			{ID: "in", Type: models.NodeInput},
			{ID: "mid", Type: models.NodeTransform},
			{ID: "companion", Type: models.NodeType("aggregator")},
			{ID: "out", Type: models.NodeOutputType},
		},
		Edges: []*models.Edge{
			{Source: "in", Target: "mid"},
			{Source: "mid", Target: "companion"},
			{Source: "companion", Target: "out"},
		},
	}

	result := runSimple(t, eng, g, map[string]interface{}{})
	require.False(t, result.Failed)
	assert.Equal(t, "aggregated-value", result.Outputs["out"],
		"out's only predecessor (companion) was skipped but had a precommitted output, so out must still run")
}

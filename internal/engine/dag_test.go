package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-studio/workflow-core/pkg/models"
)

func linearGraph() *models.Graph {
	return &models.Graph{
		Nodes: []*models.Node{
			{ID: "a", Type: models.NodeInput},
			{ID: "b", Type: models.NodeTransform},
			{ID: "c", Type: models.NodeOutputType},
		},
		Edges: []*models.Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
		},
	}
}

func TestBuildDAG_Indexes(t *testing.T) {
	g := linearGraph()
	dag := BuildDAG(g)

	assert.Equal(t, []string{"b"}, dag.Successors["a"])
	assert.Equal(t, []string{"a"}, dag.Predecessors["b"])
	assert.Len(t, dag.IncomingEdges["b"], 1)
	assert.Equal(t, "a", dag.IncomingEdges["b"][0].Source)
}

func TestTopologicalSort_Linear(t *testing.T) {
	dag := BuildDAG(linearGraph())
	order, err := dag.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTopologicalSort_DeterministicTieBreak(t *testing.T) {
	// Two independent roots feeding a shared sink: ties between ready
	// nodes are broken by original node-list order, not discovery order.
	g := &models.Graph{
		Nodes: []*models.Node{
			{ID: "root1", Type: models.NodeInput},
			{ID: "root2", Type: models.NodeInput},
			{ID: "sink", Type: models.NodeOutputType},
		},
		Edges: []*models.Edge{
			{Source: "root1", Target: "sink"},
			{Source: "root2", Target: "sink"},
		},
	}
	dag := BuildDAG(g)
	order, err := dag.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"root1", "root2", "sink"}, order)
}

func TestTopologicalSort_Cyclic(t *testing.T) {
	g := &models.Graph{
		Nodes: []*models.Node{
			{ID: "a", Type: models.NodeTransform},
			{ID: "b", Type: models.NodeTransform},
		},
		Edges: []*models.Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}
	dag := BuildDAG(g)
	_, err := dag.TopologicalSort()
	assert.Error(t, err)
}

package subgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-studio/workflow-core/pkg/models"
)

// iteratorGraph builds a minimal iterator/aggregator pair with one
// subgraph-internal node, and a condition on every edge so the synthesis
// step's condition-preservation can be checked for all three edge cases.
func iteratorGraph() *models.Graph {
	return &models.Graph{
		Nodes: []*models.Node{
			{ID: "iter", Type: models.NodeIterator},
			{ID: "body", Type: models.NodeTransform},
			{ID: "agg", Type: models.NodeAggregator},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "iter", Target: "body", Condition: "true"},
			{ID: "e2", Source: "body", Target: "agg", Condition: `output.ok == true`},
		},
	}
}

func TestBuildPlan_DiscoversCompanion(t *testing.T) {
	plan, err := BuildPlan(iteratorGraph(), "iter")
	require.NoError(t, err)
	assert.Equal(t, "agg", plan.CompanionID)
	assert.Contains(t, plan.NodeOrder, "body")
}

func TestSynthesize_PreservesEdgeConditionOnControlToInputRewrite(t *testing.T) {
	plan, err := BuildPlan(iteratorGraph(), "iter")
	require.NoError(t, err)

	var found *models.Edge
	for _, e := range plan.Synthetic.Edges {
		if e.Source == syntheticInputID && e.Target == "body" {
			found = e
		}
	}
	require.NotNil(t, found, "expected a synthetic-input -> body edge")
	assert.Equal(t, "true", found.Condition, "control->subgraph-node rewrite must preserve the original edge's condition")
}

func TestSynthesize_PreservesEdgeConditionOnOutputRewrite(t *testing.T) {
	plan, err := BuildPlan(iteratorGraph(), "iter")
	require.NoError(t, err)

	var found *models.Edge
	for _, e := range plan.Synthetic.Edges {
		if e.Source == "body" && e.Target == syntheticOutputID {
			found = e
		}
	}
	require.NotNil(t, found, "expected a body -> synthetic-output edge")
	assert.Equal(t, `output.ok == true`, found.Condition, "subgraph->companion rewrite must preserve the original edge's condition")
}

func TestSynthesize_PreservesEdgeConditionOnInternalEdgeCopy(t *testing.T) {
	g := &models.Graph{
		Nodes: []*models.Node{
			{ID: "iter", Type: models.NodeIterator},
			{ID: "a", Type: models.NodeTransform},
			{ID: "b", Type: models.NodeTransform},
			{ID: "agg", Type: models.NodeAggregator},
		},
		Edges: []*models.Edge{
			{ID: "e1", Source: "iter", Target: "a"},
			{ID: "e2", Source: "a", Target: "b", Condition: `output.keep == true`},
			{ID: "e3", Source: "b", Target: "agg"},
		},
	}

	plan, err := BuildPlan(g, "iter")
	require.NoError(t, err)

	var found *models.Edge
	for _, e := range plan.Synthetic.Edges {
		if e.Source == "a" && e.Target == "b" {
			found = e
		}
	}
	require.NotNil(t, found, "expected the subgraph-internal a -> b edge to be carried into the synthetic graph")
	assert.Equal(t, `output.keep == true`, found.Condition)
}

func TestBuildPlan_UnknownControlNode(t *testing.T) {
	_, err := BuildPlan(iteratorGraph(), "missing")
	assert.Error(t, err)
}

func TestBuildPlan_WrongCompanionCount(t *testing.T) {
	g := &models.Graph{
		Nodes: []*models.Node{
			{ID: "iter", Type: models.NodeIterator},
			{ID: "body", Type: models.NodeTransform},
		},
		Edges: []*models.Edge{
			{Source: "iter", Target: "body"},
		},
	}
	_, err := BuildPlan(g, "iter")
	assert.Error(t, err, "an iterator with no reachable aggregator should fail plan discovery")
}

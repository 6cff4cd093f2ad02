package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ai-studio/workflow-core/pkg/models"
)

func TestResolveIncoming_NoEdges(t *testing.T) {
	dag := BuildDAG(&models.Graph{Nodes: []*models.Node{{ID: "a"}}})
	assert.Nil(t, ResolveIncoming(dag, "a", map[string]interface{}{}))
}

func TestResolveIncoming_SingleDefaultHandlePassesThrough(t *testing.T) {
	g := &models.Graph{
		Nodes: []*models.Node{{ID: "a"}, {ID: "b"}},
		Edges: []*models.Edge{{Source: "a", Target: "b"}},
	}
	dag := BuildDAG(g)
	out := ResolveIncoming(dag, "b", map[string]interface{}{"a": "hello"})
	assert.Equal(t, "hello", out)
}

func TestResolveIncoming_MultipleEdgesBuildHandleMap(t *testing.T) {
	g := &models.Graph{
		Nodes: []*models.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Edges: []*models.Edge{
			{Source: "a", Target: "c", TargetHandle: "left"},
			{Source: "b", Target: "c", TargetHandle: "right"},
		},
	}
	dag := BuildDAG(g)
	out := ResolveIncoming(dag, "c", map[string]interface{}{"a": "x", "b": "y"})
	assert.Equal(t, map[string]interface{}{"left": "x", "right": "y"}, out)
}

func TestResolveIncoming_SkipsEdgesWithoutSourceOutput(t *testing.T) {
	g := &models.Graph{
		Nodes: []*models.Node{{ID: "a"}, {ID: "b"}},
		Edges: []*models.Edge{{Source: "a", Target: "b"}},
	}
	dag := BuildDAG(g)
	assert.Nil(t, ResolveIncoming(dag, "b", map[string]interface{}{}))
}

func TestResolveIncoming_TwoEdgesToSameHandleOneUnresolvedBuildsMapNotFlatten(t *testing.T) {
	g := &models.Graph{
		Nodes: []*models.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Edges: []*models.Edge{
			{Source: "a", Target: "c"},
			{Source: "b", Target: "c"},
		},
	}
	dag := BuildDAG(g)
	// "a" never produced an output (e.g. skipped); only "b" resolved. Both
	// edges target c's default handle, so the structural edge count is 2
	// and the result must stay a handle-keyed map, not flatten to "y".
	out := ResolveIncoming(dag, "c", map[string]interface{}{"b": "y"})
	assert.Equal(t, map[string]interface{}{"input": "y"}, out)
}

func TestSelectHandleValue_BranchUnwrap(t *testing.T) {
	out := selectHandleValue(map[string]interface{}{"value": 42, "other": 1}, "branch-true")
	assert.Equal(t, 42, out)
}

func TestSelectHandleValue_FieldLookup(t *testing.T) {
	out := selectHandleValue(map[string]interface{}{"result": "ok"}, "result")
	assert.Equal(t, "ok", out)
}

func TestSelectHandleValue_NonMapPassesThrough(t *testing.T) {
	assert.Equal(t, "plain", selectHandleValue("plain", "output"))
}

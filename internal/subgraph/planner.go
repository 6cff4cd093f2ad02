// Package subgraph implements the planner for control-flow regions:
// bidirectional BFS discovery of iterator/aggregator and loop/exit
// regions, synthetic sub-DAG construction, and the iterator/loop
// execution drivers that re-enter the engine on the synthesized graph.
// Built around an exact BFS contract tailored to these region shapes,
// in small focused files with explicit error wrapping via internal/apperr.
package subgraph

import (
	"fmt"

	"github.com/ai-studio/workflow-core/internal/apperr"
	"github.com/ai-studio/workflow-core/internal/engine"
	"github.com/ai-studio/workflow-core/pkg/models"
)

const (
	syntheticInputID  = "__ctl_input__"
	syntheticOutputID = "__ctl_output__"
)

// Plan is the discovered companion and synthesized re-entry graph for one
// control-flow node.
type Plan struct {
	ControlID   string
	CompanionID string
	NodeOrder   []string // subgraph node ids, in the synthetic graph's topological order
	Synthetic   *models.Graph
}

// companionType maps a control-flow node type to the type of its pair.
func companionType(t models.NodeType) models.NodeType {
	if t == models.NodeIterator {
		return models.NodeAggregator
	}
	return models.NodeExit
}

// BuildPlan discovers ctlID's companion and synthesizes its re-entry graph.
func BuildPlan(g *models.Graph, ctlID string) (*Plan, error) {
	ctl := g.NodeByID(ctlID)
	if ctl == nil {
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("control-flow node %s not found", ctlID))
	}
	wantCompanion := companionType(ctl.Type)

	forward, companions := forwardReachStoppingAtType(g, ctlID, wantCompanion)
	if len(companions) != 1 {
		return nil, apperr.New(apperr.Validation, fmt.Sprintf(
			"control-flow node %s: expected exactly one %s reachable forward, found %d", ctlID, wantCompanion, len(companions)))
	}
	companionID := companions[0]

	backward := backwardReachStoppingAt(g, companionID, ctlID)

	subgraphNodes := intersect(forward, backward)
	delete(subgraphNodes, ctlID)
	delete(subgraphNodes, companionID)

	synthetic, order := synthesize(g, ctlID, companionID, subgraphNodes)

	return &Plan{ControlID: ctlID, CompanionID: companionID, NodeOrder: order, Synthetic: synthetic}, nil
}

// forwardReachStoppingAtType BFSes forward from startID, collecting (but
// not expanding past) any node of stopType, and returns the full set of
// traversed intermediate nodes plus the list of stop-type nodes reached.
func forwardReachStoppingAtType(g *models.Graph, startID string, stopType models.NodeType) (map[string]bool, []string) {
	adj := forwardAdjacency(g)
	visited := map[string]bool{startID: true}
	var stops []string
	queue := []string{startID}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			node := g.NodeByID(next)
			if node != nil && node.Type == stopType {
				stops = append(stops, next)
				continue
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return visited, dedup(stops)
}

// backwardReachStoppingAt BFSes backward from startID, stopping at (not
// expanding past) stopID.
func backwardReachStoppingAt(g *models.Graph, startID, stopID string) map[string]bool {
	radj := backwardAdjacency(g)
	visited := map[string]bool{startID: true}
	queue := []string{startID}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, prev := range radj[cur] {
			if prev == stopID {
				continue
			}
			if !visited[prev] {
				visited[prev] = true
				queue = append(queue, prev)
			}
		}
	}
	return visited
}

func forwardAdjacency(g *models.Graph) map[string][]string {
	adj := map[string][]string{}
	for _, e := range g.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	return adj
}

func backwardAdjacency(g *models.Graph) map[string][]string {
	adj := map[string][]string{}
	for _, e := range g.Edges {
		adj[e.Target] = append(adj[e.Target], e.Source)
	}
	return adj
}

func intersect(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for id := range a {
		if b[id] {
			out[id] = true
		}
	}
	return out
}

func dedup(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// synthesize builds the re-entry graph: two synthetic
// input/output nodes, every subgraph node copied verbatim, and edges
// rewritten per the three splice rules. NodeOrder is derived from the
// synthesized graph's own topological sort, which also gives the
// loop evaluator a stable order to scan in reverse for feedback.
func synthesize(g *models.Graph, ctlID, companionID string, subgraphNodes map[string]bool) (*models.Graph, []string) {
	synthetic := &models.Graph{
		Name: "synthetic:" + ctlID,
		Nodes: []*models.Node{
			{ID: syntheticInputID, Type: models.NodeInput, Config: map[string]interface{}{"name": "input"}},
			{ID: syntheticOutputID, Type: models.NodeOutputType, Config: map[string]interface{}{"name": "result"}},
		},
	}

	for _, n := range g.Nodes {
		if subgraphNodes[n.ID] {
			synthetic.Nodes = append(synthetic.Nodes, n)
		}
	}

	for _, e := range g.Edges {
		switch {
		case e.Source == ctlID && subgraphNodes[e.Target]:
			synthetic.Edges = append(synthetic.Edges, &models.Edge{
				ID: e.ID, Source: syntheticInputID, Target: e.Target,
				SourceHandle: models.DefaultSourceHandle, TargetHandle: e.TargetHandle,
				Condition: e.Condition,
			})
		case subgraphNodes[e.Source] && e.Target == companionID:
			synthetic.Edges = append(synthetic.Edges, &models.Edge{
				ID: e.ID, Source: e.Source, Target: syntheticOutputID,
				SourceHandle: e.SourceHandle, TargetHandle: models.DefaultTargetHandle,
				Condition: e.Condition,
			})
		case subgraphNodes[e.Source] && subgraphNodes[e.Target]:
			synthetic.Edges = append(synthetic.Edges, e)
		}
	}

	order := []string{syntheticInputID}
	if sorted, err := engine.BuildDAG(synthetic).TopologicalSort(); err == nil {
		for _, id := range sorted {
			if id != syntheticInputID && id != syntheticOutputID {
				order = append(order, id)
			}
		}
	}
	order = append(order, syntheticOutputID)
	return synthetic, order
}

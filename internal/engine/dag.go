// Package engine implements the DAG execution engine: topological
// ordering, handle-level incoming-value resolution, sequential executor
// dispatch, skip-set propagation, and usage/event aggregation. This
// engine runs strictly sequential execution with no
// wave-parallel fan-out, so TopologicalSort here returns a flat order
// rather than a set of parallel waves.
package engine

import (
	"fmt"

	"github.com/ai-studio/workflow-core/internal/apperr"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// DAG is the graph's adjacency structure, built once per run.
type DAG struct {
	Graph *models.Graph

	// Forward/backward adjacency by node id.
	Successors   map[string][]string
	Predecessors map[string][]string

	// OutgoingEdges indexes edges by (source id, source handle).
	OutgoingEdges map[string]map[string][]edgeTarget

	// IncomingEdges indexes edges by target id.
	IncomingEdges map[string][]*models.Edge

	inDegree map[string]int
}

type edgeTarget struct {
	NodeID string
	Handle string
}

// BuildDAG constructs adjacency and handle indices from g. Assumes
// g.Validate() has already succeeded.
func BuildDAG(g *models.Graph) *DAG {
	d := &DAG{
		Graph:         g,
		Successors:    map[string][]string{},
		Predecessors:  map[string][]string{},
		OutgoingEdges: map[string]map[string][]edgeTarget{},
		IncomingEdges: map[string][]*models.Edge{},
		inDegree:      map[string]int{},
	}
	for _, n := range g.Nodes {
		d.inDegree[n.ID] = 0
	}
	for _, e := range g.Edges {
		d.Successors[e.Source] = append(d.Successors[e.Source], e.Target)
		d.Predecessors[e.Target] = append(d.Predecessors[e.Target], e.Source)
		d.IncomingEdges[e.Target] = append(d.IncomingEdges[e.Target], e)
		d.inDegree[e.Target]++

		if d.OutgoingEdges[e.Source] == nil {
			d.OutgoingEdges[e.Source] = map[string][]edgeTarget{}
		}
		handle := e.NormalizedSourceHandle()
		d.OutgoingEdges[e.Source][handle] = append(d.OutgoingEdges[e.Source][handle], edgeTarget{
			NodeID: e.Target, Handle: e.NormalizedTargetHandle(),
		})
	}
	return d
}

// TopologicalSort runs Kahn's algorithm and returns a single flat,
// deterministic sequential order (no wave-parallel
// fan-out). Ties among simultaneously-ready nodes are broken by the
// node's position in g.Nodes, so the order is stable across runs.
func (d *DAG) TopologicalSort() ([]string, error) {
	indexOf := map[string]int{}
	for i, n := range d.Graph.Nodes {
		indexOf[n.ID] = i
	}

	remaining := map[string]int{}
	for id, deg := range d.inDegree {
		remaining[id] = deg
	}

	var ready []string
	for _, n := range d.Graph.Nodes {
		if remaining[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}

	var order []string
	for len(ready) > 0 {
		// Pick the lowest-original-index ready node for determinism.
		bestIdx := 0
		for i := 1; i < len(ready); i++ {
			if indexOf[ready[i]] < indexOf[ready[bestIdx]] {
				bestIdx = i
			}
		}
		cur := ready[bestIdx]
		ready = append(ready[:bestIdx], ready[bestIdx+1:]...)
		order = append(order, cur)

		for _, next := range d.Successors[cur] {
			remaining[next]--
			if remaining[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(d.Graph.Nodes) {
		var cyclic []string
		visited := map[string]bool{}
		for _, id := range order {
			visited[id] = true
		}
		for _, n := range d.Graph.Nodes {
			if !visited[n.ID] {
				cyclic = append(cyclic, n.ID)
			}
		}
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("graph is cyclic; unreachable by topological sort: %v", cyclic))
	}
	return order, nil
}

// NodeByID returns the node with the given id, or nil.
func (d *DAG) NodeByID(id string) *models.Node {
	return d.Graph.NodeByID(id)
}

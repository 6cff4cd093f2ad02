package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ai-studio/workflow-core/internal/apperr"
	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// ControlFlowRunner dispatches iterator/loop nodes to the subgraph
// planner. Implemented by internal/subgraph; injected here to avoid an
// import cycle (subgraph depends on executor and models only).
type ControlFlowRunner interface {
	RunIterator(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, g *models.Graph, ec *exec.Context) (*models.NodeOutput, error)
	RunLoop(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, g *models.Graph, ec *exec.Context) (*models.NodeOutput, error)
}

// Engine runs graphs against a registry of node executors, delegating
// iterator/loop dispatch to a ControlFlowRunner.
type Engine struct {
	Registry    *exec.Registry
	ControlFlow ControlFlowRunner
	Conditions  *ConditionCache
}

// New builds an Engine. ctl may be nil if the graph being run contains no
// iterator/loop nodes (attempting to run one without a ControlFlowRunner
// configured is a fatal internal error).
func New(registry *exec.Registry, ctl ControlFlowRunner) *Engine {
	return &Engine{Registry: registry, ControlFlow: ctl, Conditions: NewConditionCache(100)}
}

// Run executes g: Kahn's sort, then
// sequential dispatch with transitive-skip propagation, skip/extra-output
// merging, usage aggregation, and event emission.
func (eng *Engine) Run(ctx context.Context, g *models.Graph, inputs map[string]interface{}, ec *exec.Context) (*models.RunResult, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	dag := BuildDAG(g)
	order, err := dag.TopologicalSort()
	if err != nil {
		return nil, err
	}

	ec.Graph = g
	ec.Inputs = inputs
	if ec.NodeOutputs == nil {
		ec.NodeOutputs = map[string]interface{}{}
	}
	ec.OutgoingEdges = buildOutgoingEdgeIndex(dag)
	if ec.Visited == nil {
		ec.Visited = xsync.NewMapOf[string, bool]()
	}
	if ec.RunSubgraph == nil {
		ec.RunSubgraph = func(ctx context.Context, sub *models.Graph, subInputs map[string]interface{}, subEC *exec.Context) (map[string]interface{}, models.Usage, error) {
			result, err := eng.Run(ctx, sub, subInputs, subEC)
			if err != nil {
				return nil, models.Usage{}, err
			}
			if result.Failed {
				return nil, result.Usage, result.Err
			}
			return result.Outputs, result.Usage, nil
		}
	}

	result := &models.RunResult{
		SessionID:   ec.SessionID,
		Outputs:     map[string]interface{}{},
		NodeOutputs: map[string]*models.NodeOutput{},
		StartedAt:   time.Now(),
	}

	skip := map[string]bool{}

	for _, nodeID := range order {
		node := dag.NodeByID(nodeID)

		if _, already := ec.NodeOutputs[nodeID]; already {
			continue
		}

		preds := dag.Predecessors[nodeID]
		if len(preds) > 0 && allSkippedWithoutOutput(preds, skip, ec.NodeOutputs) {
			skip[nodeID] = true
			eng.emit(ec, "workflow.node.skipped", map[string]interface{}{"node_id": nodeID, "reason": "predecessor skipped"})
			continue
		}

		if skip[nodeID] {
			eng.emit(ec, "workflow.node.skipped", map[string]interface{}{"node_id": nodeID, "reason": "pruned by router or control flow"})
			continue
		}

		if node.Type != models.NodeIterator && node.Type != models.NodeLoop && !eng.Registry.Has(node.Type) {
			skip[nodeID] = true
			eng.emit(ec, "workflow.node.skipped", map[string]interface{}{"node_id": nodeID, "reason": "unsupported type"})
			continue
		}

		incoming, condErr := eng.resolveIncomingWithConditions(dag, nodeID, ec.NodeOutputs)
		if condErr != nil {
			eng.emit(ec, "workflow.node.error", map[string]interface{}{"node_id": nodeID, "error": condErr.Error()})
			eng.emit(ec, "workflow.failed", map[string]interface{}{"node_id": nodeID, "error": condErr.Error()})
			result.Failed = true
			result.FailedNodeID = nodeID
			result.Err = condErr
			result.CompletedAt = time.Now()
			return result, nil
		}

		out, execErr := eng.dispatch(ctx, nodeID, node, incoming, g, ec)
		if execErr != nil {
			eng.emit(ec, "workflow.node.error", map[string]interface{}{"node_id": nodeID, "error": execErr.Error()})
			eng.emit(ec, "workflow.failed", map[string]interface{}{"node_id": nodeID, "error": execErr.Error()})
			result.Failed = true
			result.FailedNodeID = nodeID
			result.Err = execErr
			result.CompletedAt = time.Now()
			return result, nil
		}

		for id := range out.SkipNodes {
			skip[id] = true
		}
		for id, v := range out.ExtraOutputs {
			ec.NodeOutputs[id] = v
		}

		if out.Usage != nil {
			result.Usage.Add(out.Usage)
		}

		ec.NodeOutputs[nodeID] = out.Value
		result.NodeOutputs[nodeID] = out

		if node.Type == models.NodeOutputType {
			result.Outputs[nodeID] = out.Value
			result.OutputOrder = append(result.OutputOrder, nodeID)
		}

		eng.emit(ec, "workflow.node.completed", map[string]interface{}{"node_id": nodeID, "preview": preview(out.Value)})
	}

	eng.emit(ec, "workflow.completed", map[string]interface{}{"usage": result.Usage})
	result.CompletedAt = time.Now()
	return result, nil
}

// resolveIncomingWithConditions filters nodeID's incoming edges by their
// (optional) expr-lang condition before handle resolution: an edge whose
// condition evaluates false is treated as absent, the same as an edge
// whose source hasn't produced an output yet.
func (eng *Engine) resolveIncomingWithConditions(dag *DAG, nodeID string, nodeOutputs map[string]interface{}) (interface{}, error) {
	edges := dag.IncomingEdges[nodeID]
	if len(edges) == 0 {
		return nil, nil
	}

	var passing []*models.Edge
	for _, e := range edges {
		sourceVal, ok := nodeOutputs[e.Source]
		if !ok {
			continue
		}
		pass, err := eng.Conditions.EvaluateCondition(e.Condition, map[string]interface{}{"output": sourceVal, "node": e.Source})
		if err != nil {
			return nil, apperr.Wrap(apperr.Validation, fmt.Sprintf("edge %s->%s condition", e.Source, e.Target), err)
		}
		if pass {
			passing = append(passing, e)
		}
	}
	return resolveFromEdges(len(edges), passing, nodeOutputs), nil
}

func (eng *Engine) dispatch(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, g *models.Graph, ec *exec.Context) (*models.NodeOutput, error) {
	switch node.Type {
	case models.NodeIterator:
		if eng.ControlFlow == nil {
			return nil, apperr.New(apperr.Internal, "iterator node encountered with no control-flow runner configured")
		}
		return eng.ControlFlow.RunIterator(ctx, nodeID, node, incoming, g, ec)
	case models.NodeLoop:
		if eng.ControlFlow == nil {
			return nil, apperr.New(apperr.Internal, "loop node encountered with no control-flow runner configured")
		}
		return eng.ControlFlow.RunLoop(ctx, nodeID, node, incoming, g, ec)
	}

	e, ok := eng.Registry.Get(node.Type)
	if !ok {
		return &models.NodeOutput{}, nil
	}
	return e.Execute(ctx, nodeID, node, incoming, ec)
}

func (eng *Engine) emit(ec *exec.Context, eventType string, payload map[string]interface{}) {
	if ec.Emit == nil {
		return
	}
	ec.Emit(eventType, payload)
}

// allSkippedWithoutOutput reports whether every predecessor in ids is both
// in the skip set and has no precomputed output. A predecessor skipped by
// a router or control-flow node can still have pre-committed a value via
// ExtraOutputs (e.g. an iterator/loop's paired aggregator/exit), in which
// case its downstream successors must still run.
func allSkippedWithoutOutput(ids []string, skip map[string]bool, nodeOutputs map[string]interface{}) bool {
	for _, id := range ids {
		if _, hasOutput := nodeOutputs[id]; hasOutput {
			return false
		}
		if !skip[id] {
			return false
		}
	}
	return true
}

func buildOutgoingEdgeIndex(dag *DAG) map[string]map[string][]exec.EdgeTarget {
	out := map[string]map[string][]exec.EdgeTarget{}
	for source, handles := range dag.OutgoingEdges {
		out[source] = map[string][]exec.EdgeTarget{}
		for handle, targets := range handles {
			for _, t := range targets {
				out[source][handle] = append(out[source][handle], exec.EdgeTarget{NodeID: t.NodeID, Handle: t.Handle})
			}
		}
	}
	return out
}

func preview(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

package subgraph

import (
	"context"
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/ai-studio/workflow-core/internal/apperr"
	"github.com/ai-studio/workflow-core/internal/executor/builtin"
	"github.com/ai-studio/workflow-core/pkg/models"

	exec "github.com/ai-studio/workflow-core/internal/executor"
)

// RunIterator drives the iterator/aggregator node pair: items are
// extracted once, the paired subgraph re-enters the engine once per item
// via ec.RunSubgraph, and the per-item results are folded by the paired
// aggregator's strategy before being pre-committed back into the outer run.
func (r *Runner) RunIterator(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, g *models.Graph, ec *exec.Context) (*models.NodeOutput, error) {
	plan, err := r.planFor(g, nodeID)
	if err != nil {
		return nil, err
	}

	items, err := extractItems(node.Config, incoming)
	if err != nil {
		return nil, err
	}

	companion := g.NodeByID(plan.CompanionID)
	strategy := exec.GetStringDefault(companion.Config, "strategy", "array")

	var totalUsage models.Usage
	results := make([]interface{}, 0, len(items))
	for i, item := range items {
		childEC := r.childContext(ec)
		subInputs := map[string]interface{}{"input": item}

		out, usage, runErr := ec.RunSubgraph(ctx, plan.Synthetic, subInputs, childEC)
		if runErr != nil {
			return nil, apperr.Wrapf(apperr.Internal, runErr, "iterator %s: item %d failed", nodeID, i)
		}
		totalUsage.Add(&usage)

		results = append(results, out["result"])

		if ec.Emit != nil {
			ec.Emit("workflow.node.iteration", map[string]interface{}{
				"node_id": nodeID, "index": i, "total": len(items), "result": out["result"],
			})
		}
	}

	aggregated := builtin.ApplyAggregateStrategy(strategy, companion.Config, anySlice(results), plan.CompanionID)

	skip := map[string]bool{plan.CompanionID: true}
	for _, id := range plan.NodeOrder {
		if id != syntheticInputID && id != syntheticOutputID {
			skip[id] = true
		}
	}

	return &models.NodeOutput{
		Value:        aggregated,
		SkipNodes:    skip,
		ExtraOutputs: map[string]interface{}{plan.CompanionID: aggregated},
		Usage:        &totalUsage,
	}, nil
}

func anySlice(items []interface{}) interface{} { return items }

// extractItems resolves the iterable: an explicit "items"
// handle on a map incoming, a bare array incoming, or a configured JSONPath
// expression evaluated against incoming.
func extractItems(config map[string]interface{}, incoming interface{}) ([]interface{}, error) {
	if m, ok := incoming.(map[string]interface{}); ok {
		if v, ok := m["items"]; ok {
			if arr, ok := v.([]interface{}); ok {
				return arr, nil
			}
			return nil, apperr.New(apperr.Validation, "iterator: items handle is not an array")
		}
	}

	if path := exec.GetStringDefault(config, "itemsPath", ""); path != "" {
		query, err := gojq.Parse(path)
		if err != nil {
			return nil, apperr.Wrapf(apperr.Validation, err, "iterator: invalid itemsPath")
		}
		iter := query.Run(incoming)
		v, ok := iter.Next()
		if !ok {
			return nil, apperr.New(apperr.Validation, "iterator: itemsPath produced no value")
		}
		if err, isErr := v.(error); isErr {
			return nil, apperr.Wrapf(apperr.Validation, err, "iterator: itemsPath evaluation failed")
		}
		arr, ok := v.([]interface{})
		if !ok {
			return nil, apperr.New(apperr.Validation, "iterator: itemsPath did not resolve to an array")
		}
		return arr, nil
	}

	if arr, ok := incoming.([]interface{}); ok {
		return arr, nil
	}

	return nil, apperr.New(apperr.Validation, fmt.Sprintf("iterator: incoming value is not an array (got %T) and no itemsPath is configured", incoming))
}

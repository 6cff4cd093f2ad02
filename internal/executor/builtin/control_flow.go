package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// AggregatorExecutor runs only when an aggregator is unpaired (the
// subgraph planner pre-commits paired aggregators via extra_outputs and
// marks them skipped).
type AggregatorExecutor struct{}

func (AggregatorExecutor) Execute(_ context.Context, nodeID string, node *models.Node, incoming interface{}, _ *exec.Context) (*models.NodeOutput, error) {
	strategy := exec.GetStringDefault(node.Config, "strategy", "array")
	return &models.NodeOutput{Value: ApplyAggregateStrategy(strategy, node.Config, incoming, nodeID)}, nil
}

// ApplyAggregateStrategy implements the three aggregation strategies,
// shared between the standalone AggregatorExecutor and the
// iterator execution driver.
func ApplyAggregateStrategy(strategy string, config map[string]interface{}, incoming interface{}, nodeID string) interface{} {
	items := toItemSlice(incoming)

	switch strategy {
	case "concat":
		sep := exec.GetStringDefault(config, "separator", "")
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = stringifyValue(it)
		}
		return strings.Join(parts, sep)

	case "merge":
		out := map[string]interface{}{}
		for _, it := range items {
			if m, ok := it.(map[string]interface{}); ok {
				for k, v := range m {
					out[k] = v
				}
			}
		}
		return out

	default: // "array"
		return map[string]interface{}{"result": items, "count": len(items)}
	}
}

func toItemSlice(incoming interface{}) []interface{} {
	if arr, ok := incoming.([]interface{}); ok {
		return arr
	}
	if incoming == nil {
		return nil
	}
	return []interface{}{incoming}
}

func stringifyValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// ExitExecutor passes its incoming value through unchanged, as the
// synthetic output of a loop's subgraph (paired exits are pre-committed
// and skipped by the loop execution driver, just as aggregators are).
type ExitExecutor struct{}

func (ExitExecutor) Execute(_ context.Context, _ string, _ *models.Node, incoming interface{}, _ *exec.Context) (*models.NodeOutput, error) {
	return &models.NodeOutput{Value: incoming}, nil
}

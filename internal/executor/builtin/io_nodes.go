// Package builtin implements the built-in workflow node executors.
package builtin

import (
	"context"
	"fmt"

	"github.com/ai-studio/workflow-core/internal/apperr"
	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// InputExecutor resolves its output from the workflow input map.
type InputExecutor struct{}

func (InputExecutor) Execute(_ context.Context, nodeID string, node *models.Node, _ interface{}, ec *exec.Context) (*models.NodeOutput, error) {
	name := exec.GetStringDefault(node.Config, "name", "")

	for _, key := range []string{nodeID, name, "input"} {
		if key == "" {
			continue
		}
		if v, ok := ec.Inputs[key]; ok {
			if s, isStr := v.(string); isStr && s == "" {
				continue
			}
			return &models.NodeOutput{Value: v}, nil
		}
	}

	if len(ec.Inputs) == 1 {
		for _, v := range ec.Inputs {
			if s, isStr := v.(string); isStr && s == "" {
				break
			}
			return &models.NodeOutput{Value: v}, nil
		}
	}

	if def, ok := node.Config["default"]; ok {
		return &models.NodeOutput{Value: def}, nil
	}

	return nil, apperr.New(apperr.Validation, fmt.Sprintf("input node %s: no value found and no default configured", nodeID))
}

// OutputExecutor passes its incoming value through unchanged; the engine
// separately collects output-node values into the workflow result map.
type OutputExecutor struct{}

func (OutputExecutor) Execute(_ context.Context, _ string, _ *models.Node, incoming interface{}, _ *exec.Context) (*models.NodeOutput, error) {
	return &models.NodeOutput{Value: incoming}, nil
}

package builtin

import (
	"context"
	"fmt"

	"github.com/ai-studio/workflow-core/internal/apperr"
	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// SubworkflowExecutor loads another graph by id and re-enters the engine,
// detecting cycles via the visited-workflow set.
type SubworkflowExecutor struct{}

func (SubworkflowExecutor) Execute(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, ec *exec.Context) (*models.NodeOutput, error) {
	workflowID := exec.GetStringDefault(node.Config, "workflowId", "")
	if workflowID == "" {
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("subworkflow %s: workflowId is required", nodeID))
	}
	if visited, ok := ec.Visited.Load(workflowID); ok && visited {
		return nil, apperr.New(apperr.Workflow, fmt.Sprintf("subworkflow %s: cycle detected re-entering workflow %s", nodeID, workflowID))
	}

	g, err := ec.LoadGraph(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	childEC := ec.WithVisited(workflowID)
	outputs, usage, err := ec.RunSubgraph(ctx, g, map[string]interface{}{"input": incoming}, childEC)
	if err != nil {
		return nil, err
	}

	return &models.NodeOutput{Value: outputs, Usage: &usage}, nil
}

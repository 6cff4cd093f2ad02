package builtin

import (
	"context"
	"fmt"

	"github.com/ai-studio/workflow-core/internal/apperr"
	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// ToolExecutor calls the sidecar's /tools/execute endpoint under one of
// three approval modes.
type ToolExecutor struct{}

func (ToolExecutor) Execute(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, ec *exec.Context) (*models.NodeOutput, error) {
	toolName := exec.GetStringDefault(node.Config, "toolName", "")
	input, ok := incoming.(map[string]interface{})
	if !ok {
		return nil, apperr.New(apperr.Validation, fmt.Sprintf(
			"tool %s: incoming value must be a JSON object to use as tool input; wrap it with a transform node first", nodeID))
	}

	mode := exec.GetStringDefault(node.Config, "approvalMode", "auto")
	switch mode {
	case "deny":
		return nil, apperr.New(apperr.Workflow, fmt.Sprintf("tool %s: execution denied by configured policy", nodeID))
	case "ask":
		if ec.Approvals == nil {
			return nil, apperr.New(apperr.Internal, "tool approval requested but no approval manager configured")
		}
		approved, err := ec.Approvals.RequestApproval(ctx, ec.SessionID, nodeID, map[string]interface{}{
			"tool_name": toolName, "tool_input": input,
		})
		if err != nil {
			return nil, err
		}
		if !approved {
			return nil, apperr.New(apperr.Workflow, fmt.Sprintf("tool %s: denied or timed out awaiting approval", nodeID))
		}
	}

	result, err := ec.Sidecar.ExecuteTool(ctx, toolName, input)
	if err != nil {
		return nil, err
	}
	return &models.NodeOutput{Value: map[string]interface{}{"result": result}}, nil
}

// ApprovalExecutor suspends until user response.
type ApprovalExecutor struct{}

func (ApprovalExecutor) Execute(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, ec *exec.Context) (*models.NodeOutput, error) {
	if ec.Approvals == nil {
		return nil, apperr.New(apperr.Internal, "approval node requires an approval manager")
	}
	approved, err := ec.Approvals.RequestApproval(ctx, ec.SessionID, nodeID, map[string]interface{}{
		"node_id": nodeID, "value": incoming,
	})
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, apperr.New(apperr.Workflow, fmt.Sprintf("approval %s: denied or timed out", nodeID))
	}
	return &models.NodeOutput{Value: incoming}, nil
}

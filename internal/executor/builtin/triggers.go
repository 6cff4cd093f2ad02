package builtin

import (
	"context"

	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// WebhookTriggerExecutor is a source-only node: it simply republishes the
// well-known __webhook_* input keys the trigger supervisor injected.
type WebhookTriggerExecutor struct{}

func (WebhookTriggerExecutor) Execute(_ context.Context, _ string, _ *models.Node, _ interface{}, ec *exec.Context) (*models.NodeOutput, error) {
	return &models.NodeOutput{Value: map[string]interface{}{
		"body":    ec.Inputs["__webhook_body"],
		"headers": ec.Inputs["__webhook_headers"],
		"query":   ec.Inputs["__webhook_query"],
		"method":  ec.Inputs["__webhook_method"],
	}}, nil
}

// CronTriggerExecutor is a source-only node republishing the well-known
// __cron_* input keys the scheduler injected.
type CronTriggerExecutor struct{}

func (CronTriggerExecutor) Execute(_ context.Context, _ string, _ *models.Node, _ interface{}, ec *exec.Context) (*models.NodeOutput, error) {
	return &models.NodeOutput{Value: map[string]interface{}{
		"timestamp": ec.Inputs["__cron_timestamp"],
		"iteration": ec.Inputs["__cron_iteration"],
		"input":     ec.Inputs["__cron_input"],
		"schedule":  ec.Inputs["__cron_schedule"],
	}}, nil
}

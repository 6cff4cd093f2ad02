package builtin

import (
	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// RegisterAll registers every built-in node executor into r.
// iterator and loop are deliberately absent: the DAG engine special-cases
// those two node types, routing them to the subgraph planner before
// consulting the registry at all.
func RegisterAll(r *exec.Registry) {
	r.Register(models.NodeInput, InputExecutor{})
	r.Register(models.NodeOutputType, OutputExecutor{})
	r.Register(models.NodeLLM, LLMExecutor{})
	r.Register(models.NodeTransform, TransformExecutor{})
	r.Register(models.NodeRouter, RouterExecutor{})
	r.Register(models.NodeTool, ToolExecutor{})
	r.Register(models.NodeApproval, ApprovalExecutor{})
	r.Register(models.NodeSubworkflow, SubworkflowExecutor{})
	r.Register(models.NodeHTTPRequest, HTTPRequestExecutor{})
	r.Register(models.NodeFileRead, FileReadExecutor{})
	r.Register(models.NodeFileGlob, FileGlobExecutor{})
	r.Register(models.NodeFileWrite, FileWriteExecutor{})
	r.Register(models.NodeShellExec, ShellExecExecutor{})
	r.Register(models.NodeValidator, ValidatorExecutor{})
	r.Register(models.NodeKnowledgeBase, KnowledgeBaseExecutor{})
	r.Register(models.NodeAggregator, AggregatorExecutor{})
	r.Register(models.NodeExit, ExitExecutor{})
	r.Register(models.NodeWebhookTrigger, WebhookTriggerExecutor{})
	r.Register(models.NodeCronTrigger, CronTriggerExecutor{})
	r.Register(models.NodeEmailSend, EmailSendExecutor{})
}

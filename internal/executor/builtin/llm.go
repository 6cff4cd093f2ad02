package builtin

import (
	"context"
	"fmt"
	"strings"

	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/internal/template"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// LLMExecutor resolves a prompt via its precedence rules and
// calls the sidecar's /chat/direct endpoint.
type LLMExecutor struct{}

func (LLMExecutor) Execute(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, ec *exec.Context) (*models.NodeOutput, error) {
	prompt := resolvePrompt(node, incoming, ec)

	provider := exec.GetStringDefault(node.Config, "provider", "openai")
	model := exec.GetStringDefault(node.Config, "model", "gpt-4o-mini")
	temperature := exec.GetFloatDefault(node.Config, "temperature", 0.7)
	systemPrompt := exec.GetStringDefault(node.Config, "systemPrompt", "")

	prefix := fmt.Sprintf("provider.%s.", provider)
	apiKey, _ := ec.Settings[prefix+"api_key"].(string)
	baseURL, _ := ec.Settings[prefix+"base_url"].(string)

	req := map[string]interface{}{
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"provider":    provider,
		"model":       model,
		"temperature": temperature,
	}
	if systemPrompt != "" {
		req["system_prompt"] = systemPrompt
	}
	if apiKey != "" {
		req["api_key"] = apiKey
	}
	if baseURL != "" {
		req["base_url"] = baseURL
	}

	resp, err := ec.Sidecar.ChatDirect(ctx, req)
	if err != nil {
		return nil, err
	}

	content, _ := resp["content"].(string)
	usage := &models.Usage{}
	if u, ok := resp["usage"].(map[string]interface{}); ok {
		usage.PromptTokens = toInt(u["prompt_tokens"])
		usage.CompletionTokens = toInt(u["completion_tokens"])
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	_ = nodeID
	return &models.NodeOutput{
		Value: map[string]interface{}{"response": content, "content": content},
		Usage: usage,
	}, nil
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// resolvePrompt implements the llm node's prompt precedence: a
// non-empty incoming "prompt" handle; else a non-empty bare incoming
// string; else the configured template resolved if it contains {{…}};
// else the template literally.
func resolvePrompt(node *models.Node, incoming interface{}, ec *exec.Context) string {
	if m, ok := incoming.(map[string]interface{}); ok {
		if p, ok := m["prompt"].(string); ok && p != "" {
			return p
		}
	}
	if s, ok := incoming.(string); ok && s != "" {
		return s
	}

	tmpl := exec.GetStringDefault(node.Config, "prompt", "")
	if strings.Contains(tmpl, "{{") {
		return template.Resolve(tmpl, ec.NodeOutputs, ec.Inputs)
	}
	return tmpl
}

package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/ai-studio/workflow-core/internal/apperr"
	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// RouterExecutor implements the "router" node: pattern or
// llm mode branch selection, reporting skip_nodes for every non-selected
// branch-<i> handle's downstream reach.
type RouterExecutor struct{}

func branchNames(node *models.Node) []string {
	raw, _ := exec.GetSlice(node.Config, "branches")
	names := make([]string, 0, len(raw))
	for _, b := range raw {
		switch v := b.(type) {
		case string:
			names = append(names, v)
		case map[string]interface{}:
			if n, ok := v["name"].(string); ok {
				names = append(names, n)
			}
		}
	}
	return names
}

func (RouterExecutor) Execute(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, ec *exec.Context) (*models.NodeOutput, error) {
	branches := branchNames(node)
	if len(branches) == 0 {
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("router %s: no branches configured", nodeID))
	}

	text := textOf(incoming)
	mode := exec.GetStringDefault(node.Config, "mode", "pattern")

	var selected string
	var lowConfidence bool
	if mode == "llm" {
		selected, lowConfidence = selectLLM(ctx, ec, branches, text)
	} else {
		selected = selectPattern(branches, text)
	}

	selectedIdx := -1
	for i, b := range branches {
		if b == selected {
			selectedIdx = i
			break
		}
	}

	skip := map[string]bool{}
	for i := range branches {
		if i == selectedIdx {
			continue
		}
		handle := fmt.Sprintf("branch-%d", i)
		for _, target := range reachableFrom(ec, nodeID, handle) {
			skip[target] = true
		}
	}

	out := map[string]interface{}{"selectedBranch": selected, "value": incoming}
	if lowConfidence {
		out["lowConfidence"] = true
	}
	return &models.NodeOutput{Value: out, SkipNodes: skip}, nil
}

func textOf(incoming interface{}) string {
	switch v := incoming.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func selectPattern(branches []string, text string) string {
	lower := strings.ToLower(text)
	for _, b := range branches {
		if strings.Contains(lower, strings.ToLower(b)) {
			return b
		}
	}
	return branches[len(branches)-1]
}

func selectLLM(ctx context.Context, ec *exec.Context, branches []string, text string) (string, bool) {
	prompt := fmt.Sprintf("Classify the following text into exactly one of these categories: %s.\nRespond with only the category name.\n\nText: %s",
		strings.Join(branches, ", "), text)

	resp, err := ec.Sidecar.ChatDirect(ctx, map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": prompt}},
		"provider": "openai",
		"model":    "gpt-4o-mini",
	})
	if err != nil {
		return branches[0], true
	}
	content, _ := resp["content"].(string)
	content = strings.TrimSpace(strings.ToLower(content))
	for _, b := range branches {
		if strings.ToLower(b) == content {
			return b, false
		}
	}
	return branches[0], true
}

// reachableFrom walks the outgoing-edge index forward from (nodeID,
// handle), collecting every node reachable transitively.
func reachableFrom(ec *exec.Context, nodeID, handle string) []string {
	visited := map[string]bool{}
	var queue []string
	if targets, ok := ec.OutgoingEdges[nodeID]; ok {
		for _, t := range targets[handle] {
			queue = append(queue, t.NodeID)
		}
	}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		out = append(out, cur)
		if targets, ok := ec.OutgoingEdges[cur]; ok {
			for _, handleTargets := range targets {
				for _, t := range handleTargets {
					if !visited[t.NodeID] {
						queue = append(queue, t.NodeID)
					}
				}
			}
		}
	}
	return out
}

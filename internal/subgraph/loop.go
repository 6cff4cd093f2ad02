package subgraph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ai-studio/workflow-core/internal/apperr"
	"github.com/ai-studio/workflow-core/pkg/models"

	exec "github.com/ai-studio/workflow-core/internal/executor"
)

const (
	maxLoopIterations = 50
	minLoopIterations = 1
	truncateLen       = 10000
)

// RunLoop drives a loop/exit node pair: the paired subgraph
// re-enters repeatedly, feeding each iteration's exit value back in as the
// next iteration's input (replace or append), until maxIterations or the
// configured exit condition is satisfied.
func (r *Runner) RunLoop(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, g *models.Graph, ec *exec.Context) (*models.NodeOutput, error) {
	plan, err := r.planFor(g, nodeID)
	if err != nil {
		return nil, err
	}

	maxIter := exec.GetIntDefault(node.Config, "maxIterations", 10)
	if maxIter < minLoopIterations {
		maxIter = minLoopIterations
	}
	if maxIter > maxLoopIterations {
		maxIter = maxLoopIterations
	}
	exitCondition := exec.GetStringDefault(node.Config, "exitCondition", "max_iterations")
	feedbackMode := exec.GetStringDefault(node.Config, "feedbackMode", "replace")
	threshold := exec.GetFloatDefault(node.Config, "stabilityThreshold", 0.95)

	var totalUsage models.Usage
	current := incoming
	var previous interface{}
	iterations := 0

	for i := 0; i < maxIter; i++ {
		iterations = i + 1
		childEC := r.childContext(ec)
		subInputs := map[string]interface{}{"input": current}

		out, usage, runErr := ec.RunSubgraph(ctx, plan.Synthetic, subInputs, childEC)
		if runErr != nil {
			return nil, apperr.Wrapf(apperr.Internal, runErr, "loop %s: iteration %d failed", nodeID, i)
		}
		totalUsage.Add(&usage)
		result := out["result"]

		if ec.Emit != nil {
			ec.Emit("workflow.node.iteration", map[string]interface{}{
				"node_id": nodeID, "index": i, "iteration": iterations, "result": result,
			})
		}

		stop, feedback, evalErr := shouldExit(exitCondition, plan, childEC, previous, result, threshold)
		if evalErr != nil {
			return nil, evalErr
		}

		previous = current
		current = feedInto(feedbackMode, current, feedback)

		if stop {
			break
		}
	}

	skip := map[string]bool{plan.CompanionID: true}
	for _, id := range plan.NodeOrder {
		if id != syntheticInputID && id != syntheticOutputID {
			skip[id] = true
		}
	}

	return &models.NodeOutput{
		Value:        current,
		SkipNodes:    skip,
		ExtraOutputs: map[string]interface{}{plan.CompanionID: current},
		Usage:        &totalUsage,
	}, nil
}

// feedInto applies the replace/append feedback mode: replace hands the
// exit value straight back in as next input; append concatenates it onto
// the running string accumulator (non-string values are JSON-stringified).
func feedInto(mode string, current, result interface{}) interface{} {
	if mode != "append" {
		return result
	}
	return stringify(current) + "\n" + stringify(result)
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// shouldExit evaluates the configured exit condition after an iteration has
// already run (max_iterations is handled by the caller's loop bound and
// always returns false here so the loop runs its full budget). Besides
// whether to stop, it returns the value to feed into the next iteration —
// ordinarily just result, except evaluator mode's "continue" branch, where
// the exit node was pruned and result is null.
func shouldExit(condition string, plan *Plan, childEC *exec.Context, previous, result interface{}, threshold float64) (bool, interface{}, error) {
	switch condition {
	case "stable_output":
		if previous == nil {
			return false, result, nil
		}
		return similarity(stringify(previous), stringify(result)) >= threshold, result, nil

	case "evaluator":
		return evaluateStop(plan, childEC, result)

	default: // "max_iterations"
		return false, result, nil
	}
}

// evaluateStop implements evaluator-mode exit: the subgraph must contain a
// router node selecting "continue" or "done". "done" stops the loop and
// feeds the exit node's own output forward as usual. "continue" means the
// router pruned the exit node itself, so result is null; the loop instead
// falls back to the most recent non-null output among the subgraph's
// non-router nodes, scanned in reverse order, as the next iteration's input.
func evaluateStop(plan *Plan, childEC *exec.Context, result interface{}) (bool, interface{}, error) {
	branch, ok := routerBranch(plan, childEC)
	if !ok {
		return false, nil, apperr.New(apperr.Validation, fmt.Sprintf(
			"loop %s: evaluator exit condition requires a router node in its subgraph", plan.ControlID))
	}

	if branch == "done" {
		return true, result, nil
	}
	return false, fallbackOutput(plan, childEC), nil
}

// routerBranch finds the router node within plan's subgraph and returns the
// branch it selected.
func routerBranch(plan *Plan, childEC *exec.Context) (string, bool) {
	for _, id := range plan.NodeOrder {
		node := plan.Synthetic.NodeByID(id)
		if node == nil || node.Type != models.NodeRouter {
			continue
		}
		out, ok := childEC.NodeOutputs[id].(map[string]interface{})
		if !ok {
			return "", false
		}
		branch, ok := out["selectedBranch"].(string)
		return branch, ok
	}
	return "", false
}

// fallbackOutput scans plan's subgraph node order in reverse, skipping the
// router itself, for the most recent non-nil output.
func fallbackOutput(plan *Plan, childEC *exec.Context) interface{} {
	for i := len(plan.NodeOrder) - 1; i >= 0; i-- {
		id := plan.NodeOrder[i]
		if id == syntheticInputID || id == syntheticOutputID {
			continue
		}
		if node := plan.Synthetic.NodeByID(id); node != nil && node.Type == models.NodeRouter {
			continue
		}
		if v, ok := childEC.NodeOutputs[id]; ok && v != nil {
			return v
		}
	}
	return nil
}

// similarity returns a 0..1 score from 1 - normalizedLevenshtein over the
// two (length-capped) strings. No corpus example imports a Levenshtein
// library, so this is a direct, unexported Wagner-Fischer implementation
// (see DESIGN.md for the stdlib-fallback justification).
func similarity(a, b string) float64 {
	a = truncate(a)
	b = truncate(b)
	if a == b {
		return 1
	}
	dist := levenshtein(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}

func truncate(s string) string {
	if len(s) > truncateLen {
		return s[:truncateLen]
	}
	return s
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			cur[j] = min3(del, ins, sub)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

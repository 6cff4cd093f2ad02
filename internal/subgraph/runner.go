package subgraph

import (
	"sync"

	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// Runner implements engine.ControlFlowRunner, caching discovered plans per
// (graph pointer, control node id) for the Runner's lifetime; entries are
// never evicted.
type Runner struct {
	mu    sync.Mutex
	plans map[planKey]*Plan
}

type planKey struct {
	g     *models.Graph
	ctlID string
}

// NewRunner builds a Runner. One Runner may be shared across concurrent
// runs; its cache is keyed by graph pointer so distinct graphs never collide.
func NewRunner() *Runner {
	return &Runner{plans: map[planKey]*Plan{}}
}

func (r *Runner) planFor(g *models.Graph, ctlID string) (*Plan, error) {
	key := planKey{g: g, ctlID: ctlID}

	r.mu.Lock()
	if p, ok := r.plans[key]; ok {
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	p, err := BuildPlan(g, ctlID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.plans[key] = p
	r.mu.Unlock()
	return p, nil
}

// childContext derives a fresh execution context for one subgraph
// re-entry: same settings/sidecar/approvals/run identity, but an isolated
// node-output map and sequence counter so iterations don't observe each
// other's intermediate state.
func (r *Runner) childContext(ec *exec.Context) *exec.Context {
	seq := *ec.SeqCounter
	child := &exec.Context{
		Settings:    ec.Settings,
		NodeOutputs: map[string]interface{}{},
		SeqCounter:  &seq,
		Visited:     ec.Visited,
		RunID:       ec.RunID,
		SessionID:   ec.SessionID,
		Ephemeral:   ec.Ephemeral,
		Sidecar:     ec.Sidecar,
		Emit:        ec.Emit,
		Approvals:   ec.Approvals,
		RunSubgraph: ec.RunSubgraph,
		LoadGraph:   ec.LoadGraph,
	}
	return child
}

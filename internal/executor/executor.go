// Package executor defines the node executor contract and the shared
// execution context every built-in executor consults, with a Registry
// keyed by node type, package-level config accessors (GetString,
// GetIntDefault, ...), and a structured NodeOutput shape instead of a bare
// interface{} result.
package executor

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ai-studio/workflow-core/pkg/models"
)

// Executor executes one node type.
type Executor interface {
	Execute(ctx context.Context, nodeID string, nodeData *models.Node, incoming interface{}, ec *Context) (*models.NodeOutput, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, nodeID string, nodeData *models.Node, incoming interface{}, ec *Context) (*models.NodeOutput, error)

func (f ExecutorFunc) Execute(ctx context.Context, nodeID string, nodeData *models.Node, incoming interface{}, ec *Context) (*models.NodeOutput, error) {
	return f(ctx, nodeID, nodeData, incoming, ec)
}

// EdgeTarget is one (target node, target handle) pair reached from a
// (source node, source handle) pair.
type EdgeTarget struct {
	NodeID string
	Handle string
}

// Context is the shared state every executor call receives:
// settings, the read-only node-output map built up so far, the
// workflow input map, the outgoing-edge index, a sequence counter, the
// sub-workflow visited set, the original graph, the run id, and the
// ephemeral flag.
type Context struct {
	Settings      map[string]interface{}
	NodeOutputs   map[string]interface{}
	Inputs        map[string]interface{}
	OutgoingEdges map[string]map[string][]EdgeTarget // source id -> source handle -> targets
	SeqCounter    *int64
	Visited       *xsync.MapOf[string, bool] // visited workflow ids, for subworkflow cycle detection
	Graph         *models.Graph
	RunID         string
	SessionID     string
	Ephemeral     bool

	// Sidecar is the HTTP client used by llm/tool/knowledge_base executors.
	Sidecar SidecarClient
	// Emit publishes one event. The server wires it to the observer bus
	// and, for non-ephemeral runs, to a synchronous event-store append.
	Emit func(eventType string, payload map[string]interface{})
	// Approvals routes tool/approval suspension through the approval manager.
	Approvals ApprovalWaiter
	// RunSubgraph re-enters the DAG engine on a synthesized graph (wired by
	// the subgraph planner to avoid an import cycle with internal/engine).
	RunSubgraph func(ctx context.Context, g *models.Graph, inputs map[string]interface{}, ec *Context) (map[string]interface{}, models.Usage, error)
	// LoadGraph fetches another workflow's graph by id, for the subworkflow executor.
	LoadGraph func(ctx context.Context, workflowID string) (*models.Graph, error)
}

// WithVisited returns a shallow copy of ec with workflowID marked visited,
// for recursive subworkflow entry.
func (c *Context) WithVisited(workflowID string) *Context {
	next := *c
	visited := xsync.NewMapOf[string, bool]()
	c.Visited.Range(func(k string, v bool) bool {
		visited.Store(k, v)
		return true
	})
	visited.Store(workflowID, true)
	next.Visited = visited
	return &next
}

// NextSeq returns the next monotonically increasing sequence number for
// this run's event stream.
func (c *Context) NextSeq() int64 {
	return atomic.AddInt64(c.SeqCounter, 1)
}

// SidecarClient is the subset of internal/sidecar.Client the executors need.
type SidecarClient interface {
	ChatDirect(ctx context.Context, req map[string]interface{}) (map[string]interface{}, error)
	Embed(ctx context.Context, texts []string, provider, model string, cfg map[string]interface{}) ([][]float32, int, error)
	Extract(ctx context.Context, path, format string) (string, error)
	ExecuteTool(ctx context.Context, toolName string, toolInput map[string]interface{}) (interface{}, error)
}

// ApprovalWaiter suspends node execution pending a user decision.
type ApprovalWaiter interface {
	RequestApproval(ctx context.Context, sessionID, nodeID string, payload map[string]interface{}) (approved bool, err error)
}

// GetString retrieves a string field from config, error if missing/wrong type.
func GetString(config map[string]interface{}, key string) (string, error) {
	v, ok := config[key]
	if !ok {
		return "", fmt.Errorf("field not found: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %s is not a string", key)
	}
	return s, nil
}

// GetStringDefault retrieves a string field from config, or def if absent/wrong type.
func GetStringDefault(config map[string]interface{}, key, def string) string {
	v, ok := config[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// GetIntDefault retrieves an int field from config (accepting JSON float64), or def.
func GetIntDefault(config map[string]interface{}, key string, def int) int {
	v, ok := config[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

// GetFloatDefault retrieves a float field from config, or def.
func GetFloatDefault(config map[string]interface{}, key string, def float64) float64 {
	v, ok := config[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

// GetBoolDefault retrieves a bool field from config, or def.
func GetBoolDefault(config map[string]interface{}, key string, def bool) bool {
	v, ok := config[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// GetMap retrieves a map field from config.
func GetMap(config map[string]interface{}, key string) (map[string]interface{}, bool) {
	v, ok := config[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

// GetSlice retrieves a slice field from config.
func GetSlice(config map[string]interface{}, key string) ([]interface{}, bool) {
	v, ok := config[key]
	if !ok {
		return nil, false
	}
	s, ok := v.([]interface{})
	return s, ok
}

// Package models defines the data types shared across the workflow core:
// the graph/node/edge shapes the DAG engine consumes, node outputs, and the
// RAG index's on-disk record types.
package models

import "time"

// NodeType enumerates the node kinds the engine knows how to dispatch.
type NodeType string

const (
	NodeInput          NodeType = "input"
	NodeOutputType     NodeType = "output"
	NodeLLM            NodeType = "llm"
	NodeTransform      NodeType = "transform"
	NodeRouter         NodeType = "router"
	NodeTool           NodeType = "tool"
	NodeApproval       NodeType = "approval"
	NodeSubworkflow    NodeType = "subworkflow"
	NodeHTTPRequest    NodeType = "http_request"
	NodeFileRead       NodeType = "file_read"
	NodeFileGlob       NodeType = "file_glob"
	NodeFileWrite      NodeType = "file_write"
	NodeShellExec      NodeType = "shell_exec"
	NodeValidator      NodeType = "validator"
	NodeIterator       NodeType = "iterator"
	NodeAggregator     NodeType = "aggregator"
	NodeLoop           NodeType = "loop"
	NodeExit           NodeType = "exit"
	NodeKnowledgeBase  NodeType = "knowledge_base"
	NodeWebhookTrigger NodeType = "webhook_trigger"
	NodeCronTrigger    NodeType = "cron_trigger"
	NodeEmailSend      NodeType = "email_send"
)

// DefaultSourceHandle and DefaultTargetHandle are used when an edge omits
// its handle names.
const (
	DefaultSourceHandle = "output"
	DefaultTargetHandle = "input"
)

// Node is a single vertex in a workflow graph. ID is opaque and unique
// within the graph; Config is the free-form per-type configuration payload.
type Node struct {
	ID     string                 `json:"id"`
	Type   NodeType               `json:"type"`
	Name   string                 `json:"name,omitempty"`
	Config map[string]interface{} `json:"config"`
}

// Edge connects a source node's handle to a target node's handle.
// SourceHandle/TargetHandle default to "output"/"input" when empty.
type Edge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
	// Condition is an expr-lang boolean expression evaluated against
	// {"output": <source node output>, "node": <source node id>}; an empty
	// condition is always true.
	Condition string `json:"condition,omitempty"`
}

// NormalizedSourceHandle returns the edge's source handle, defaulted.
func (e *Edge) NormalizedSourceHandle() string {
	if e.SourceHandle == "" {
		return DefaultSourceHandle
	}
	return e.SourceHandle
}

// NormalizedTargetHandle returns the edge's target handle, defaulted.
func (e *Edge) NormalizedTargetHandle() string {
	if e.TargetHandle == "" {
		return DefaultTargetHandle
	}
	return e.TargetHandle
}

// Graph is the full user-authored workflow definition.
type Graph struct {
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Nodes     []*Node                `json:"nodes"`
	Edges     []*Edge                `json:"edges"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Validate checks the graph's structural invariants: unique
// node identifiers, and every edge referencing nodes present in the graph.
// Acyclicity is checked separately by the topological sort.
func (g *Graph) Validate() error {
	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return &ValidationError{Field: "id", Message: "node id is required"}
		}
		if seen[n.ID] {
			return &ValidationError{Field: "id", Message: "duplicate node id: " + n.ID}
		}
		seen[n.ID] = true
	}
	for _, e := range g.Edges {
		if !seen[e.Source] {
			return &ValidationError{Field: "source", Message: "edge references unknown node: " + e.Source}
		}
		if !seen[e.Target] {
			return &ValidationError{Field: "target", Message: "edge references unknown node: " + e.Target}
		}
	}
	return nil
}

// NodeOutput is what every executor returns. Value is the free-form primary
// result; SkipNodes names downstream nodes the executor has pruned;
// ExtraOutputs pre-commits values for nodes the executor has caused to be
// skipped (control-flow splice pattern).
type NodeOutput struct {
	Value        interface{}
	SkipNodes    map[string]bool
	ExtraOutputs map[string]interface{}
	// Usage, when non-nil, is stripped from Value by the engine before the
	// output is stored for routing, and folded into the run's usage totals.
	Usage *Usage
}

// Usage tracks LLM token consumption attributable to a single node
// execution.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates u into the receiver, returning the receiver for chaining.
func (u *Usage) Add(o *Usage) *Usage {
	if o == nil {
		return u
	}
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
	return u
}

// ValidationError reports a structural problem with a Graph, Node, or Edge.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

// RunResult is the terminal outcome of one DAG execution.
type RunResult struct {
	SessionID     string
	Outputs       map[string]interface{} // collected from `output`-type nodes
	OutputOrder   []string                // output-node ids in completion order; Outputs[OutputOrder[0]] is "the" first output
	NodeOutputs   map[string]*NodeOutput
	Usage         Usage
	Failed        bool
	FailedNodeID  string
	Err           error
	StartedAt     time.Time
	CompletedAt   time.Time
}

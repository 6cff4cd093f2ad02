package models

import "time"

// EventType is a dot-namespaced event name, e.g. "workflow.node.completed".
type EventType string

const (
	EventNodeStarted    EventType = "workflow.node.started"
	EventNodeCompleted  EventType = "workflow.node.completed"
	EventNodeSkipped    EventType = "workflow.node.skipped"
	EventNodeError      EventType = "workflow.node.error"
	EventNodeIteration  EventType = "workflow.node.iteration"
	EventWorkflowDone   EventType = "workflow.completed"
	EventWorkflowFailed EventType = "workflow.failed"

	EventLiveStarted          EventType = "live.started"
	EventLiveStopped          EventType = "live.stopped"
	EventLiveIterationDone    EventType = "live.iteration.completed"
	EventLiveIterationError   EventType = "live.iteration.error"

	EventApprovalRequested EventType = "workflow_approval_requested"
	EventToolApproval      EventType = "tool_approval_requested"
	EventRunStatusChanged  EventType = "run_status_changed"
)

// Event is the envelope emitted on every observable occurrence within a run.
// Optional fields are pointers so a JSON encoding omits them cleanly and a
// zero value is distinguishable from "not applicable".
type Event struct {
	EventID     string                 `json:"event_id"`
	Type        EventType              `json:"type"`
	Timestamp   time.Time              `json:"ts"`
	SessionID   string                 `json:"session_id"`
	Source      string                 `json:"source"`
	Seq         int64                  `json:"seq"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	CostUSD     *float64               `json:"cost_usd,omitempty"`
	NodeID      *string                `json:"node_id,omitempty"`
	RunID       *string                `json:"run_id,omitempty"`
	WorkflowID  *string                `json:"workflow_id,omitempty"`
}

// EventSource is the fixed source tag every emitted Event carries.
const EventSource = "desktop.workflow"

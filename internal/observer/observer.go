// Package observer implements the fan-out event bus the DAG engine, trigger
// supervisor, and live run manager publish to.
package observer

import "github.com/ai-studio/workflow-core/pkg/models"

// Observer receives events matching its optional Filter.
type Observer struct {
	Name    string
	OnEvent func(models.Event)
	Filter  EventFilter
}

// EventFilter decides whether an event should reach an Observer.
type EventFilter interface {
	Match(models.Event) bool
}

// EventTypeFilter matches a fixed set of event types.
type EventTypeFilter struct {
	Types map[models.EventType]bool
}

// NewEventTypeFilter builds an EventTypeFilter from a variadic list.
func NewEventTypeFilter(types ...models.EventType) *EventTypeFilter {
	m := make(map[models.EventType]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return &EventTypeFilter{Types: m}
}

func (f *EventTypeFilter) Match(e models.Event) bool { return f.Types[e.Type] }

// SessionIDFilter matches events belonging to one session.
type SessionIDFilter struct{ SessionID string }

func (f *SessionIDFilter) Match(e models.Event) bool { return e.SessionID == f.SessionID }

// NodeIDFilter matches events about one node.
type NodeIDFilter struct{ NodeID string }

func (f *NodeIDFilter) Match(e models.Event) bool {
	return e.NodeID != nil && *e.NodeID == f.NodeID
}

// CompoundEventFilter requires all inner filters to match (logical AND).
type CompoundEventFilter struct{ Filters []EventFilter }

func (f *CompoundEventFilter) Match(e models.Event) bool {
	for _, inner := range f.Filters {
		if !inner.Match(e) {
			return false
		}
	}
	return true
}

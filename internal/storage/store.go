package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/ai-studio/workflow-core/internal/storage/models"
	pkgmodels "github.com/ai-studio/workflow-core/pkg/models"
)

// Store is the persistence contract the core depends on. It is implemented
// by a bun/Postgres-backed store for production and an in-memory store for
// tests, covering the five tables the core owns directly.
type Store interface {
	// GetGraph loads a workflow's graph by id.
	GetGraph(ctx context.Context, workflowID string) (*pkgmodels.Graph, error)

	// CreateSession creates a session row and returns its id. Ephemeral
	// one-shot runs through the REST API do not call it and run with an
	// empty session id.
	CreateSession(ctx context.Context, agentID, title string) (string, error)

	// AppendEvent appends an event row, computing seq as MAX(seq)+1 for the
	// session. Ephemeral callers must not call this.
	AppendEvent(ctx context.Context, e pkgmodels.Event) error

	// GetTrigger loads a trigger row by id.
	GetTrigger(ctx context.Context, triggerID string) (*models.TriggerRow, error)

	// ListEnabledTriggers loads every enabled trigger, used at supervisor
	// startup to re-arm routes and cron entries.
	ListEnabledTriggers(ctx context.Context) ([]*models.TriggerRow, error)

	// RecordTriggerFired bumps fire_count/last_fired and inserts a
	// trigger_log row with status "fired", returning the log row id.
	RecordTriggerFired(ctx context.Context, triggerID, runID string) (string, error)

	// UpdateTriggerLogStatus transitions a trigger_log row to "completed"
	// or "error".
	UpdateTriggerLogStatus(ctx context.Context, logID, status string, metadata map[string]interface{}) error
}

// newID generates a fresh UUID as a string, used by in-memory stores and
// anywhere an id must be allocated client-side before insert.
func newID() string { return uuid.New().String() }

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ai-studio/workflow-core/internal/apperr"
	"github.com/ai-studio/workflow-core/internal/storage/models"
	pkgmodels "github.com/ai-studio/workflow-core/pkg/models"
)

// MemoryStore is an in-process Store used by tests. It never touches
// Postgres.
type MemoryStore struct {
	mu       sync.Mutex
	graphs   map[string]*pkgmodels.Graph
	events   map[string][]pkgmodels.Event // sessionID -> events, for seq computation
	triggers map[string]*models.TriggerRow
	logs     map[string]*models.TriggerLogRow
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		graphs:   make(map[string]*pkgmodels.Graph),
		events:   make(map[string][]pkgmodels.Event),
		triggers: make(map[string]*models.TriggerRow),
		logs:     make(map[string]*models.TriggerLogRow),
	}
}

// PutGraph registers a graph under an id for GetGraph to serve; a test
// helper, not part of the Store interface.
func (m *MemoryStore) PutGraph(id string, g *pkgmodels.Graph) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graphs[id] = g
}

// PutTrigger registers a trigger row; a test helper.
func (m *MemoryStore) PutTrigger(row *models.TriggerRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers[row.ID.String()] = row
}

func (m *MemoryStore) GetGraph(_ context.Context, workflowID string) (*pkgmodels.Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.graphs[workflowID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "workflow not found: "+workflowID)
	}
	return g, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, _, _ string) (string, error) {
	return newID(), nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, e pkgmodels.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var maxSeq int64
	for _, prev := range m.events[e.SessionID] {
		if prev.Seq > maxSeq {
			maxSeq = prev.Seq
		}
	}
	e.Seq = maxSeq + 1
	m.events[e.SessionID] = append(m.events[e.SessionID], e)
	return nil
}

func (m *MemoryStore) GetTrigger(_ context.Context, triggerID string) (*models.TriggerRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.triggers[triggerID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "trigger not found: "+triggerID)
	}
	return row, nil
}

func (m *MemoryStore) ListEnabledTriggers(_ context.Context) ([]*models.TriggerRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TriggerRow
	for _, row := range m.triggers {
		if row.Enabled {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *MemoryStore) RecordTriggerFired(_ context.Context, triggerID, runID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.triggers[triggerID]
	if !ok {
		return "", apperr.New(apperr.NotFound, "trigger not found: "+triggerID)
	}
	row.FireCount++
	now := time.Now().UTC()
	row.LastFired = &now

	logID := newID()
	m.logs[logID] = &models.TriggerLogRow{
		RunID:   runID,
		FiredAt: now,
		Status:  "fired",
	}
	return logID, nil
}

func (m *MemoryStore) UpdateTriggerLogStatus(_ context.Context, logID, status string, metadata map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.logs[logID]
	if !ok {
		return apperr.New(apperr.NotFound, "trigger log not found: "+logID)
	}
	row.Status = status
	b, _ := toJSONB(metadata)
	row.MetadataJSON = b
	return nil
}

func toJSONB(m map[string]interface{}) (models.JSONB, error) {
	out := make(models.JSONB, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

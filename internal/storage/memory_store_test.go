package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-studio/workflow-core/internal/apperr"
	storagemodels "github.com/ai-studio/workflow-core/internal/storage/models"
	"github.com/ai-studio/workflow-core/pkg/models"
)

func TestMemoryStore_GetGraph(t *testing.T) {
	store := NewMemoryStore()
	g := &models.Graph{Nodes: []*models.Node{{ID: "in", Type: models.NodeInput}}}
	store.PutGraph("wf-1", g)

	got, err := store.GetGraph(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Same(t, g, got)
}

func TestMemoryStore_GetGraphMissingReturnsNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetGraph(context.Background(), "missing")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestMemoryStore_CreateSessionReturnsDistinctIDs(t *testing.T) {
	store := NewMemoryStore()
	a, err := store.CreateSession(context.Background(), "wf-1", "")
	require.NoError(t, err)
	b, err := store.CreateSession(context.Background(), "wf-1", "")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestMemoryStore_AppendEvent(t *testing.T) {
	store := NewMemoryStore()
	err := store.AppendEvent(context.Background(), models.Event{SessionID: "sess-1", Type: models.EventNodeCompleted})
	require.NoError(t, err)
	assert.Len(t, store.events["sess-1"], 1)
}

func TestMemoryStore_GetTriggerAndListEnabled(t *testing.T) {
	store := NewMemoryStore()
	id := uuid.New()
	store.PutTrigger(&storagemodels.TriggerRow{ID: id, TriggerType: "webhook", Enabled: true})

	row, err := store.GetTrigger(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, "webhook", row.TriggerType)

	enabled, err := store.ListEnabledTriggers(context.Background())
	require.NoError(t, err)
	assert.Len(t, enabled, 1)
}

func TestMemoryStore_ListEnabledTriggersExcludesDisabled(t *testing.T) {
	store := NewMemoryStore()
	store.PutTrigger(&storagemodels.TriggerRow{ID: uuid.New(), Enabled: false})
	store.PutTrigger(&storagemodels.TriggerRow{ID: uuid.New(), Enabled: true})

	enabled, err := store.ListEnabledTriggers(context.Background())
	require.NoError(t, err)
	assert.Len(t, enabled, 1)
}

func TestMemoryStore_GetTriggerMissingReturnsNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetTrigger(context.Background(), uuid.New().String())
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestMemoryStore_RecordTriggerFiredIncrementsCountAndLogs(t *testing.T) {
	store := NewMemoryStore()
	id := uuid.New()
	store.PutTrigger(&storagemodels.TriggerRow{ID: id, Enabled: true})

	logID, err := store.RecordTriggerFired(context.Background(), id.String(), "run-1")
	require.NoError(t, err)
	assert.NotEmpty(t, logID)

	row, err := store.GetTrigger(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.FireCount)
	require.NotNil(t, row.LastFired)
}

func TestMemoryStore_RecordTriggerFiredUnknownTriggerErrors(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.RecordTriggerFired(context.Background(), uuid.New().String(), "run-1")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestMemoryStore_UpdateTriggerLogStatus(t *testing.T) {
	store := NewMemoryStore()
	id := uuid.New()
	store.PutTrigger(&storagemodels.TriggerRow{ID: id, Enabled: true})
	logID, err := store.RecordTriggerFired(context.Background(), id.String(), "run-1")
	require.NoError(t, err)

	err = store.UpdateTriggerLogStatus(context.Background(), logID, "completed", map[string]interface{}{"duration_ms": 42})
	require.NoError(t, err)
	assert.Equal(t, "completed", store.logs[logID].Status)
	assert.Equal(t, 42, store.logs[logID].MetadataJSON["duration_ms"])
}

func TestMemoryStore_UpdateTriggerLogStatusUnknownLogErrors(t *testing.T) {
	store := NewMemoryStore()
	err := store.UpdateTriggerLogStatus(context.Background(), "missing-log", "completed", nil)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

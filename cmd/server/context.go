package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/internal/observer"
	"github.com/ai-studio/workflow-core/internal/sidecar"
	"github.com/ai-studio/workflow-core/internal/storage"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// newRunContext builds a fresh executor.Context for one engine.Run call,
// wiring event emission to both the process-wide observer bus and (for
// non-ephemeral runs) the durable event log.
func newRunContext(runID, sessionID string, ephemeral bool, sc *sidecar.Client, store storage.Store, events *observer.Manager, logger zerolog.Logger) *exec.Context {
	var seq int64
	ec := &exec.Context{
		Settings:    map[string]interface{}{},
		NodeOutputs: map[string]interface{}{},
		SeqCounter:  &seq,
		Visited:     xsync.NewMapOf[string, bool](),
		RunID:       runID,
		SessionID:   sessionID,
		Ephemeral:   ephemeral,
		Sidecar:     sc,
		LoadGraph:   store.GetGraph,
	}
	ec.Emit = func(eventType string, payload map[string]interface{}) {
		runID := ec.RunID
		e := models.Event{
			EventID:   uuid.New().String(),
			Type:      models.EventType(eventType),
			Timestamp: time.Now(),
			SessionID: ec.SessionID,
			Source:    models.EventSource,
			Seq:       ec.NextSeq(),
			Payload:   payload,
			RunID:     &runID,
		}
		if events != nil {
			events.Notify(e)
		}
		if !ephemeral && sessionID != "" {
			if err := store.AppendEvent(context.Background(), e); err != nil {
				logger.Error().Err(err).Msg("failed to append event")
			}
		}
	}
	return ec
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/ai-studio/workflow-core/internal/apperr"
	"github.com/ai-studio/workflow-core/internal/storage/models"
	pkgmodels "github.com/ai-studio/workflow-core/pkg/models"
)

// BunStore implements Store over a *bun.DB connection, with short-lived
// queries per operation and database errors wrapped into the "database"
// apperr.Kind.
type BunStore struct {
	db *bun.DB
}

// NewBunStore wraps an existing *bun.DB (construction/driver selection is
// the caller's job, in cmd/server/main.go, via pgdriver+pgdialect).
func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

func (s *BunStore) GetGraph(ctx context.Context, workflowID string) (*pkgmodels.Graph, error) {
	id, err := uuid.Parse(workflowID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "invalid workflow id", err)
	}

	row := new(models.WorkflowRow)
	err = s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.NotFound, "workflow not found: "+workflowID)
		}
		return nil, apperr.Wrap(apperr.Database, "select workflow", err)
	}

	b, err := json.Marshal(row.GraphJSON)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "marshal graph_json", err)
	}
	var g pkgmodels.Graph
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "graph_json is not a valid graph", err)
	}
	g.ID = row.ID.String()
	g.Name = row.Name
	return &g, nil
}

func (s *BunStore) CreateSession(ctx context.Context, agentID, title string) (string, error) {
	row := &models.SessionRow{
		Title:     title,
		Status:    "running",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if agentID != "" {
		if aid, err := uuid.Parse(agentID); err == nil {
			row.AgentID = &aid
		}
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return "", apperr.Wrap(apperr.Database, "insert session", err)
	}
	return row.ID.String(), nil
}

func (s *BunStore) AppendEvent(ctx context.Context, e pkgmodels.Event) error {
	sessionID, err := uuid.Parse(e.SessionID)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "invalid session id", err)
	}

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal event payload", err)
	}
	var jb models.JSONB
	_ = json.Unmarshal(payload, &jb)

	var maxSeq sql.NullInt64
	if err := s.db.NewSelect().Model((*models.EventRow)(nil)).
		ColumnExpr("MAX(seq)").
		Where("session_id = ?", sessionID).
		Scan(ctx, &maxSeq); err != nil {
		return apperr.Wrap(apperr.Database, "select max event seq", err)
	}

	row := &models.EventRow{
		EventID:     uuid.MustParse(orNewUUID(e.EventID)),
		Type:        string(e.Type),
		Timestamp:   e.Timestamp,
		SessionID:   sessionID,
		Source:      e.Source,
		Seq:         maxSeq.Int64 + 1,
		PayloadJSON: jb,
		CostUSD:     e.CostUSD,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return apperr.Wrap(apperr.Database, "insert event", err)
	}
	return nil
}

func orNewUUID(s string) string {
	if s == "" {
		return uuid.New().String()
	}
	if _, err := uuid.Parse(s); err != nil {
		return uuid.New().String()
	}
	return s
}

func (s *BunStore) GetTrigger(ctx context.Context, triggerID string) (*models.TriggerRow, error) {
	id, err := uuid.Parse(triggerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "invalid trigger id", err)
	}
	row := new(models.TriggerRow)
	if err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.NotFound, "trigger not found: "+triggerID)
		}
		return nil, apperr.Wrap(apperr.Database, "select trigger", err)
	}
	return row, nil
}

func (s *BunStore) ListEnabledTriggers(ctx context.Context) ([]*models.TriggerRow, error) {
	var rows []*models.TriggerRow
	if err := s.db.NewSelect().Model(&rows).Where("enabled = ?", true).Scan(ctx); err != nil {
		return nil, apperr.Wrap(apperr.Database, "list enabled triggers", err)
	}
	return rows, nil
}

func (s *BunStore) RecordTriggerFired(ctx context.Context, triggerID, runID string) (string, error) {
	id, err := uuid.Parse(triggerID)
	if err != nil {
		return "", apperr.Wrap(apperr.Validation, "invalid trigger id", err)
	}

	var logID string
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.NewUpdate().Model((*models.TriggerRow)(nil)).
			Set("fire_count = fire_count + 1").
			Set("last_fired = ?", now).
			Where("id = ?", id).Exec(ctx); err != nil {
			return apperr.Wrap(apperr.Database, "bump trigger fire_count", err)
		}

		log := &models.TriggerLogRow{
			TriggerID: id,
			RunID:     runID,
			FiredAt:   now,
			Status:    "fired",
		}
		if _, err := tx.NewInsert().Model(log).Exec(ctx); err != nil {
			return apperr.Wrap(apperr.Database, "insert trigger_log", err)
		}
		logID = log.ID.String()
		return nil
	})
	if err != nil {
		return "", err
	}
	return logID, nil
}

func (s *BunStore) UpdateTriggerLogStatus(ctx context.Context, logID, status string, metadata map[string]interface{}) error {
	id, err := uuid.Parse(logID)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "invalid trigger log id", err)
	}
	b, _ := json.Marshal(metadata)
	var jb models.JSONB
	_ = json.Unmarshal(b, &jb)

	if _, err := s.db.NewUpdate().Model((*models.TriggerLogRow)(nil)).
		Set("status = ?", status).
		Set("metadata_json = ?", jb).
		Where("id = ?", id).Exec(ctx); err != nil {
		return apperr.Wrap(apperr.Database, "update trigger_log status", err)
	}
	return nil
}

// Package models holds the bun.Model-tagged row types for the five logical
// tables the workflow core owns directly: workflows, sessions,
// events, triggers, trigger_log.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// JSONB is a generic JSONB-column value, round-tripped through
// encoding/json for both the driver.Valuer and sql.Scanner sides.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONB)
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if s, ok2 := value.(string); ok2 {
			b = []byte(s)
		} else {
			return errors.New("JSONB: unsupported scan source")
		}
	}
	if len(b) == 0 {
		*j = make(JSONB)
		return nil
	}
	return json.Unmarshal(b, j)
}

// WorkflowRow is the `workflows` table: graph_json is the engine's input.
type WorkflowRow struct {
	bun.BaseModel `bun:"table:workflows,alias:w"`

	ID         uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	Name       string    `bun:"name,notnull"`
	GraphJSON  JSONB     `bun:"graph_json,type:jsonb,notnull"`
	IsArchived bool      `bun:"is_archived,notnull,default:false"`
	AgentID    *uuid.UUID `bun:"agent_id,type:uuid"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// SessionRow is the `sessions` table, created per execution.
type SessionRow struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID        uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	AgentID   *uuid.UUID `bun:"agent_id,type:uuid"`
	Title     string     `bun:"title"`
	Status    string     `bun:"status,notnull,default:'running'"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// EventRow is the `events` append-only audit log. Seq is monotonically
// increasing per session, computed as MAX(seq)+1 at insert time.
type EventRow struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	EventID     uuid.UUID `bun:"event_id,pk,type:uuid,default:uuid_generate_v4()"`
	Type        string    `bun:"type,notnull"`
	Timestamp   time.Time `bun:"ts,notnull,default:current_timestamp"`
	SessionID   uuid.UUID `bun:"session_id,notnull,type:uuid"`
	Source      string    `bun:"source,notnull"`
	Seq         int64     `bun:"seq,notnull"`
	PayloadJSON JSONB     `bun:"payload_json,type:jsonb"`
	CostUSD     *float64  `bun:"cost_usd"`
}

// TriggerRow is the `triggers` table: one row per armed webhook or cron
// schedule.
type TriggerRow struct {
	bun.BaseModel `bun:"table:triggers,alias:t"`

	ID          uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	WorkflowID  uuid.UUID `bun:"workflow_id,notnull,type:uuid"`
	TriggerType string    `bun:"trigger_type,notnull"` // "webhook" | "cron"
	ConfigJSON  JSONB     `bun:"config_json,type:jsonb,notnull"`
	Enabled     bool      `bun:"enabled,notnull,default:true"`
	LastFired   *time.Time `bun:"last_fired"`
	FireCount   int64     `bun:"fire_count,notnull,default:0"`
}

// TriggerLogRow is the `trigger_log` table: one row per fire attempt.
type TriggerLogRow struct {
	bun.BaseModel `bun:"table:trigger_log,alias:tl"`

	ID           uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	TriggerID    uuid.UUID `bun:"trigger_id,notnull,type:uuid"`
	RunID        string    `bun:"run_id,notnull"`
	FiredAt      time.Time `bun:"fired_at,notnull,default:current_timestamp"`
	Status       string    `bun:"status,notnull"` // fired | completed | error
	MetadataJSON JSONB     `bun:"metadata_json,type:jsonb"`
}

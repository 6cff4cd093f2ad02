package trigger

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ai-studio/workflow-core/internal/apperr"
	storagemodels "github.com/ai-studio/workflow-core/internal/storage/models"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// cronEntry is one armed cron trigger. robfig/cron is used only to parse
// the expression (cronParser.Parse); the tick/dedup loop itself is
// hand-rolled, not cron.Cron's own scheduler goroutine.
type cronEntry struct {
	TriggerID       string
	WorkflowID      string
	Schedule        cron.Schedule
	Location        *time.Location
	MaxConcurrent   int
	lastFiredMinute int64
	activeRuns      int32
	fireCount       int64
}

// ArmCron registers a cron entry under the cron map's mutex.
func (s *Supervisor) ArmCron(entry *cronEntry) {
	s.cronMu.Lock()
	s.cronEntries[entry.TriggerID] = entry
	s.cronMu.Unlock()
}

// DisarmCron removes a cron entry.
func (s *Supervisor) DisarmCron(triggerID string) {
	s.cronMu.Lock()
	delete(s.cronEntries, triggerID)
	s.cronMu.Unlock()
}

func (s *Supervisor) armCronFromConfig(t *storagemodels.TriggerRow) error {
	entry, err := parseCronConfig(t.ID.String(), t.WorkflowID.String(), t.ConfigJSON)
	if err != nil {
		return err
	}
	s.ArmCron(entry)
	return nil
}

func parseCronConfig(triggerID, workflowID string, cfg map[string]interface{}) (*cronEntry, error) {
	expr, _ := cfg["expression"].(string)
	if expr == "" {
		return nil, apperr.New(apperr.Validation, "cron trigger config missing expression")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "cron trigger: invalid expression", err)
	}

	loc := time.UTC
	if tz, ok := cfg["timezone"].(string); ok && tz != "" {
		if parsed, err := time.LoadLocation(tz); err == nil {
			loc = parsed
		}
	}

	maxConcurrent := 1
	if mc, ok := cfg["max_concurrent"].(float64); ok && mc > 0 {
		maxConcurrent = int(mc)
	}

	return &cronEntry{
		TriggerID:       triggerID,
		WorkflowID:      workflowID,
		Schedule:        schedule,
		Location:        loc,
		MaxConcurrent:   maxConcurrent,
		lastFiredMinute: -1,
	}, nil
}

// startCronLoop spawns the single process-wide 1-second tick task.
func (s *Supervisor) startCronLoop() {
	s.cronMu.Lock()
	if s.cronCancel != nil {
		s.cronMu.Unlock()
		return
	}
	cancel := make(chan struct{})
	s.cronCancel = cancel
	s.cronMu.Unlock()

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-cancel:
				return
			case <-ticker.C:
				s.tickCron()
			}
		}
	}()
}

func (s *Supervisor) tickCron() {
	now := time.Now().UTC()
	currentMinute := now.Unix() / 60

	s.cronMu.Lock()
	entries := make([]*cronEntry, 0, len(s.cronEntries))
	for _, e := range s.cronEntries {
		entries = append(entries, e)
	}
	s.cronMu.Unlock()

	for _, entry := range entries {
		s.maybeFireCron(entry, now, currentMinute)
	}
}

func (s *Supervisor) maybeFireCron(entry *cronEntry, now time.Time, currentMinute int64) {
	if atomic.LoadInt64(&entry.lastFiredMinute) == currentMinute {
		return
	}

	local := now.In(entry.Location)
	due := false
	for t := entry.Schedule.Next(local.Add(-60 * time.Second)); !t.After(local.Add(time.Minute)); t = entry.Schedule.Next(t) {
		if t.Unix()/60 == currentMinute {
			due = true
			break
		}
		if t.After(local) {
			break
		}
	}
	if !due {
		return
	}

	if atomic.LoadInt32(&entry.activeRuns) >= int32(entry.MaxConcurrent) {
		return
	}

	atomic.StoreInt64(&entry.lastFiredMinute, currentMinute)
	atomic.AddInt64(&entry.fireCount, 1)
	atomic.AddInt32(&entry.activeRuns, 1)

	go func() {
		defer atomic.AddInt32(&entry.activeRuns, -1)
		s.fireCronEntry(entry, now)
	}()
}

func (s *Supervisor) fireCronEntry(entry *cronEntry, firedAt time.Time) {
	ctx := context.Background()
	runID := newRunID()
	sessionID, err := s.store.CreateSession(ctx, "", "cron:"+entry.TriggerID)
	if err != nil {
		s.logger.Error().Err(err).Msg("cron trigger: failed to create session")
		return
	}
	logID, err := s.store.RecordTriggerFired(ctx, entry.TriggerID, runID)
	if err != nil {
		s.logger.Error().Err(err).Msg("cron trigger: failed to record fire")
	}

	inputs := map[string]interface{}{
		"__cron_fired_at":  firedAt.Format(time.RFC3339),
		"__cron_trigger_id": entry.TriggerID,
	}

	result, runErr := s.run(ctx, runID, sessionID, entry.WorkflowID, inputs, false)
	s.finishTriggerLog(ctx, logID, result, runErr)
}

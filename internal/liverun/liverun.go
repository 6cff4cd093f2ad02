// Package liverun implements the live run manager: at most
// one live (ephemeral, repeating) run per workflow, paced by a
// cancellation-checked sleep and a configurable skip/stop
// consecutive-error policy.
package liverun

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ai-studio/workflow-core/internal/apperr"
	"github.com/ai-studio/workflow-core/internal/observer"
	"github.com/ai-studio/workflow-core/pkg/models"
)

const (
	sleepSliceMS       = 100
	maxConsecutiveErrs = 5
)

// RunFunc executes one ephemeral engine run.
type RunFunc func(ctx context.Context, runID, sessionID, workflowID string, inputs map[string]interface{}) (*models.RunResult, error)

// CreateSessionFunc allocates a session row for a live run's lifetime.
type CreateSessionFunc func(ctx context.Context, workflowID string) (string, error)

// Options configures one live run.
type Options struct {
	WorkflowID  string
	Inputs      map[string]interface{}
	IntervalMS  int
	MaxIterations int // 0 means unbounded (runs until Stop or error policy)
	ErrorPolicy string // "skip" | "stop"
}

type liveRun struct {
	cancel int32 // atomic bool
}

// Manager owns at most one active liveRun per workflow id.
type Manager struct {
	mu     sync.Mutex
	active map[string]*liveRun

	run          RunFunc
	createSession CreateSessionFunc
	events       *observer.Manager
	logger       zerolog.Logger
}

// New builds a Manager.
func New(run RunFunc, createSession CreateSessionFunc, events *observer.Manager, logger zerolog.Logger) *Manager {
	return &Manager{
		active:        map[string]*liveRun{},
		run:           run,
		createSession: createSession,
		events:        events,
		logger:        logger.With().Str("component", "liverun").Logger(),
	}
}

// Start acquires-or-rejects the slot for opts.WorkflowID and spawns the
// loop task. Returns the session id for the live run, or an error if a
// live run is already active for that workflow.
func (m *Manager) Start(ctx context.Context, opts Options) (string, error) {
	m.mu.Lock()
	if _, exists := m.active[opts.WorkflowID]; exists {
		m.mu.Unlock()
		return "", apperr.New(apperr.Workflow, "a live run is already active for this workflow")
	}
	lr := &liveRun{}
	m.active[opts.WorkflowID] = lr
	m.mu.Unlock()

	sessionID, err := m.createSession(ctx, opts.WorkflowID)
	if err != nil {
		m.mu.Lock()
		delete(m.active, opts.WorkflowID)
		m.mu.Unlock()
		return "", apperr.Wrap(apperr.Database, "live run: create session", err)
	}

	go m.loop(context.Background(), opts, lr, sessionID)
	return sessionID, nil
}

// Stop signals the active live run for workflowID to cancel at its next
// checkpoint. Returns false if no live run is active for that workflow.
func (m *Manager) Stop(workflowID string) bool {
	m.mu.Lock()
	lr, exists := m.active[workflowID]
	m.mu.Unlock()
	if !exists {
		return false
	}
	atomic.StoreInt32(&lr.cancel, 1)
	return true
}

func (m *Manager) loop(ctx context.Context, opts Options, lr *liveRun, sessionID string) {
	defer func() {
		m.mu.Lock()
		delete(m.active, opts.WorkflowID)
		m.mu.Unlock()
	}()

	m.emit(models.EventLiveStarted, sessionID, map[string]interface{}{
		"workflow_id": opts.WorkflowID, "session_id": sessionID,
	})

	reason := "max_iterations"
	consecutiveErrs := 0
	i := 0
	for opts.MaxIterations <= 0 || i < opts.MaxIterations {
		if atomic.LoadInt32(&lr.cancel) == 1 {
			reason = "user_stopped"
			break
		}

		runID := uuid.New().String()
		result, err := m.run(ctx, runID, sessionID, opts.WorkflowID, opts.Inputs)

		if err != nil || (result != nil && result.Failed) {
			consecutiveErrs++
			m.emit(models.EventLiveIterationError, sessionID, map[string]interface{}{
				"workflow_id": opts.WorkflowID, "iteration": i, "error": errMessage(err, result),
			})

			if consecutiveErrs >= maxConsecutiveErrs {
				reason = "consecutive_errors"
				break
			}
			if opts.ErrorPolicy == "stop" {
				reason = "error_policy_stop"
				break
			}
			// policy "skip": fall through to pacing and continue.
		} else {
			consecutiveErrs = 0
			m.emit(models.EventLiveIterationDone, sessionID, map[string]interface{}{
				"workflow_id": opts.WorkflowID, "iteration": i, "outputs": result.Outputs,
			})
		}

		i++
		if opts.MaxIterations > 0 && i >= opts.MaxIterations {
			reason = "max_iterations"
			break
		}
		if !m.pace(opts.IntervalMS, lr) {
			reason = "user_stopped"
			break
		}
	}

	m.emit(models.EventLiveStopped, sessionID, map[string]interface{}{
		"workflow_id": opts.WorkflowID, "reason": reason,
	})
}

// pace sleeps opts interval in 100ms slices, returning false the moment
// cancellation is observed so the loop can stop early instead of
// completing the full interval.
func (m *Manager) pace(intervalMS int, lr *liveRun) bool {
	remaining := intervalMS
	for remaining > 0 {
		slice := sleepSliceMS
		if remaining < slice {
			slice = remaining
		}
		time.Sleep(time.Duration(slice) * time.Millisecond)
		remaining -= slice
		if atomic.LoadInt32(&lr.cancel) == 1 {
			return false
		}
	}
	return true
}

func (m *Manager) emit(eventType models.EventType, sessionID string, payload map[string]interface{}) {
	if m.events == nil {
		return
	}
	m.events.Notify(models.Event{
		EventID:   uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Source:    models.EventSource,
		Seq:       m.events.NextSeq(),
		Payload:   payload,
	})
}

func errMessage(err error, result *models.RunResult) string {
	if err != nil {
		return err.Error()
	}
	if result != nil && result.Err != nil {
		return result.Err.Error()
	}
	return "run failed"
}

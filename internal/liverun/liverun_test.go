package liverun

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-studio/workflow-core/internal/observer"
	"github.com/ai-studio/workflow-core/pkg/models"
	"github.com/rs/zerolog"
)

func collectEvents(events *observer.Manager) *[]models.Event {
	collected := &[]models.Event{}
	var mu sync.Mutex
	events.Register(&observer.Observer{
		Name: "collector",
		OnEvent: func(e models.Event) {
			mu.Lock()
			defer mu.Unlock()
			*collected = append(*collected, e)
		},
	})
	return collected
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition not met before deadline")
}

func TestManager_StartRejectsSecondConcurrentRunForSameWorkflow(t *testing.T) {
	block := make(chan struct{})
	run := func(ctx context.Context, runID, sessionID, workflowID string, inputs map[string]interface{}) (*models.RunResult, error) {
		<-block
		return &models.RunResult{}, nil
	}
	createSession := func(ctx context.Context, workflowID string) (string, error) { return "session-1", nil }

	m := New(run, createSession, observer.NewManager(), zerolog.Nop())
	_, err := m.Start(context.Background(), Options{WorkflowID: "wf-1", IntervalMS: 1000, MaxIterations: 1})
	require.NoError(t, err)

	_, err = m.Start(context.Background(), Options{WorkflowID: "wf-1", IntervalMS: 1000, MaxIterations: 1})
	assert.Error(t, err)

	close(block)
}

func TestManager_StartAllowsDifferentWorkflowsConcurrently(t *testing.T) {
	run := func(ctx context.Context, runID, sessionID, workflowID string, inputs map[string]interface{}) (*models.RunResult, error) {
		return &models.RunResult{}, nil
	}
	createSession := func(ctx context.Context, workflowID string) (string, error) { return "session-" + workflowID, nil }

	m := New(run, createSession, observer.NewManager(), zerolog.Nop())
	_, err := m.Start(context.Background(), Options{WorkflowID: "wf-a", IntervalMS: 0, MaxIterations: 1})
	require.NoError(t, err)
	_, err = m.Start(context.Background(), Options{WorkflowID: "wf-b", IntervalMS: 0, MaxIterations: 1})
	require.NoError(t, err)
}

func TestManager_CompletesAfterMaxIterationsAndEmitsLifecycleEvents(t *testing.T) {
	events := observer.NewManager()
	collected := collectEvents(events)

	var calls int32
	run := func(ctx context.Context, runID, sessionID, workflowID string, inputs map[string]interface{}) (*models.RunResult, error) {
		calls++
		return &models.RunResult{Outputs: map[string]interface{}{"ok": true}}, nil
	}
	createSession := func(ctx context.Context, workflowID string) (string, error) { return "session-1", nil }

	m := New(run, createSession, events, zerolog.Nop())
	_, err := m.Start(context.Background(), Options{WorkflowID: "wf-1", IntervalMS: 0, MaxIterations: 3})
	require.NoError(t, err)

	waitFor(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		_, active := m.active["wf-1"]
		return !active
	})

	var types []models.EventType
	for _, e := range *collected {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, models.EventLiveStarted)
	assert.Contains(t, types, models.EventLiveStopped)
	assert.Contains(t, types, models.EventLiveIterationDone)
}

func TestManager_StopCancelsLoopBeforeMaxIterations(t *testing.T) {
	events := observer.NewManager()
	m := New(
		func(ctx context.Context, runID, sessionID, workflowID string, inputs map[string]interface{}) (*models.RunResult, error) {
			return &models.RunResult{}, nil
		},
		func(ctx context.Context, workflowID string) (string, error) { return "session-1", nil },
		events,
		zerolog.Nop(),
	)

	_, err := m.Start(context.Background(), Options{WorkflowID: "wf-1", IntervalMS: 5000, MaxIterations: 0})
	require.NoError(t, err)

	waitFor(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		_, active := m.active["wf-1"]
		return active
	})

	stopped := m.Stop("wf-1")
	assert.True(t, stopped)

	waitFor(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		_, active := m.active["wf-1"]
		return !active
	})
}

func TestManager_StopOnUnknownWorkflowReturnsFalse(t *testing.T) {
	m := New(nil, nil, observer.NewManager(), zerolog.Nop())
	assert.False(t, m.Stop("never-started"))
}

func TestManager_ConsecutiveErrorsStopTheLoop(t *testing.T) {
	events := observer.NewManager()
	collected := collectEvents(events)

	run := func(ctx context.Context, runID, sessionID, workflowID string, inputs map[string]interface{}) (*models.RunResult, error) {
		return nil, assert.AnError
	}
	createSession := func(ctx context.Context, workflowID string) (string, error) { return "session-1", nil }

	m := New(run, createSession, events, zerolog.Nop())
	_, err := m.Start(context.Background(), Options{WorkflowID: "wf-1", IntervalMS: 0, MaxIterations: 0, ErrorPolicy: "skip"})
	require.NoError(t, err)

	waitFor(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		_, active := m.active["wf-1"]
		return !active
	})

	found := false
	for _, e := range *collected {
		if e.Type == models.EventLiveStopped && e.Payload["reason"] == "consecutive_errors" {
			found = true
		}
	}
	assert.True(t, found, "expected a live.stopped event with reason=consecutive_errors")
}

func TestManager_ErrorPolicyStopEndsLoopOnFirstError(t *testing.T) {
	events := observer.NewManager()
	collected := collectEvents(events)

	run := func(ctx context.Context, runID, sessionID, workflowID string, inputs map[string]interface{}) (*models.RunResult, error) {
		return nil, assert.AnError
	}
	createSession := func(ctx context.Context, workflowID string) (string, error) { return "session-1", nil }

	m := New(run, createSession, events, zerolog.Nop())
	_, err := m.Start(context.Background(), Options{WorkflowID: "wf-1", IntervalMS: 0, MaxIterations: 0, ErrorPolicy: "stop"})
	require.NoError(t, err)

	waitFor(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		_, active := m.active["wf-1"]
		return !active
	})

	found := false
	for _, e := range *collected {
		if e.Type == models.EventLiveStopped && e.Payload["reason"] == "error_policy_stop" {
			found = true
		}
	}
	assert.True(t, found, "expected a live.stopped event with reason=error_policy_stop")
}

func TestManager_CreateSessionFailureReleasesSlot(t *testing.T) {
	m := New(
		func(ctx context.Context, runID, sessionID, workflowID string, inputs map[string]interface{}) (*models.RunResult, error) {
			return &models.RunResult{}, nil
		},
		func(ctx context.Context, workflowID string) (string, error) { return "", assert.AnError },
		observer.NewManager(),
		zerolog.Nop(),
	)

	_, err := m.Start(context.Background(), Options{WorkflowID: "wf-1", IntervalMS: 0, MaxIterations: 1})
	require.Error(t, err)

	// A fresh manager starts the same workflow id normally; the failed
	// manager's own slot release is checked below.
	m2 := New(
		func(ctx context.Context, runID, sessionID, workflowID string, inputs map[string]interface{}) (*models.RunResult, error) {
			return &models.RunResult{}, nil
		},
		func(ctx context.Context, workflowID string) (string, error) { return "session-1", nil },
		observer.NewManager(),
		zerolog.Nop(),
	)
	_, err = m2.Start(context.Background(), Options{WorkflowID: "wf-1", IntervalMS: 0, MaxIterations: 1})
	require.NoError(t, err)

	m.mu.Lock()
	_, stillActive := m.active["wf-1"]
	m.mu.Unlock()
	assert.False(t, stillActive)
}

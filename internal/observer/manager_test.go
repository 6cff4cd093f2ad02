package observer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-studio/workflow-core/pkg/models"
)

func TestManager_NotifyFansOutToAllObservers(t *testing.T) {
	m := NewManager()

	var mu sync.Mutex
	var got []string

	m.Register(&Observer{Name: "a", OnEvent: func(e models.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "a:"+string(e.Type))
	}})
	m.Register(&Observer{Name: "b", OnEvent: func(e models.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "b:"+string(e.Type))
	}})

	m.Notify(models.Event{Type: models.EventNodeCompleted})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestManager_FilterExcludesNonMatchingEvents(t *testing.T) {
	m := NewManager()
	var mu sync.Mutex
	called := false

	m.Register(&Observer{
		Name:   "filtered",
		Filter: NewEventTypeFilter(models.EventNodeCompleted),
		OnEvent: func(e models.Event) {
			mu.Lock()
			defer mu.Unlock()
			called = true
		},
	})

	m.Notify(models.Event{Type: models.EventNodeSkipped})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, called, "non-matching event should not reach a filtered observer")
}

func TestManager_UnregisterRemovesObserver(t *testing.T) {
	m := NewManager()
	var mu sync.Mutex
	called := false

	m.Register(&Observer{Name: "x", OnEvent: func(models.Event) {
		mu.Lock()
		defer mu.Unlock()
		called = true
	}})
	m.Unregister("x")
	m.Notify(models.Event{Type: models.EventNodeCompleted})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, called)
}

func TestManager_PanickingObserverDoesNotAffectOthers(t *testing.T) {
	m := NewManager()
	var mu sync.Mutex
	safeCalled := false

	m.Register(&Observer{Name: "panics", OnEvent: func(models.Event) {
		panic("boom")
	}})
	m.Register(&Observer{Name: "safe", OnEvent: func(models.Event) {
		mu.Lock()
		defer mu.Unlock()
		safeCalled = true
	}})

	m.Notify(models.Event{Type: models.EventNodeCompleted})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return safeCalled
	}, time.Second, 10*time.Millisecond)
}

func TestManager_NextSeqIsMonotonic(t *testing.T) {
	m := NewManager()
	first := m.NextSeq()
	second := m.NextSeq()
	assert.Greater(t, second, first)
}

package observer

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ai-studio/workflow-core/pkg/models"
)

// Manager registers Observers and fans out Events to them asynchronously,
// with a monotonic per-manager sequence counter so every Notify call
// can stamp Event.Seq without the caller tracking it.
type Manager struct {
	mu         sync.RWMutex
	observers  []*Observer
	logger     zerolog.Logger
	bufferSize int
	seq        int64
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// WithLogger overrides the manager's logger.
func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithBufferSize sets the channel buffer used for async notification
// (currently informational; notification is goroutine-per-event).
func WithBufferSize(n int) ManagerOption {
	return func(m *Manager) { m.bufferSize = n }
}

// NewManager creates an observer Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{logger: zerolog.Nop(), bufferSize: 64}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds an Observer.
func (m *Manager) Register(o *Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Unregister removes an Observer by name.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	filtered := m.observers[:0]
	for _, o := range m.observers {
		if o.Name != name {
			filtered = append(filtered, o)
		}
	}
	m.observers = filtered
}

// NextSeq returns the next monotonically increasing sequence number for a
// given run. Callers scope their own sequence per session; this manager
// simply offers a process-wide fallback counter for emitters that don't
// track their own.
func (m *Manager) NextSeq() int64 {
	return atomic.AddInt64(&m.seq, 1)
}

// Notify fans e out to every matching Observer on its own goroutine,
// recovering panics so one broken observer cannot take down a run.
func (m *Manager) Notify(e models.Event) {
	m.mu.RLock()
	observers := make([]*Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.RUnlock()

	for _, o := range observers {
		go m.notifyObserver(o, e)
	}
}

func (m *Manager) notifyObserver(o *Observer, e models.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Str("observer", o.Name).Msg("observer panicked")
		}
	}()

	if o.Filter != nil && !o.Filter.Match(e) {
		return
	}
	if o.OnEvent != nil {
		o.OnEvent(e)
	}
}

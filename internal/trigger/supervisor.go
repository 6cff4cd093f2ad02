// Package trigger implements the trigger supervisor: a
// loopback webhook HTTP server and a hand-rolled cron tick loop, both
// driving workflow runs through an injected RunFunc so this package never
// imports internal/engine directly. Route state lives in
// single-process in-memory maps rather than a Redis-backed store.
package trigger

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ai-studio/workflow-core/internal/apperr"
	"github.com/ai-studio/workflow-core/internal/observer"
	"github.com/ai-studio/workflow-core/internal/storage"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// RunFunc executes one workflow run. runID/sessionID are pre-allocated by
// the supervisor so trigger_log rows can reference them before the run
// itself produces any output.
type RunFunc func(ctx context.Context, runID, sessionID, workflowID string, inputs map[string]interface{}, ephemeral bool) (*models.RunResult, error)

// AuthConfig is one webhook route's authentication mode.
type AuthConfig struct {
	Mode   string // "none" | "token" | "hmac_sha256"
	Token  string // for "token"
	Secret string // for "hmac_sha256"
}

// WebhookRoute is one armed `/hook/<path>` endpoint.
type WebhookRoute struct {
	Path         string
	TriggerID    string
	WorkflowID   string
	Methods      map[string]bool // uppercased; empty means "any method"
	Auth         AuthConfig
	ResponseMode string // "immediate" | "wait"
	MaxPerMinute int
	AllowedIPs   []string // optional hardening supplement
}

// Supervisor owns the webhook route map, the loopback server handle, the
// cron entry map, and the cron tick task — one instance per process.
type Supervisor struct {
	mu       sync.Mutex
	routes   map[string]*WebhookRoute
	buckets  map[string]*tokenBucket
	server   *http.Server
	shutdown chan struct{}
	port     int

	cronMu      sync.Mutex
	cronEntries map[string]*cronEntry
	cronCancel  chan struct{}

	store     storage.Store
	run       RunFunc
	events    *observer.Manager
	logger    zerolog.Logger
	masterKey []byte
}

// New builds a Supervisor bound to port for its webhook server. masterKey
// seeds DeriveWebhookSecret for routes whose config omits an explicit
// hmac_sha256 secret; pass nil to require every such route to configure
// its own secret explicitly.
func New(store storage.Store, run RunFunc, events *observer.Manager, logger zerolog.Logger, port int, masterKey []byte) *Supervisor {
	return &Supervisor{
		routes:      map[string]*WebhookRoute{},
		buckets:     map[string]*tokenBucket{},
		cronEntries: map[string]*cronEntry{},
		store:       store,
		run:         run,
		events:      events,
		logger:      logger.With().Str("component", "trigger").Logger(),
		port:        port,
		masterKey:   masterKey,
	}
}

// Start loads every enabled trigger from the store and arms it. Called
// once at process startup.
func (s *Supervisor) Start(ctx context.Context) error {
	triggers, err := s.store.ListEnabledTriggers(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Database, "trigger supervisor: list enabled triggers", err)
	}
	for _, t := range triggers {
		switch t.TriggerType {
		case "webhook":
			if err := s.armWebhookFromConfig(t); err != nil {
				s.logger.Error().Err(err).Str("trigger_id", t.ID.String()).Msg("failed to arm webhook trigger at startup")
			}
		case "cron":
			if err := s.armCronFromConfig(t); err != nil {
				s.logger.Error().Err(err).Str("trigger_id", t.ID.String()).Msg("failed to arm cron trigger at startup")
			}
		}
	}
	s.startCronLoop()
	return nil
}

// Stop disarms the webhook server and cron loop.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.shutdown != nil {
		close(s.shutdown)
		s.shutdown = nil
	}
	s.mu.Unlock()

	s.cronMu.Lock()
	if s.cronCancel != nil {
		close(s.cronCancel)
		s.cronCancel = nil
	}
	s.cronMu.Unlock()
}

func newRunID() string { return uuid.New().String() }

// tokenBucket is a per-path continuous-refill rate limiter:
// capacity max_per_minute, refilled at max/60 tokens/second.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens per second
	last     time.Time
}

func newTokenBucket(maxPerMinute int) *tokenBucket {
	if maxPerMinute <= 0 {
		maxPerMinute = 60
	}
	return &tokenBucket{
		tokens:   float64(maxPerMinute),
		capacity: float64(maxPerMinute),
		rate:     float64(maxPerMinute) / 60.0,
		last:     time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.last).Seconds()
	b.last = now
	b.tokens += elapsed * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

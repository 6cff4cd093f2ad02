// Package httpapi is the REST surface for run dispatch and live-run
// control: one Handlers struct with constructor-injected dependencies,
// routed with a plain Go 1.22+
// net/http.ServeMux instead of a router framework — the
// surface here is narrow enough that a router framework buys nothing.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/ai-studio/workflow-core/internal/apperr"
	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/internal/liverun"
	"github.com/ai-studio/workflow-core/internal/observer"
	"github.com/ai-studio/workflow-core/internal/sidecar"
	"github.com/ai-studio/workflow-core/internal/storage"

	"github.com/ai-studio/workflow-core/pkg/models"
)

// Engine is the subset of internal/engine.Engine the handlers need; kept
// as an interface here so httpapi never imports internal/engine directly
// (engine already imports executor+models; httpapi sits above both).
type Engine interface {
	Run(ctx context.Context, g *models.Graph, inputs map[string]interface{}, ec *exec.Context) (*models.RunResult, error)
}

// Handlers bundles the dependencies every resource handler closes over.
type Handlers struct {
	Store   storage.Store
	Engine  Engine
	Sidecar *sidecar.Client
	Events  *observer.Manager
	Live    *liverun.Manager
	Logger  zerolog.Logger
}

// Mux builds the full routing table.
func (h *Handlers) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /ready", h.handleReady)
	mux.HandleFunc("POST /api/v1/workflows/{id}/run", h.handleRun)
	mux.HandleFunc("POST /api/v1/workflows/{id}/live/start", h.handleLiveStart)
	mux.HandleFunc("POST /api/v1/workflows/{id}/live/stop", h.handleLiveStop)
	return mux
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (h *Handlers) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready"})
}

// runRequest is the body of a one-shot or live run request.
type runRequest struct {
	Inputs        map[string]interface{} `json:"inputs"`
	Ephemeral     bool                   `json:"ephemeral"`
	IntervalMS    int                    `json:"interval_ms"`
	MaxIterations int                    `json:"max_iterations"`
	ErrorPolicy   string                 `json:"error_policy"`
}

func (h *Handlers) handleRun(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")

	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.New(apperr.Validation, "invalid request body"))
			return
		}
	}

	ctx := r.Context()
	g, err := h.Store.GetGraph(ctx, workflowID)
	if err != nil {
		writeError(w, err)
		return
	}

	sessionID := ""
	if !req.Ephemeral {
		sessionID, err = h.Store.CreateSession(ctx, "", "run:"+workflowID)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	ec := h.newExecContext(uuid.New().String(), sessionID, req.Ephemeral)
	result, err := h.Engine.Run(ctx, g, req.Inputs, ec)
	if err != nil {
		writeError(w, err)
		return
	}
	if result.Failed {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"failed_node_id": result.FailedNodeID,
			"error":          result.Err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"outputs":    result.Outputs,
		"usage":      result.Usage,
	})
}

func (h *Handlers) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.New(apperr.Validation, "invalid request body"))
			return
		}
	}
	if req.IntervalMS <= 0 {
		req.IntervalMS = 1000
	}
	if req.ErrorPolicy == "" {
		req.ErrorPolicy = "skip"
	}

	sessionID, err := h.Live.Start(r.Context(), liverun.Options{
		WorkflowID:    workflowID,
		Inputs:        req.Inputs,
		IntervalMS:    req.IntervalMS,
		MaxIterations: req.MaxIterations,
		ErrorPolicy:   req.ErrorPolicy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"session_id": sessionID})
}

func (h *Handlers) handleLiveStop(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	if !h.Live.Stop(workflowID) {
		writeError(w, apperr.New(apperr.NotFound, "no live run active for this workflow"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "stopping"})
}

// newExecContext builds a fresh per-run executor.Context wired to this
// process's sidecar client and event bus.
func (h *Handlers) newExecContext(runID, sessionID string, ephemeral bool) *exec.Context {
	var seq int64
	ec := &exec.Context{
		Settings:    map[string]interface{}{},
		NodeOutputs: map[string]interface{}{},
		SeqCounter:  &seq,
		Visited:     xsync.NewMapOf[string, bool](),
		RunID:       runID,
		SessionID:   sessionID,
		Ephemeral:   ephemeral,
		Sidecar:     h.Sidecar,
		LoadGraph:   h.Store.GetGraph,
	}
	ec.Emit = func(eventType string, payload map[string]interface{}) {
		h.emit(ec, eventType, payload)
	}
	return ec
}

func (h *Handlers) emit(ec *exec.Context, eventType string, payload map[string]interface{}) {
	if h.Events == nil {
		return
	}
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
	h.Events.Notify(e)
	if !ec.Ephemeral && ec.SessionID != "" {
		_ = h.Store.AppendEvent(context.Background(), e)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), map[string]interface{}{"error": err.Error()})
}

// statusForError maps apperr.Kind to an HTTP status once, at this single
// boundary.
func statusForError(err error) int {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.BudgetExhausted:
		return http.StatusTooManyRequests
	case apperr.Workflow:
		return http.StatusConflict
	case apperr.Database, apperr.Sidecar, apperr.Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

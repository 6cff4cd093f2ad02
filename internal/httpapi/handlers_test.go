package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-studio/workflow-core/internal/apperr"
	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/internal/observer"
	"github.com/ai-studio/workflow-core/internal/storage"
	"github.com/ai-studio/workflow-core/pkg/models"
)

type fakeEngine struct {
	result *models.RunResult
	err    error
}

func (f *fakeEngine) Run(ctx context.Context, g *models.Graph, inputs map[string]interface{}, ec *exec.Context) (*models.RunResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestHandlers(t *testing.T, eng Engine) (*Handlers, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	store.PutGraph("wf-1", &models.Graph{
		Nodes: []*models.Node{{ID: "in", Type: models.NodeInput}},
	})
	h := &Handlers{
		Store:  store,
		Engine: eng,
		Events: observer.NewManager(observer.WithLogger(zerolog.Nop())),
		Logger: zerolog.Nop(),
	}
	return h, store
}

func TestHandleHealth(t *testing.T) {
	h, _ := newTestHandlers(t, &fakeEngine{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleRun_Success(t *testing.T) {
	h, _ := newTestHandlers(t, &fakeEngine{result: &models.RunResult{
		Outputs:     map[string]interface{}{"out": "done"},
		OutputOrder: []string{"out"},
	}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/wf-1/run", strings.NewReader(`{"inputs":{"x":1}}`))
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]interface{}{"out": "done"}, body["outputs"])
}

func TestHandleRun_UnknownWorkflowReturns404(t *testing.T) {
	h, _ := newTestHandlers(t, &fakeEngine{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/missing/run", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRun_FailedRunReturns422(t *testing.T) {
	h, _ := newTestHandlers(t, &fakeEngine{result: &models.RunResult{
		Failed:       true,
		FailedNodeID: "bad",
		Err:          apperr.New(apperr.Workflow, "boom"),
	}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/wf-1/run", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bad", body["failed_node_id"])
}

func TestHandleRun_InvalidJSONBodyReturns400(t *testing.T) {
	h, _ := newTestHandlers(t, &fakeEngine{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/wf-1/run", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.NotFound, http.StatusNotFound},
		{apperr.Validation, http.StatusBadRequest},
		{apperr.BudgetExhausted, http.StatusTooManyRequests},
		{apperr.Workflow, http.StatusConflict},
		{apperr.Database, http.StatusInternalServerError},
		{apperr.Sidecar, http.StatusInternalServerError},
		{apperr.Internal, http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusForError(apperr.New(c.kind, "x")))
	}
	assert.Equal(t, http.StatusInternalServerError, statusForError(assert.AnError))
}

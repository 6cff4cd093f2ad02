package trigger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tmthrgd/go-hex"

	"github.com/ai-studio/workflow-core/internal/apperr"
	storagemodels "github.com/ai-studio/workflow-core/internal/storage/models"
	"github.com/ai-studio/workflow-core/pkg/models"
)

var webhookConfigValidator = validator.New()

// webhookConfigInput is the struct-level validated shape of a webhook
// trigger's config JSON, decoded via encoding/json from the stored
// map[string]interface{} so validator tags can check it in one pass
// instead of scattering ok-checks across parseWebhookConfig.
type webhookConfigInput struct {
	Path         string   `json:"path" validate:"required,startswith=/"`
	ResponseMode string   `json:"response_mode" validate:"omitempty,oneof=immediate wait"`
	MaxPerMinute float64  `json:"max_per_minute" validate:"omitempty,gt=0"`
	Methods      []string `json:"methods" validate:"omitempty,dive,oneof=GET POST PUT PATCH DELETE"`
	Auth         struct {
		Mode string `json:"mode" validate:"omitempty,oneof=none token hmac_sha256"`
	} `json:"auth"`
}

// ArmWebhook registers route under a single critical section and, if the
// server is not yet running, starts it outside the lock, following a
// "mutate map → observe → act outside lock → re-check before storing"
// pattern (avoids holding the route-map lock across a blocking Listen).
func (s *Supervisor) ArmWebhook(route *WebhookRoute) error {
	s.mu.Lock()
	s.routes[route.Path] = route
	s.buckets[route.Path] = newTokenBucket(route.MaxPerMinute)
	needsStart := s.server == nil
	s.mu.Unlock()

	if !needsStart {
		return nil
	}
	return s.startServerIfNeeded()
}

// DisarmWebhook removes route.path and its bucket; if no routes remain the
// server is shut down.
func (s *Supervisor) DisarmWebhook(path string) {
	s.mu.Lock()
	delete(s.routes, path)
	delete(s.buckets, path)
	empty := len(s.routes) == 0
	var sd chan struct{}
	if empty {
		sd = s.shutdown
		s.shutdown = nil
	}
	s.mu.Unlock()

	if sd != nil {
		close(sd)
	}
}

func (s *Supervisor) armWebhookFromConfig(t *storagemodels.TriggerRow) error {
	route, err := parseWebhookConfig(t.ID.String(), t.WorkflowID.String(), t.ConfigJSON)
	if err != nil {
		return err
	}
	if route.Auth.Mode == "hmac_sha256" && route.Auth.Secret == "" && len(s.masterKey) > 0 {
		secret, err := DeriveWebhookSecret(s.masterKey, route.TriggerID, 0)
		if err != nil {
			return err
		}
		route.Auth.Secret = hex.EncodeToString(secret)
	}
	return s.ArmWebhook(route)
}

func parseWebhookConfig(triggerID, workflowID string, cfg map[string]interface{}) (*WebhookRoute, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "webhook trigger config: re-encode", err)
	}
	var input webhookConfigInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "webhook trigger config: decode", err)
	}
	for i, m := range input.Methods {
		input.Methods[i] = strings.ToUpper(m)
	}
	if err := webhookConfigValidator.Struct(input); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "webhook trigger config", err)
	}

	path := input.Path

	route := &WebhookRoute{
		Path:         path,
		TriggerID:    triggerID,
		WorkflowID:   workflowID,
		Methods:      map[string]bool{},
		ResponseMode: "immediate",
		MaxPerMinute: 60,
	}
	if rm, ok := cfg["response_mode"].(string); ok && rm != "" {
		route.ResponseMode = rm
	}
	if mpm, ok := cfg["max_per_minute"].(float64); ok && mpm > 0 {
		route.MaxPerMinute = int(mpm)
	}
	if methods, ok := cfg["methods"].([]interface{}); ok {
		for _, m := range methods {
			if ms, ok := m.(string); ok {
				route.Methods[strings.ToUpper(ms)] = true
			}
		}
	}
	if auth, ok := cfg["auth"].(map[string]interface{}); ok {
		route.Auth.Mode, _ = auth["mode"].(string)
		route.Auth.Token, _ = auth["token"].(string)
		route.Auth.Secret, _ = auth["secret"].(string)
	}
	if route.Auth.Mode == "" {
		route.Auth.Mode = "none"
	}
	if ips, ok := cfg["allowed_ips"].([]interface{}); ok {
		for _, ip := range ips {
			if s, ok := ip.(string); ok {
				route.AllowedIPs = append(route.AllowedIPs, s)
			}
		}
	}
	return route, nil
}

func (s *Supervisor) startServerIfNeeded() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "webhook server: bind loopback listener", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/hook/", s.handleHook)

	server := &http.Server{Handler: mux}
	shutdown := make(chan struct{})

	s.mu.Lock()
	if s.server != nil {
		// A concurrent arm already started the server; drop our redundant listener.
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.server = server
	s.shutdown = shutdown
	s.mu.Unlock()

	go func() {
		<-shutdown
		_ = server.Close()
	}()
	go func() {
		_ = server.Serve(ln)
		s.mu.Lock()
		s.server = nil
		s.mu.Unlock()
	}()
	return nil
}

func (s *Supervisor) handleHook(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/hook")

	s.mu.Lock()
	route, ok := s.routes[path]
	bucket := s.buckets[path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if len(route.Methods) > 0 && !route.Methods[strings.ToUpper(r.Method)] {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !clientIPAllowed(r, route.AllowedIPs) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if bucket != nil && !bucket.allow() {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !checkAuth(route.Auth, r, body) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var parsedBody interface{}
	if err := json.Unmarshal(body, &parsedBody); err != nil {
		parsedBody = string(body)
	}

	headers := map[string]interface{}{}
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}

	inputs := map[string]interface{}{
		"__webhook_body":    parsedBody,
		"__webhook_headers": headers,
		"__webhook_query":   queryToMap(r),
		"__webhook_method":  r.Method,
		"input":             parsedBody,
	}

	s.dispatchWebhook(r.Context(), route, inputs, w)
}

func queryToMap(r *http.Request) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func clientIPAllowed(r *http.Request, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	for _, a := range allowed {
		if a == host {
			return true
		}
	}
	return false
}

func checkAuth(auth AuthConfig, r *http.Request, body []byte) bool {
	switch auth.Mode {
	case "token":
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		return subtle.ConstantTimeCompare([]byte(got), []byte(auth.Token)) == 1

	case "hmac_sha256":
		mac := hmac.New(sha256.New, []byte(auth.Secret))
		mac.Write(body)
		want := hex.EncodeToString(mac.Sum(nil))
		got := r.Header.Get("X-Signature")
		return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1

	default: // "none"
		return true
	}
}

func (s *Supervisor) dispatchWebhook(ctx context.Context, route *WebhookRoute, inputs map[string]interface{}, w http.ResponseWriter) {
	runID := newRunID()
	sessionID, err := s.store.CreateSession(ctx, "", "webhook:"+route.Path)
	if err != nil {
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	logID, err := s.store.RecordTriggerFired(ctx, route.TriggerID, runID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to record trigger fire")
	}

	exec := func() (*models.RunResult, error) {
		return s.run(ctx, runID, sessionID, route.WorkflowID, inputs, false)
	}

	if route.ResponseMode == "wait" {
		result, runErr := exec()
		s.finishTriggerLog(ctx, logID, result, runErr)

		w.Header().Set("Content-Type", "application/json")
		if runErr != nil || (result != nil && result.Failed) {
			w.WriteHeader(http.StatusInternalServerError)
			msg := errString(runErr, result)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": msg})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"run_id": runID, "status": "completed", "output": firstOutput(result),
		})
		return
	}

	go func() {
		result, runErr := exec()
		s.finishTriggerLog(context.Background(), logID, result, runErr)
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"run_id": runID, "status": "accepted"})
}

func (s *Supervisor) finishTriggerLog(ctx context.Context, logID string, result *models.RunResult, runErr error) {
	if logID == "" {
		return
	}
	status := "completed"
	meta := map[string]interface{}{}
	if runErr != nil {
		status = "error"
		meta["error"] = runErr.Error()
	} else if result != nil && result.Failed {
		status = "error"
		meta["error"] = errString(runErr, result)
	}
	if err := s.store.UpdateTriggerLogStatus(ctx, logID, status, meta); err != nil {
		s.logger.Error().Err(err).Msg("failed to update trigger log status")
	}
}

func errString(runErr error, result *models.RunResult) string {
	if runErr != nil {
		return runErr.Error()
	}
	if result != nil && result.Err != nil {
		return result.Err.Error()
	}
	return "workflow run failed"
}

func firstOutput(result *models.RunResult) interface{} {
	if result == nil || len(result.OutputOrder) == 0 {
		return nil
	}
	return result.Outputs[result.OutputOrder[0]]
}

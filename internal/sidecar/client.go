// Package sidecar is the HTTP client for the loopback language-model
// sidecar process: chat completion, embedding,
// document text extraction, and tool execution, each signed with a
// short-lived JWT bound at sidecar spawn time. Built in the same
// context-aware-requests, structured-error-wrapping style as the rest of
// this module's HTTP clients.
package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ai-studio/workflow-core/internal/apperr"
)

// DefaultTimeout is the default per-call timeout for every sidecar endpoint.
const DefaultTimeout = 30 * time.Second

// Client talks to the sidecar over a loopback HTTP connection.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	tokenKey   []byte
}

// NewClient builds a sidecar client whose X-AI-Studio-Token header is a
// JWT signed with tokenKey, the secret generated at sidecar spawn time.
func NewClient(baseURL string, tokenKey []byte) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		tokenKey:   tokenKey,
	}
}

func (c *Client) token() (string, error) {
	claims := jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(DefaultTimeout).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(c.tokenKey)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal sidecar request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build sidecar request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok, err := c.token(); err == nil {
		req.Header.Set("X-AI-Studio-Token", tok)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Sidecar, fmt.Sprintf("call %s", path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.Sidecar, "read sidecar response", err)
	}
	if resp.StatusCode >= 300 {
		return apperr.New(apperr.Sidecar, fmt.Sprintf("%s returned %d: %s", path, resp.StatusCode, string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Wrap(apperr.Sidecar, "parse sidecar response", err)
	}
	return nil
}

// Health checks readiness via GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build health request", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Sidecar, "health check", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.Sidecar, fmt.Sprintf("sidecar unhealthy: %d", resp.StatusCode))
	}
	return nil
}

// ChatDirect calls POST /chat/direct with the given request and returns
// the raw response object: {content, usage: {prompt_tokens,
// completion_tokens}, model}.
func (c *Client) ChatDirect(ctx context.Context, req map[string]interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.post(ctx, "/chat/direct", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Chat calls POST /chat, the tool-enabled conversational variant.
func (c *Client) Chat(ctx context.Context, req map[string]interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.post(ctx, "/chat", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Embed calls POST /embed and returns the vectors and their dimensionality.
func (c *Client) Embed(ctx context.Context, texts []string, provider, model string, cfg map[string]interface{}) ([][]float32, int, error) {
	req := map[string]interface{}{
		"texts":        texts,
		"provider":     provider,
		"model":        model,
		"extra_config": cfg,
	}
	var out struct {
		Vectors    [][]float32 `json:"vectors"`
		Dimensions int         `json:"dimensions"`
	}
	if err := c.post(ctx, "/embed", req, &out); err != nil {
		return nil, 0, err
	}
	return out.Vectors, out.Dimensions, nil
}

// Extract calls POST /extract for binary document formats (pdf, docx,
// xlsx, xls, pptx) and returns the extracted text.
func (c *Client) Extract(ctx context.Context, path, format string) (string, error) {
	req := map[string]interface{}{"path": path, "format": format}
	var out struct {
		Text string `json:"text"`
	}
	if err := c.post(ctx, "/extract", req, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// ExecuteTool calls POST /tools/execute and returns the tool's result value.
func (c *Client) ExecuteTool(ctx context.Context, toolName string, toolInput map[string]interface{}) (interface{}, error) {
	req := map[string]interface{}{"tool_name": toolName, "tool_input": toolInput}
	var out struct {
		Result interface{} `json:"result"`
	}
	if err := c.post(ctx, "/tools/execute", req, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

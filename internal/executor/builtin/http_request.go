package builtin

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ai-studio/workflow-core/internal/apperr"
	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/internal/template"
	"github.com/ai-studio/workflow-core/pkg/models"
)

const defaultMaxResponseBytes = 10 * 1024 * 1024

// HTTPRequestExecutor makes an outbound HTTP request with SSRF
// protection.
type HTTPRequestExecutor struct{}

func (HTTPRequestExecutor) Execute(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, ec *exec.Context) (*models.NodeOutput, error) {
	rawURL := exec.GetStringDefault(node.Config, "url", "")
	rawURL = template.Resolve(rawURL, ec.NodeOutputs, ec.Inputs)

	if err := checkSSRF(rawURL); err != nil {
		return nil, err
	}

	method := strings.ToUpper(exec.GetStringDefault(node.Config, "method", "GET"))
	timeoutSec := exec.GetIntDefault(node.Config, "timeoutSeconds", 30)
	maxBytes := int64(exec.GetIntDefault(node.Config, "maxResponseBytes", defaultMaxResponseBytes))

	var bodyReader io.Reader
	if body, ok := node.Config["body"]; ok {
		switch b := body.(type) {
		case string:
			bodyReader = strings.NewReader(template.Resolve(b, ec.NodeOutputs, ec.Inputs))
		default:
			bodyReader = strings.NewReader(fmt.Sprintf("%v", b))
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, fmt.Sprintf("http_request %s: build request", nodeID), err)
	}

	applyHeaders(req, node.Config, incoming)
	if err := applyAuth(req, node.Config, ec); err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, fmt.Sprintf("http_request %s: request failed", nodeID), err)
	}
	defer resp.Body.Close()

	if resp.ContentLength > maxBytes {
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("http_request %s: response exceeds %d byte cap (Content-Length)", nodeID, maxBytes))
	}

	limited := io.LimitReader(resp.Body, maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "read response body", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("http_request %s: response exceeds %d byte cap", nodeID, maxBytes))
	}

	headers := map[string]string{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &models.NodeOutput{Value: map[string]interface{}{
		"status":  resp.StatusCode,
		"headers": headers,
		"body":    string(data),
	}}, nil
}

func applyHeaders(req *http.Request, config map[string]interface{}, incoming interface{}) {
	if cfgHeaders, ok := exec.GetMap(config, "headers"); ok {
		for k, v := range cfgHeaders {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}
	if m, ok := incoming.(map[string]interface{}); ok {
		if hdrs, ok := m["headers"].(map[string]interface{}); ok {
			for k, v := range hdrs {
				req.Header.Set(k, fmt.Sprintf("%v", v))
			}
		}
	}
}

func applyAuth(req *http.Request, config map[string]interface{}, ec *exec.Context) error {
	authCfg, ok := exec.GetMap(config, "auth")
	if !ok {
		return nil
	}
	authType := exec.GetStringDefault(authCfg, "type", "")
	settingsKey := exec.GetStringDefault(authCfg, "settingsKey", "")
	secret, _ := ec.Settings[settingsKey].(string)

	switch authType {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+secret)
	case "basic":
		user := exec.GetStringDefault(authCfg, "username", "")
		req.SetBasicAuth(user, secret)
	case "api_key":
		headerName := exec.GetStringDefault(authCfg, "header", "X-API-Key")
		req.Header.Set(headerName, secret)
	case "":
		return nil
	default:
		return apperr.New(apperr.Validation, fmt.Sprintf("http_request: unknown auth type %q", authType))
	}
	return nil
}

// checkSSRF rejects requests to loopback, unspecified, and private ranges.
func checkSSRF(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "invalid url", err)
	}
	host := u.Hostname()
	if host == "localhost" {
		return apperr.New(apperr.Validation, "http_request: destination host is not permitted (localhost)")
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Hostname resolution is left to the transport; the common-case
		// literal-IP SSRF vectors are blocked above and below.
		return nil
	}
	if isBlockedIP(ip) {
		return apperr.New(apperr.Validation, fmt.Sprintf("http_request: destination host %s is not permitted", host))
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	blocks := []string{
		"127.0.0.0/8", "::1/128", "0.0.0.0/8",
		"10.0.0.0/8", "192.168.0.0/16", "169.254.0.0/16", "172.16.0.0/12",
	}
	for _, cidr := range blocks {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

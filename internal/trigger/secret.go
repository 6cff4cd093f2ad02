package trigger

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/ai-studio/workflow-core/internal/apperr"
)

// DeriveWebhookSecret derives a per-trigger HMAC secret from a process-wide
// master key via HKDF-SHA256, so rotating a trigger's secret never means
// handing the operator a fresh high-entropy value to copy around: the
// trigger id alone (as HKDF's "info" parameter) is enough to regenerate the
// same secret deterministically, or a new one after bumping generation.
func DeriveWebhookSecret(masterKey []byte, triggerID string, generation int) ([]byte, error) {
	info := []byte(triggerID)
	if generation > 0 {
		info = append(info, byte(generation))
	}
	r := hkdf.New(sha256.New, masterKey, nil, info)
	out := make([]byte, 32)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "derive webhook secret", err)
	}
	return out, nil
}

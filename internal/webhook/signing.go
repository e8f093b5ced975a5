package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

const (
	HeaderSignature  = "X-Webhook-Signature"
	HeaderEvent      = "X-Webhook-Event"
	HeaderDeliveryID = "X-Webhook-Delivery-ID"
	HeaderTimestamp  = "X-Webhook-Timestamp"

	signaturePrefix = "sha256="
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Envelope is the wire body of every delivery.
type Envelope struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// BuildPayload serializes the envelope once; the stored string is what gets signed and sent.
func BuildPayload(event string, data any, now time.Time) (string, error) {
	b, err := json.Marshal(Envelope{Event: event, Timestamp: now.UTC().Format(timestampLayout), Data: data})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Sign returns the X-Webhook-Signature value: sha256=<hex HMAC-SHA256(secret, payload)>.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature header against payload in constant time.
func Verify(secret string, payload []byte, header string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	return hmac.Equal([]byte(header), []byte(Sign(secret, payload)))
}

// GenerateSecret returns a random signing secret.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(b), nil
}

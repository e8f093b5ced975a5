package webhook

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	payload := []byte(`{"event":"order.confirmed","timestamp":"2026-01-01T00:00:00.000Z","data":{}}`)
	sig := Sign("s3cret", payload)

	if !strings.HasPrefix(sig, "sha256=") || len(sig) != len("sha256=")+64 {
		t.Fatalf("unexpected signature format %q", sig)
	}
	if !Verify("s3cret", payload, sig) {
		t.Fatal("expected signature to verify")
	}

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] = ' '
	if Verify("s3cret", tampered, sig) {
		t.Fatal("tampered payload must not verify")
	}
	if Verify("other", payload, sig) {
		t.Fatal("wrong secret must not verify")
	}
	if Verify("s3cret", payload, strings.TrimPrefix(sig, "sha256=")) {
		t.Fatal("signature without prefix must not verify")
	}
}

func TestBuildPayload(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 891_000_000, time.FixedZone("x", 3600))
	raw, err := BuildPayload(EventOrderCreated, map[string]string{"order_id": "o1"}, now)
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}

	var env struct {
		Event     string            `json:"event"`
		Timestamp string            `json:"timestamp"`
		Data      map[string]string `json:"data"`
	}
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if env.Event != EventOrderCreated || env.Data["order_id"] != "o1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Timestamp != "2026-03-04T04:06:07.891Z" {
		t.Fatalf("timestamp = %q", env.Timestamp)
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateSecret()
	if a == b || !strings.HasPrefix(a, "whsec_") {
		t.Fatalf("secrets %q %q", a, b)
	}
}

func TestBackoff(t *testing.T) {
	base := 5 * time.Second
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second}
	for i, w := range want {
		if got := Backoff(base, i+1); got != w {
			t.Fatalf("Backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
	if got := Backoff(base, 0); got != base {
		t.Fatalf("Backoff(0) = %s", got)
	}
}

func TestDelayQueueOrdersByDue(t *testing.T) {
	now := time.Now()
	var q delayQueue
	q.push(job{deliveryID: "c", due: now.Add(3 * time.Second)})
	q.push(job{deliveryID: "a", due: now.Add(-time.Second)})
	q.push(job{deliveryID: "b", due: now})

	for _, want := range []string{"a", "b"} {
		j, _, ok := q.popDue(now)
		if !ok || j.deliveryID != want {
			t.Fatalf("popDue = %+v %v, want %s", j, ok, want)
		}
	}
	if _, wait, ok := q.popDue(now); ok || wait != 3*time.Second {
		t.Fatalf("expected c to wait 3s, got wait=%s ok=%v", wait, ok)
	}
	q.popDue(now.Add(3 * time.Second))
	if _, wait, ok := q.popDue(now); ok || wait != -1 {
		t.Fatalf("empty queue: wait=%s ok=%v", wait, ok)
	}
}

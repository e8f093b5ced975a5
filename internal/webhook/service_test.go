package webhook

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gamecredit-platform/internal/apperr"
)

type recordingQueue struct{ got []Delivery }

func (q *recordingQueue) Enqueue(d Delivery) { q.got = append(q.got, d) }

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), nil)

	reg, err := svc.Register(ctx, RegisterRequest{
		OwnerID: "c1",
		URL:     " https://example.test/hook ",
		Events:  []string{EventOrderConfirmed, EventOrderConfirmed, EventReferralValid},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.SigningSecret == "" || reg.SigningSecret != reg.Webhook.SigningSecret {
		t.Fatal("expected generated secret to be returned")
	}
	if reg.URL != "https://example.test/hook" || len(reg.Events) != 2 || !reg.IsActive {
		t.Fatalf("unexpected webhook %+v", reg.Webhook)
	}

	_, err = svc.Register(ctx, RegisterRequest{OwnerID: "c1", URL: "https://example.test/hook", Events: []string{EventOrderCreated}})
	if !errors.Is(err, ErrDuplicateURL) {
		t.Fatalf("duplicate url: got %v", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{OwnerID: "c2", URL: "https://example.test/hook", Events: []string{EventOrderCreated}}); err != nil {
		t.Fatalf("other owner may reuse url: %v", err)
	}

	// A deleted webhook frees its URL.
	if err := svc.Delete(ctx, "c1", reg.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{OwnerID: "c1", URL: "https://example.test/hook", Events: []string{EventOrderCreated}}); err != nil {
		t.Fatalf("re-register after delete: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	cases := []struct {
		name string
		req  RegisterRequest
	}{
		{"ftp url", RegisterRequest{OwnerID: "c1", URL: "ftp://x.test", Events: []string{EventOrderCreated}}},
		{"relative url", RegisterRequest{OwnerID: "c1", URL: "/hook", Events: []string{EventOrderCreated}}},
		{"no events", RegisterRequest{OwnerID: "c1", URL: "https://x.test"}},
		{"unknown event", RegisterRequest{OwnerID: "c1", URL: "https://x.test", Events: []string{"order.exploded"}}},
		{"no owner", RegisterRequest{URL: "https://x.test", Events: []string{EventOrderCreated}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.req)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("got %v, want validation error", err)
			}
		})
	}
}

func TestDeleteAndReactivate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	reg, _ := svc.Register(ctx, RegisterRequest{OwnerID: "c1", URL: "https://x.test", Events: []string{EventOrderCreated}})

	if err := svc.Delete(ctx, "intruder", reg.ID); !errors.Is(err, ErrWebhookNotFound) {
		t.Fatalf("foreign delete: %v", err)
	}

	repo.IncrementWebhookFailures(ctx, reg.ID)
	repo.DeactivateWebhook(ctx, reg.ID)

	w, err := svc.Reactivate(ctx, reg.ID)
	if err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	if !w.IsActive || w.FailureCount != 0 {
		t.Fatalf("unexpected %+v", w)
	}
	if _, err := svc.Reactivate(ctx, "missing"); !errors.Is(err, ErrWebhookNotFound) {
		t.Fatalf("missing: %v", err)
	}
}

func TestTriggerFansOutToActiveSubscribers(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	q := &recordingQueue{}
	svc := NewService(repo, q)

	a, _ := svc.Register(ctx, RegisterRequest{OwnerID: "c1", URL: "https://a.test", Events: []string{EventOrderConfirmed}})
	svc.Register(ctx, RegisterRequest{OwnerID: "c1", URL: "https://b.test", Events: []string{EventOrderCreated}})
	other, _ := svc.Register(ctx, RegisterRequest{OwnerID: "c2", URL: "https://c.test", Events: []string{EventOrderConfirmed}})
	off, _ := svc.Register(ctx, RegisterRequest{OwnerID: "c1", URL: "https://d.test", Events: []string{EventOrderConfirmed}})
	repo.DeactivateWebhook(ctx, off.ID)

	got, err := svc.Trigger(ctx, EventOrderConfirmed, "c1", map[string]string{"order_id": "o1"})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if len(got) != 1 || got[0].WebhookID != a.ID || got[0].Status != DeliveryPending {
		t.Fatalf("unexpected deliveries %+v", got)
	}
	if len(q.got) != 1 || q.got[0].ID != got[0].ID {
		t.Fatalf("expected the delivery to be queued, got %+v", q.got)
	}

	all, err := svc.Trigger(ctx, EventOrderConfirmed, "", nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("broadcast: %v %d", err, len(all))
	}
	if all[0].WebhookID != other.ID && all[1].WebhookID != other.ID {
		t.Fatalf("expected c2's webhook to receive broadcast")
	}

	if _, err := svc.Trigger(ctx, "nope", "c1", nil); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown event: %v", err)
	}
}

// flakyInsertRepo fails every InsertDelivery after the first ok ones.
type flakyInsertRepo struct {
	*MemoryRepo
	ok int
}

var errInsert = errors.New("insert failed")

func (r *flakyInsertRepo) InsertDelivery(ctx context.Context, d Delivery) error {
	if r.ok == 0 {
		return errInsert
	}
	r.ok--
	return r.MemoryRepo.InsertDelivery(ctx, d)
}

func TestTriggerReportsStoredDeliveriesOnInsertFailure(t *testing.T) {
	ctx := context.Background()
	repo := &flakyInsertRepo{MemoryRepo: NewMemoryRepo(), ok: 1}
	q := &recordingQueue{}
	svc := NewService(repo, q)
	for _, u := range []string{"https://a.test", "https://b.test", "https://c.test"} {
		if _, err := svc.Register(ctx, RegisterRequest{OwnerID: "c1", URL: u, Events: []string{EventOrderCreated}}); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	got, err := svc.Trigger(ctx, EventOrderCreated, "c1", nil)
	if !errors.Is(err, errInsert) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the one stored delivery back, got %d", len(got))
	}
	if len(q.got) != 1 || q.got[0].ID != got[0].ID {
		t.Fatalf("only stored deliveries may be queued, got %+v", q.got)
	}
	if _, err := repo.GetDelivery(ctx, got[0].ID); err != nil {
		t.Fatalf("stored delivery missing: %v", err)
	}
}

func TestListDeliveriesNewestFirstAndCapped(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	reg, _ := svc.Register(ctx, RegisterRequest{OwnerID: "c1", URL: "https://a.test", Events: []string{EventOrderCreated}})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		repo.InsertDelivery(ctx, Delivery{
			ID:        fmt.Sprintf("d%02d", i),
			WebhookID: reg.ID,
			Status:    DeliveryDelivered,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	got, err := svc.ListDeliveries(ctx, "c1", reg.ID, 500)
	if err != nil {
		t.Fatalf("ListDeliveries: %v", err)
	}
	if len(got) != 50 {
		t.Fatalf("len = %d, want 50", len(got))
	}
	if !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Fatal("expected newest first")
	}

	if _, err := svc.ListDeliveries(ctx, "c2", reg.ID, 10); !errors.Is(err, ErrWebhookNotFound) {
		t.Fatalf("foreign owner: %v", err)
	}
	if got, err := svc.ListDeliveries(ctx, "", reg.ID, 10); err != nil || len(got) != 10 {
		t.Fatalf("staff view: %v %d", err, len(got))
	}
}

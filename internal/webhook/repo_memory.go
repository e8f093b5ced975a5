package webhook

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gamecredit-platform/internal/apperr"
)

// MemoryRepo is an in-memory webhook store for tests.
type MemoryRepo struct {
	mu         sync.Mutex
	webhooks   map[string]Webhook
	deliveries map[string]Delivery
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{webhooks: map[string]Webhook{}, deliveries: map[string]Delivery{}}
}

func (r *MemoryRepo) InsertWebhook(ctx context.Context, w Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.webhooks[w.ID]; ok {
		return fmt.Errorf("webhook %s: %w", w.ID, apperr.ErrConflict)
	}
	w.Events = append(EventList(nil), w.Events...)
	r.webhooks[w.ID] = w
	return nil
}

func (r *MemoryRepo) GetWebhook(ctx context.Context, id string) (Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.webhooks[id]
	if !ok {
		return Webhook{}, fmt.Errorf("webhook %s: %w", id, apperr.ErrNotFound)
	}
	return w, nil
}

func (r *MemoryRepo) ListWebhooksByOwner(ctx context.Context, ownerID string) ([]Webhook, error) {
	return r.filter(func(w Webhook) bool { return w.OwnerID == ownerID }), nil
}

func (r *MemoryRepo) FindActiveWebhookByURL(ctx context.Context, ownerID, url string) (Webhook, bool, error) {
	out := r.filter(func(w Webhook) bool { return w.IsActive && w.OwnerID == ownerID && w.URL == url })
	if len(out) == 0 {
		return Webhook{}, false, nil
	}
	return out[0], true, nil
}

func (r *MemoryRepo) ListActiveSubscribers(ctx context.Context, event, ownerID string) ([]Webhook, error) {
	return r.filter(func(w Webhook) bool {
		return w.IsActive && w.Subscribed(event) && (ownerID == "" || w.OwnerID == ownerID)
	}), nil
}

func (r *MemoryRepo) filter(keep func(Webhook) bool) []Webhook {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Webhook
	for _, w := range r.webhooks {
		if keep(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepo) UpdateWebhook(ctx context.Context, w Webhook) error {
	return r.mutate(w.ID, func(cur *Webhook) { *cur = w })
}

func (r *MemoryRepo) ResetWebhookFailures(ctx context.Context, id string, at time.Time) error {
	return r.mutate(id, func(w *Webhook) {
		w.FailureCount = 0
		w.LastTriggeredAt = &at
	})
}

func (r *MemoryRepo) IncrementWebhookFailures(ctx context.Context, id string) (int, error) {
	var n int
	err := r.mutate(id, func(w *Webhook) {
		w.FailureCount++
		n = w.FailureCount
	})
	return n, err
}

func (r *MemoryRepo) DeactivateWebhook(ctx context.Context, id string) error {
	return r.mutate(id, func(w *Webhook) { w.IsActive = false })
}

func (r *MemoryRepo) mutate(id string, fn func(*Webhook)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.webhooks[id]
	if !ok {
		return fmt.Errorf("webhook %s: %w", id, apperr.ErrNotFound)
	}
	fn(&w)
	r.webhooks[id] = w
	return nil
}

func (r *MemoryRepo) InsertDelivery(ctx context.Context, d Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.deliveries[d.ID]; ok {
		return fmt.Errorf("delivery %s: %w", d.ID, apperr.ErrConflict)
	}
	r.deliveries[d.ID] = d
	return nil
}

func (r *MemoryRepo) UpdateDelivery(ctx context.Context, d Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.deliveries[d.ID]; !ok {
		return fmt.Errorf("delivery %s: %w", d.ID, apperr.ErrNotFound)
	}
	r.deliveries[d.ID] = d
	return nil
}

func (r *MemoryRepo) GetDelivery(ctx context.Context, id string) (Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return Delivery{}, fmt.Errorf("delivery %s: %w", id, apperr.ErrNotFound)
	}
	return d, nil
}

func (r *MemoryRepo) ListDeliveries(ctx context.Context, webhookID string, limit int) ([]Delivery, error) {
	out := r.deliveriesWhere(func(d Delivery) bool { return d.WebhookID == webhookID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) ListUnfinishedDeliveries(ctx context.Context) ([]Delivery, error) {
	out := r.deliveriesWhere(func(d Delivery) bool { return !d.Status.Final() })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) deliveriesWhere(keep func(Delivery) bool) []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Delivery
	for _, d := range r.deliveries {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

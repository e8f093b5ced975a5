package postgres

import (
	"context"
	"time"

	"gamecredit-platform/internal/webhook"
)

const webhookColumns = `webhook_id, owner_id, url, signing_secret, subscribed_events, is_active, failure_count,
	last_triggered_at, created_at, updated_at`

const deliveryColumns = `delivery_id, webhook_id, event_type, payload, status, attempt_count, next_retry_at,
	response_status, response_body, last_error, delivered_at, created_at, updated_at`

func (s *Store) InsertWebhook(ctx context.Context, w webhook.Webhook) error {
	_, err := s.named(ctx, `
		INSERT INTO webhooks (`+webhookColumns+`)
		VALUES (:webhook_id, :owner_id, :url, :signing_secret, :subscribed_events, :is_active, :failure_count,
			:last_triggered_at, :created_at, :updated_at)`, w)
	return classify(err, "webhook "+w.ID)
}

func (s *Store) GetWebhook(ctx context.Context, id string) (webhook.Webhook, error) {
	var w webhook.Webhook
	err := s.get(ctx, &w, `SELECT `+webhookColumns+` FROM webhooks WHERE webhook_id = $1`, id)
	return w, classify(err, "webhook "+id)
}

func (s *Store) ListWebhooksByOwner(ctx context.Context, ownerID string) ([]webhook.Webhook, error) {
	var out []webhook.Webhook
	err := s.sel(ctx, &out, `SELECT `+webhookColumns+` FROM webhooks WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	return out, classify(err, "list webhooks")
}

func (s *Store) FindActiveWebhookByURL(ctx context.Context, ownerID, url string) (webhook.Webhook, bool, error) {
	var rows []webhook.Webhook
	err := s.sel(ctx, &rows, `SELECT `+webhookColumns+` FROM webhooks
		WHERE owner_id = $1 AND url = $2 AND is_active`, ownerID, url)
	if err != nil {
		return webhook.Webhook{}, false, classify(err, "find webhook")
	}
	if len(rows) == 0 {
		return webhook.Webhook{}, false, nil
	}
	return rows[0], true, nil
}

// ListActiveSubscribers matches event against the comma separated subscription list.
func (s *Store) ListActiveSubscribers(ctx context.Context, event, ownerID string) ([]webhook.Webhook, error) {
	var out []webhook.Webhook
	err := s.sel(ctx, &out, `SELECT `+webhookColumns+` FROM webhooks
		WHERE is_active
		  AND (',' || subscribed_events || ',') LIKE ('%,' || $1 || ',%')
		  AND ($2::text = '' OR owner_id = $2)
		ORDER BY created_at`, event, ownerID)
	return out, classify(err, "list subscribers")
}

func (s *Store) UpdateWebhook(ctx context.Context, w webhook.Webhook) error {
	res, err := s.named(ctx, `
		UPDATE webhooks SET
			url = :url,
			subscribed_events = :subscribed_events,
			is_active = :is_active,
			failure_count = :failure_count,
			last_triggered_at = :last_triggered_at,
			updated_at = :updated_at
		WHERE webhook_id = :webhook_id`, w)
	return mustAffect(res, err, "webhook "+w.ID)
}

func (s *Store) ResetWebhookFailures(ctx context.Context, id string, at time.Time) error {
	res, err := s.exec(ctx, `
		UPDATE webhooks SET failure_count = 0, last_triggered_at = $2, updated_at = NOW()
		WHERE webhook_id = $1`, id, at)
	return mustAffect(res, err, "webhook "+id)
}

func (s *Store) IncrementWebhookFailures(ctx context.Context, id string) (int, error) {
	var n int
	err := s.get(ctx, &n, `
		UPDATE webhooks SET failure_count = failure_count + 1, updated_at = NOW()
		WHERE webhook_id = $1
		RETURNING failure_count`, id)
	return n, classify(err, "webhook "+id)
}

func (s *Store) DeactivateWebhook(ctx context.Context, id string) error {
	res, err := s.exec(ctx,
		`UPDATE webhooks SET is_active = FALSE, updated_at = NOW() WHERE webhook_id = $1`, id)
	return mustAffect(res, err, "webhook "+id)
}

func (s *Store) InsertDelivery(ctx context.Context, d webhook.Delivery) error {
	_, err := s.named(ctx, `
		INSERT INTO webhook_deliveries (`+deliveryColumns+`)
		VALUES (:delivery_id, :webhook_id, :event_type, :payload, :status, :attempt_count, :next_retry_at,
			:response_status, :response_body, :last_error, :delivered_at, :created_at, :updated_at)`, d)
	return classify(err, "delivery "+d.ID)
}

func (s *Store) UpdateDelivery(ctx context.Context, d webhook.Delivery) error {
	res, err := s.named(ctx, `
		UPDATE webhook_deliveries SET
			status = :status,
			attempt_count = :attempt_count,
			next_retry_at = :next_retry_at,
			response_status = :response_status,
			response_body = :response_body,
			last_error = :last_error,
			delivered_at = :delivered_at,
			updated_at = :updated_at
		WHERE delivery_id = :delivery_id`, d)
	return mustAffect(res, err, "delivery "+d.ID)
}

func (s *Store) GetDelivery(ctx context.Context, id string) (webhook.Delivery, error) {
	var d webhook.Delivery
	err := s.get(ctx, &d, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE delivery_id = $1`, id)
	return d, classify(err, "delivery "+id)
}

func (s *Store) ListDeliveries(ctx context.Context, webhookID string, limit int) ([]webhook.Delivery, error) {
	var out []webhook.Delivery
	err := s.sel(ctx, &out, `SELECT `+deliveryColumns+` FROM webhook_deliveries
		WHERE webhook_id = $1 ORDER BY created_at DESC LIMIT $2`, webhookID, limit)
	return out, classify(err, "list deliveries")
}

func (s *Store) ListUnfinishedDeliveries(ctx context.Context) ([]webhook.Delivery, error) {
	var out []webhook.Delivery
	err := s.sel(ctx, &out, `SELECT `+deliveryColumns+` FROM webhook_deliveries
		WHERE status IN ('pending', 'retrying') ORDER BY created_at`)
	return out, classify(err, "list unfinished deliveries")
}

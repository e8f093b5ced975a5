package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gamecredit-platform/internal/apperr"
	"gamecredit-platform/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrWebhookNotFound  = fmt.Errorf("%w: webhook", apperr.ErrNotFound)
	ErrDeliveryNotFound = fmt.Errorf("%w: delivery", apperr.ErrNotFound)
	ErrInvalidURL       = fmt.Errorf("%w: webhook url must be an absolute http(s) url", apperr.ErrValidation)
	ErrInvalidEvents    = fmt.Errorf("%w: unknown or empty event list", apperr.ErrValidation)
	ErrDuplicateURL     = fmt.Errorf("%w: an active webhook already uses this url", apperr.ErrConflict)
)

const maxDeliveryPage = 50

// Repository persists webhooks and their deliveries.
type Repository interface {
	InsertWebhook(ctx context.Context, w Webhook) error
	GetWebhook(ctx context.Context, id string) (Webhook, error)
	ListWebhooksByOwner(ctx context.Context, ownerID string) ([]Webhook, error)
	FindActiveWebhookByURL(ctx context.Context, ownerID, url string) (Webhook, bool, error)
	// ListActiveSubscribers returns active webhooks subscribed to event. An empty
	// ownerID matches every owner.
	ListActiveSubscribers(ctx context.Context, event, ownerID string) ([]Webhook, error)
	UpdateWebhook(ctx context.Context, w Webhook) error
	ResetWebhookFailures(ctx context.Context, id string, at time.Time) error
	// IncrementWebhookFailures bumps failure_count atomically and returns the new value.
	IncrementWebhookFailures(ctx context.Context, id string) (int, error)
	DeactivateWebhook(ctx context.Context, id string) error

	InsertDelivery(ctx context.Context, d Delivery) error
	UpdateDelivery(ctx context.Context, d Delivery) error
	GetDelivery(ctx context.Context, id string) (Delivery, error)
	ListDeliveries(ctx context.Context, webhookID string, limit int) ([]Delivery, error)
	ListUnfinishedDeliveries(ctx context.Context) ([]Delivery, error)
}

// Enqueuer hands a persisted delivery to the dispatcher.
type Enqueuer interface {
	Enqueue(d Delivery)
}

type Service struct {
	repo  Repository
	queue Enqueuer
	clock func() time.Time
}

func NewService(repo Repository, queue Enqueuer) *Service {
	return &Service{repo: repo, queue: queue, clock: time.Now}
}

type RegisterRequest struct {
	OwnerID string
	URL     string
	Events  []string
	// Secret is optional; one is generated when empty.
	Secret string
}

// Registered carries the signing secret. It is only ever returned here.
type Registered struct {
	Webhook
	SigningSecret string `json:"signing_secret"`
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Registered, error) {
	req.URL = strings.TrimSpace(req.URL)
	if req.OwnerID == "" {
		return Registered{}, fmt.Errorf("%w: client id required", apperr.ErrValidation)
	}
	if !validURL(req.URL) {
		return Registered{}, ErrInvalidURL
	}
	events, err := normalizeEvents(req.Events)
	if err != nil {
		return Registered{}, err
	}

	if _, found, err := s.repo.FindActiveWebhookByURL(ctx, req.OwnerID, req.URL); err != nil {
		return Registered{}, err
	} else if found {
		return Registered{}, ErrDuplicateURL
	}

	secret := req.Secret
	if secret == "" {
		if secret, err = GenerateSecret(); err != nil {
			return Registered{}, err
		}
	}

	now := s.clock().UTC()
	w := Webhook{
		ID:            uuid.NewString(),
		OwnerID:       req.OwnerID,
		URL:           req.URL,
		SigningSecret: secret,
		Events:        events,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertWebhook(ctx, w); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return Registered{}, ErrDuplicateURL
		}
		return Registered{}, err
	}
	logger.From(ctx).Info("webhook registered", "webhook_id", w.ID, "client_id", w.OwnerID, "events", []string(events))
	return Registered{Webhook: w, SigningSecret: secret}, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]Webhook, error) {
	return s.repo.ListWebhooksByOwner(ctx, ownerID)
}

// Delete soft-deletes: the webhook stops receiving events but its history stays.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	w, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	w.IsActive = false
	w.UpdatedAt = s.clock().UTC()
	return s.repo.UpdateWebhook(ctx, w)
}

// Reactivate turns a webhook back on and clears its failure count.
func (s *Service) Reactivate(ctx context.Context, id string) (Webhook, error) {
	w, err := s.repo.GetWebhook(ctx, id)
	if err != nil {
		return Webhook{}, notFound(err)
	}
	w.IsActive = true
	w.FailureCount = 0
	w.UpdatedAt = s.clock().UTC()
	if err := s.repo.UpdateWebhook(ctx, w); err != nil {
		return Webhook{}, err
	}
	return w, nil
}

// ListDeliveries returns the most recent deliveries, newest first. An empty
// ownerID skips the ownership check (staff).
func (s *Service) ListDeliveries(ctx context.Context, ownerID, webhookID string, limit int) ([]Delivery, error) {
	if ownerID == "" {
		if _, err := s.repo.GetWebhook(ctx, webhookID); err != nil {
			return nil, notFound(err)
		}
	} else if _, err := s.owned(ctx, ownerID, webhookID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxDeliveryPage {
		limit = maxDeliveryPage
	}
	return s.repo.ListDeliveries(ctx, webhookID, limit)
}

// Trigger persists one delivery per active subscriber and queues them. It
// returns once the deliveries are stored; sending happens in the background.
//
// If a row cannot be stored Trigger stops and returns the error together with the
// deliveries stored before it. Those are queued and will be sent.
func (s *Service) Trigger(ctx context.Context, event, ownerID string, data any) ([]Delivery, error) {
	if !KnownEvent(event) {
		return nil, fmt.Errorf("%w: unknown event %q", apperr.ErrValidation, event)
	}
	hooks, err := s.repo.ListActiveSubscribers(ctx, event, ownerID)
	if err != nil {
		return nil, err
	}
	if len(hooks) == 0 {
		return nil, nil
	}

	now := s.clock().UTC()
	payload, err := BuildPayload(event, data, now)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}

	stored := make([]Delivery, 0, len(hooks))
	var insertErr error
	for _, w := range hooks {
		d := Delivery{
			ID:        uuid.NewString(),
			WebhookID: w.ID,
			EventType: event,
			Payload:   payload,
			Status:    DeliveryPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.InsertDelivery(ctx, d); err != nil {
			insertErr = fmt.Errorf("store delivery for webhook %s (%d of %d stored): %w", w.ID, len(stored), len(hooks), err)
			break
		}
		stored = append(stored, d)
	}
	if s.queue != nil {
		for _, d := range stored {
			s.queue.Enqueue(d)
		}
	}
	return stored, insertErr
}

// Publish is Trigger for callers that must not fail on webhook errors.
func (s *Service) Publish(ctx context.Context, event, ownerID string, data any) {
	if _, err := s.Trigger(ctx, event, ownerID, data); err != nil {
		logger.From(ctx).Error("webhook trigger failed", "event", event, "client_id", ownerID, "err", err)
	}
}

func (s *Service) owned(ctx context.Context, ownerID, id string) (Webhook, error) {
	w, err := s.repo.GetWebhook(ctx, id)
	if err != nil {
		return Webhook{}, notFound(err)
	}
	if w.OwnerID != ownerID {
		return Webhook{}, ErrWebhookNotFound
	}
	return w, nil
}

func notFound(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return ErrWebhookNotFound
	}
	return err
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func normalizeEvents(in []string) (EventList, error) {
	seen := make(map[string]bool, len(in))
	var out EventList
	for _, e := range in {
		e = strings.TrimSpace(e)
		if !KnownEvent(e) {
			return nil, ErrInvalidEvents
		}
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, ErrInvalidEvents
	}
	return out, nil
}

package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"gamecredit-platform/internal/apperr"
	"gamecredit-platform/internal/settings"
)

const responseBodyLimit = 1000

type DispatcherConfig struct {
	Workers   int
	QueueSize int
	// Defaults apply when platform settings leave a value at zero.
	Defaults Policy

	Settings settings.Provider // optional
	Limiter  Limiter           // optional
	Client   *http.Client
	Logger   *slog.Logger
}

// Dispatcher delivers persisted webhook events with a fixed worker pool.
// Retries wait in a delay queue instead of holding a worker.
type Dispatcher struct {
	repo     Repository
	defaults Policy
	settings settings.Provider
	limiter  Limiter
	client   *http.Client
	log      *slog.Logger
	clock    func() time.Time
	workers  int

	jobs chan job
	wake chan struct{}

	mu       sync.Mutex
	delayed  delayQueue
	inflight map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(repo Repository, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		repo:     repo,
		defaults: cfg.Defaults.withDefaults(),
		settings: cfg.Settings,
		limiter:  cfg.Limiter,
		client:   cfg.Client,
		log:      cfg.Logger.With("component", "webhook_dispatcher"),
		clock:    time.Now,
		workers:  cfg.Workers,
		jobs:     make(chan job, cfg.QueueSize),
		wake:     make(chan struct{}, 1),
		inflight: make(map[string]bool),
	}
}

// Start requeues deliveries left unfinished by a previous process, then starts
// the scheduler and workers. Attempts already in flight survive ctx cancellation;
// use Stop to shut down.
func (d *Dispatcher) Start(ctx context.Context) error {
	pending, err := d.repo.ListUnfinishedDeliveries(ctx)
	if err != nil {
		return fmt.Errorf("load unfinished deliveries: %w", err)
	}
	now := d.clock()
	d.mu.Lock()
	for _, p := range pending {
		due := now
		if p.NextRetryAt != nil && p.NextRetryAt.After(now) {
			due = *p.NextRetryAt
		}
		d.delayed.push(job{deliveryID: p.ID, due: due})
	}
	d.mu.Unlock()
	d.observeDepth()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel

	d.wg.Add(d.workers + 1)
	go d.schedule(runCtx)
	for i := 0; i < d.workers; i++ {
		go d.work(runCtx)
	}
	d.log.Info("webhook dispatcher started", "workers", d.workers, "requeued", len(pending))
	return nil
}

// Stop waits for workers to finish their current attempt. Queued deliveries stay
// persisted and are picked up by the next Start.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.log.Info("webhook dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue schedules an immediate attempt. A full worker queue spills into the
// delay queue so callers never block.
func (d *Dispatcher) Enqueue(del Delivery) {
	j := job{deliveryID: del.ID, due: d.clock()}
	select {
	case d.jobs <- j:
		d.observeDepth()
	default:
		d.later(j)
	}
}

func (d *Dispatcher) later(j job) {
	d.mu.Lock()
	d.delayed.push(j)
	d.mu.Unlock()
	d.observeDepth()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) observeDepth() {
	d.mu.Lock()
	n := d.delayed.Len()
	d.mu.Unlock()
	queueDepth.Set(float64(n + len(d.jobs)))
}

// schedule moves due jobs from the delay queue to the workers.
func (d *Dispatcher) schedule(ctx context.Context) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		j, wait, ok := d.delayed.popDue(d.clock())
		d.mu.Unlock()

		if ok {
			select {
			case d.jobs <- j:
				d.observeDepth()
			case <-ctx.Done():
				return
			}
			continue
		}

		var (
			t     *time.Timer
			fired <-chan time.Time
		)
		if wait >= 0 {
			t = time.NewTimer(wait)
			fired = t.C
		}
		select {
		case <-ctx.Done():
		case <-d.wake:
		case <-fired:
		}
		if t != nil {
			t.Stop()
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	// Attempts run to completion even after Stop.
	attemptCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.jobs:
			d.observeDepth()
			if !d.claim(j.deliveryID) {
				continue
			}
			d.attempt(attemptCtx, j)
			d.unclaim(j.deliveryID)
		}
	}
}

func (d *Dispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight[id] {
		return false
	}
	d.inflight[id] = true
	return true
}

func (d *Dispatcher) unclaim(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

func (d *Dispatcher) policy(ctx context.Context) Policy {
	if d.settings == nil {
		return d.defaults
	}
	s, err := d.settings.Get(ctx)
	if err != nil {
		d.log.Warn("webhook policy: settings unavailable, using defaults", "err", err)
		return d.defaults
	}
	return d.defaults.Merge(s.Webhooks)
}

func (d *Dispatcher) attempt(ctx context.Context, j job) {
	log := d.log.With("delivery_id", j.deliveryID)

	del, err := d.repo.GetDelivery(ctx, j.deliveryID)
	if err != nil {
		log.Error("load delivery", "err", err)
		return
	}
	now := d.clock()
	if del.Status.Final() {
		return
	}
	// A newer retry is already scheduled for this delivery.
	if del.NextRetryAt != nil && now.Before(*del.NextRetryAt) {
		return
	}
	log = log.With("webhook_id", del.WebhookID, "event", del.EventType)

	w, err := d.repo.GetWebhook(ctx, del.WebhookID)
	if err != nil {
		log.Error("load webhook", "err", err)
		return
	}
	if !w.IsActive {
		d.finish(ctx, log, del, DeliveryFailed, "webhook inactive")
		deliveriesTotal.WithLabelValues(del.EventType, outcomeFailed).Inc()
		return
	}

	pol := d.policy(ctx)

	if d.limiter != nil {
		ok, err := d.limiter.Acquire(ctx, w.ID)
		switch {
		case err != nil:
			log.Warn("webhook limiter unavailable, sending anyway", "err", err)
		case !ok:
			deliveriesTotal.WithLabelValues(del.EventType, outcomeThrottled).Inc()
			d.later(job{deliveryID: del.ID, due: now.Add(pol.BaseDelay)})
			return
		default:
			defer func() {
				if err := d.limiter.Release(ctx, w.ID); err != nil {
					log.Warn("release webhook slot", "err", err)
				}
			}()
		}
	}

	del.AttemptCount++
	status, body, sendErr := d.post(ctx, w, del, pol.Timeout)
	now = d.clock().UTC()
	del.ResponseStatus = status
	del.ResponseBody = body
	del.UpdatedAt = now

	if sendErr == nil {
		del.Status = DeliveryDelivered
		del.DeliveredAt = &now
		del.NextRetryAt = nil
		del.LastError = ""
		if err := d.repo.UpdateDelivery(ctx, del); err != nil {
			log.Error("save delivery", "err", err)
		}
		if err := d.repo.ResetWebhookFailures(ctx, w.ID, now); err != nil {
			log.Error("reset webhook failures", "err", err)
		}
		deliveriesTotal.WithLabelValues(del.EventType, outcomeDelivered).Inc()
		log.Info("webhook delivered", "attempt", del.AttemptCount, "status", status)
		return
	}

	del.LastError = sendErr.Error()
	failures, err := d.repo.IncrementWebhookFailures(ctx, w.ID)
	if err != nil {
		log.Error("count webhook failure", "err", err)
	}

	if del.AttemptCount < pol.MaxRetries {
		next := now.Add(Backoff(pol.BaseDelay, del.AttemptCount))
		del.Status = DeliveryRetrying
		del.NextRetryAt = &next
		if err := d.repo.UpdateDelivery(ctx, del); err != nil {
			log.Error("save delivery", "err", err)
		}
		deliveriesTotal.WithLabelValues(del.EventType, outcomeRetrying).Inc()
		log.Warn("webhook attempt failed, retrying", "attempt", del.AttemptCount, "next_retry_at", next, "err", sendErr)
		d.later(job{deliveryID: del.ID, due: next})
		return
	}

	d.finish(ctx, log, del, DeliveryFailed, del.LastError)
	deliveriesTotal.WithLabelValues(del.EventType, outcomeFailed).Inc()
	log.Warn("webhook delivery failed", "attempts", del.AttemptCount, "failure_count", failures, "err", sendErr)

	if failures >= pol.FailureThreshold {
		if err := d.repo.DeactivateWebhook(ctx, w.ID); err != nil {
			log.Error("deactivate webhook", "err", err)
			return
		}
		log.Warn("webhook deactivated", "failure_count", failures, "threshold", pol.FailureThreshold)
	}
}

func (d *Dispatcher) finish(ctx context.Context, log *slog.Logger, del Delivery, status DeliveryStatus, reason string) {
	del.Status = status
	del.NextRetryAt = nil
	del.LastError = reason
	del.UpdatedAt = d.clock().UTC()
	if err := d.repo.UpdateDelivery(ctx, del); err != nil {
		log.Error("save delivery", "err", err)
	}
}

func (d *Dispatcher) post(ctx context.Context, w Webhook, del Delivery, timeout time.Duration) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := []byte(del.Payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("%w: build request: %v", apperr.ErrTransientDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(w.SigningSecret, body))
	req.Header.Set(HeaderEvent, del.EventType)
	req.Header.Set(HeaderDeliveryID, del.ID)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(d.clock().Unix(), 10))

	start := time.Now()
	resp, err := d.client.Do(req)
	attemptDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, "", fmt.Errorf("%w: timed out after %s", apperr.ErrTransientDelivery, timeout)
		}
		return 0, "", fmt.Errorf("%w: %v", apperr.ErrTransientDelivery, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*responseBodyLimit))
	text := truncate(string(raw), responseBodyLimit)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, text, fmt.Errorf("%w: HTTP %d", apperr.ErrTransientDelivery, resp.StatusCode)
	}
	return resp.StatusCode, text, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

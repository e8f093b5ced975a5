package settings

import (
	"context"
	"sync"
	"time"

	"gamecredit-platform/pkg/logger"
)

// Provider is the read contract consumed by the referral engine and webhook dispatcher.
type Provider interface {
	Get(ctx context.Context) (Settings, error)
	Invalidate()
}

// Source loads the authoritative settings document.
type Source interface {
	Load(ctx context.Context) (Settings, error)
}

// Cache is a process-local TTL cache in front of a Source.
// A failed refresh keeps serving the last good value rather than failing callers.
type Cache struct {
	source Source
	ttl    time.Duration
	clock  func() time.Time

	mu        sync.Mutex
	cached    *Settings
	fetchedAt time.Time
}

func NewCache(source Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{source: source, ttl: ttl, clock: time.Now}
}

func (c *Cache) Get(ctx context.Context) (Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if c.cached != nil && now.Sub(c.fetchedAt) < c.ttl {
		return clone(*c.cached), nil
	}

	s, err := c.source.Load(ctx)
	if err == nil {
		s.Normalize()
		err = s.Validate()
	}
	if err != nil {
		if c.cached != nil {
			logger.From(ctx).Warn("settings refresh failed, serving stale copy", "err", err)
			return clone(*c.cached), nil
		}
		return Settings{}, err
	}

	c.cached = &s
	c.fetchedAt = now
	return clone(s), nil
}

// Invalidate drops the cached copy so the next Get reloads from the source.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

// clone copies the slices so callers cannot mutate the cached tables.
func clone(s Settings) Settings {
	out := s
	out.Tiers = append([]Tier(nil), s.Tiers...)
	out.Milestones = append([]Milestone(nil), s.Milestones...)
	return out
}

// Static serves a fixed document. Useful as a fallback source and in tests.
type Static Settings

func (s Static) Load(ctx context.Context) (Settings, error) { return clone(Settings(s)), nil }

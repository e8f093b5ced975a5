package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gamecredit-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Store persists the settings document (Postgres platform_settings row).
type Store interface {
	LoadSettings(ctx context.Context) (Settings, bool, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// StoreSource reads the stored document and falls back when none was saved yet.
type StoreSource struct {
	Store    Store
	Fallback Settings
}

func (s StoreSource) Load(ctx context.Context) (Settings, error) {
	stored, ok, err := s.Store.LoadSettings(ctx)
	if err != nil {
		return Settings{}, err
	}
	if !ok {
		return clone(s.Fallback), nil
	}
	return stored, nil
}

// LoadFile reads a YAML settings document, starting from Defaults so a seed file
// only needs the keys it changes.
func LoadFile(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	s := Defaults()
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("settings file %s: %w", path, err)
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

var redisSettingsKey = utils.Key("settings", "v1")

// RedisSource shares one decoded settings document across API instances.
// Misses fall through to Inner and are written back with TTL.
type RedisSource struct {
	Client redis.Cmdable
	Inner  Source
	TTL    time.Duration
}

func (r RedisSource) Load(ctx context.Context) (Settings, error) {
	raw, err := r.Client.Get(ctx, redisSettingsKey).Bytes()
	switch {
	case err == nil:
		var s Settings
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
		// Undecodable entry (older shape); reload from the source below.
	case errors.Is(err, redis.Nil):
	default:
		// Redis outage must not block settings reads.
		return r.Inner.Load(ctx)
	}

	s, err := r.Inner.Load(ctx)
	if err != nil {
		return Settings{}, err
	}
	if b, err := json.Marshal(s); err == nil {
		_ = r.Client.Set(ctx, redisSettingsKey, b, r.ttl()).Err()
	}
	return s, nil
}

// Invalidate removes the shared copy.
func (r RedisSource) Invalidate(ctx context.Context) error {
	return r.Client.Del(ctx, redisSettingsKey).Err()
}

func (r RedisSource) ttl() time.Duration {
	if r.TTL <= 0 {
		return 60 * time.Second
	}
	return r.TTL
}

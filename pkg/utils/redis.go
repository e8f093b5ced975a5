package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every key the platform writes to a shared Redis.
const KeyPrefix = "gamecredit"

// RedisConfig is what cmd/api passes to OpenRedis. Zero fields take defaults.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	ClientName string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.ClientName == "" {
		out.ClientName = "gamecredit-api"
	}
	def := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	def(&out.DialTimeout, 3*time.Second)
	def(&out.ReadTimeout, 2*time.Second)
	def(&out.WriteTimeout, 2*time.Second)
	def(&out.PoolTimeout, 4*time.Second)
	def(&out.ConnMaxIdleTime, 5*time.Minute)
	def(&out.ConnMaxLifetime, 30*time.Minute)
	def(&out.PingTimeout, 2*time.Second)
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.MinIdleConns < 0 {
		out.MinIdleConns = 0
	}
	return out
}

// OpenRedis connects and pings. The client backs the settings cache and the
// webhook in-flight slots.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		ClientName:      cfg.ClientName,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// Key joins parts under KeyPrefix: Key("webhook", "inflight", id).
func Key(parts ...string) string {
	return KeyPrefix + ":" + strings.Join(parts, ":")
}

// takeSlot increments the counter and gives the slot back when it overshoots.
// The expiry is refreshed on every take so a crashed holder frees its slot.
var takeSlot = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
if n > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return 1
`)

// giveSlot never leaves the counter below zero.
var giveSlot = redis.NewScript(`
if redis.call('DECR', KEYS[1]) <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

var errNoRedis = errors.New("redis client is nil")

// AcquireConcurrencyCap takes one of limit slots under key. It reports false,
// with no error, when all slots are held.
func AcquireConcurrencyCap(ctx context.Context, rdb redis.Scripter, key string, limit int, ttl time.Duration) (bool, error) {
	switch {
	case rdb == nil:
		return false, errNoRedis
	case key == "":
		return false, errors.New("slot key is required")
	case limit <= 0:
		return false, fmt.Errorf("slot limit must be > 0, got %d", limit)
	case ttl <= 0:
		return false, fmt.Errorf("slot ttl must be > 0, got %s", ttl)
	}
	n, err := takeSlot.Run(ctx, rdb, []string{key}, limit, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("take slot %s: %w", key, err)
	}
	return n == 1, nil
}

// ReleaseConcurrencyCap gives back a slot taken with AcquireConcurrencyCap.
func ReleaseConcurrencyCap(ctx context.Context, rdb redis.Scripter, key string) error {
	if rdb == nil {
		return errNoRedis
	}
	if key == "" {
		return errors.New("slot key is required")
	}
	if err := giveSlot.Run(ctx, rdb, []string{key}).Err(); err != nil {
		return fmt.Errorf("give slot %s: %w", key, err)
	}
	return nil
}

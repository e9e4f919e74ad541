package cooldown

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces cooldown keys.
const DefaultKeyPrefix = "sentinel:cooldown:"

// tryFireScript compares the stored fire time with the observation time so
// that the window is measured on observation timestamps, not the Redis clock.
//
//	KEYS[1] rule key; ARGV[1] now ms; ARGV[2] cooldown ms; ARGV[3] key ttl ms
var tryFireScript = redis.NewScript(`
local last = redis.call('GET', KEYS[1])
if last and (tonumber(ARGV[1]) - tonumber(last)) < tonumber(ARGV[2]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// RedisConfig holds connection settings for the shared tracker.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
	KeyPrefix    string        `yaml:"key_prefix"`
	// KeyTTL bounds how long a fire time is retained. It must exceed the
	// longest rule cooldown.
	KeyTTL time.Duration `yaml:"key_ttl"`
}

// DefaultRedisConfig returns the default shared-tracker configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     10,
		KeyPrefix:    DefaultKeyPrefix,
		KeyTTL:       24 * time.Hour,
	}
}

// redisBackend is the subset of the go-redis client the tracker uses.
type redisBackend interface {
	redis.Scripter
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// RedisTracker shares cooldown state between engine processes.
type RedisTracker struct {
	client redisBackend
	closer func() error
	prefix string
	ttl    time.Duration

	// windows holds the cooldown each rule was last checked with, so that
	// Record keeps the key for at least that long.
	windows sync.Map
}

// NewRedisTracker connects to Redis and verifies the connection.
func NewRedisTracker(cfg RedisConfig) (*RedisTracker, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	t := newRedisTracker(client, cfg.KeyPrefix, cfg.KeyTTL)
	t.closer = client.Close
	return t, nil
}

func newRedisTracker(client redisBackend, prefix string, ttl time.Duration) *RedisTracker {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTracker{client: client, prefix: prefix, ttl: ttl}
}

func (t *RedisTracker) key(ruleID string) string {
	return t.prefix + ruleID
}

func (t *RedisTracker) ttlFor(cooldown time.Duration) time.Duration {
	if cooldown > t.ttl {
		return cooldown
	}
	return t.ttl
}

// ShouldFire implements Tracker.
func (t *RedisTracker) ShouldFire(ctx context.Context, ruleID string, now time.Time, cooldown time.Duration) (bool, error) {
	t.windows.Store(ruleID, cooldown)
	val, err := t.client.Get(ctx, t.key(ruleID)).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("cooldown: get %s: %w", ruleID, err)
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Unreadable state is treated as no prior fire.
		return true, nil
	}
	return ready(time.UnixMilli(ms), true, now, cooldown), nil
}

// Record implements Tracker. The key expires after KeyTTL, or after the
// rule's cooldown when a longer one was passed to ShouldFire or TryFire.
func (t *RedisTracker) Record(ctx context.Context, ruleID string, now time.Time) error {
	ttl := t.ttl
	if w, ok := t.windows.Load(ruleID); ok {
		ttl = t.ttlFor(w.(time.Duration))
	}
	if err := t.client.Set(ctx, t.key(ruleID), now.UnixMilli(), ttl).Err(); err != nil {
		return fmt.Errorf("cooldown: set %s: %w", ruleID, err)
	}
	return nil
}

// TryFire implements Tracker atomically on the Redis server.
func (t *RedisTracker) TryFire(ctx context.Context, ruleID string, now time.Time, cooldown time.Duration) (bool, error) {
	t.windows.Store(ruleID, cooldown)
	res, err := tryFireScript.Run(ctx, t.client,
		[]string{t.key(ruleID)},
		now.UnixMilli(), cooldown.Milliseconds(), t.ttlFor(cooldown).Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("cooldown: try fire %s: %w", ruleID, err)
	}
	return res == 1, nil
}

// Reset implements Tracker. With no ids it scans and deletes every key
// under the tracker's prefix.
func (t *RedisTracker) Reset(ctx context.Context, ruleIDs ...string) error {
	var keys []string
	if len(ruleIDs) > 0 {
		for _, id := range ruleIDs {
			keys = append(keys, t.key(id))
		}
	} else {
		var cursor uint64
		for {
			batch, next, err := t.client.Scan(ctx, cursor, t.prefix+"*", 500).Result()
			if err != nil {
				return fmt.Errorf("cooldown: scan: %w", err)
			}
			keys = append(keys, batch...)
			if next == 0 {
				break
			}
			cursor = next
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := t.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cooldown: delete: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (t *RedisTracker) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer()
}

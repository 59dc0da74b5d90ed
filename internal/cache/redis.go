package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "listening:"

var (
	// ErrCacheDisabled is returned when no Redis client is configured
	ErrCacheDisabled = errors.New("cache is disabled")

	// ErrLockHeld is returned when another process holds the lock
	ErrLockHeld = errors.New("lock is held by another process")

	// ErrMiss is returned when a key is not cached
	ErrMiss = errors.New("cache miss")
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis wraps a Redis client. A nil *Redis is valid and behaves as a
// disabled cache.
type Redis struct {
	client *redis.Client
}

// New connects to redisURL. An empty URL disables the cache.
func New(ctx context.Context, redisURL string) (*Redis, error) {
	if redisURL == "" {
		logrus.Info("Redis cache disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.Info("Redis connection established")
	return &Redis{client: client}, nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) enabled() bool {
	return r != nil && r.client != nil
}

// Lock is a held run lock
type Lock struct {
	r     *Redis
	key   string
	token string
}

// Acquire takes the named lock for ttl or returns ErrLockHeld
func (r *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	if !r.enabled() {
		return nil, ErrCacheDisabled
	}

	key := keyPrefix + "lock:" + name
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{r: r, key: key, token: token}, nil
}

// Release drops the lock if this holder still owns it
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.r.client, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func summaryKey(campaignID string, days int) string {
	return fmt.Sprintf("%ssummary:%s:%d", keyPrefix, campaignID, days)
}

func summaryPattern(campaignID string) string {
	return fmt.Sprintf("%ssummary:%s:*", keyPrefix, campaignID)
}

// GetJSON decodes a cached value into dst
func (r *Redis) GetJSON(ctx context.Context, key string, dst interface{}) error {
	if !r.enabled() {
		return ErrCacheDisabled
	}
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// SetJSON caches value for ttl
func (r *Redis) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !r.enabled() {
		return ErrCacheDisabled
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// GetSummary loads a cached analytics summary
func (r *Redis) GetSummary(ctx context.Context, campaignID string, days int, dst interface{}) error {
	return r.GetJSON(ctx, summaryKey(campaignID, days), dst)
}

// SetSummary caches an analytics summary
func (r *Redis) SetSummary(ctx context.Context, campaignID string, days int, value interface{}, ttl time.Duration) error {
	return r.SetJSON(ctx, summaryKey(campaignID, days), value, ttl)
}

// InvalidateSummaries drops every cached summary of a campaign
func (r *Redis) InvalidateSummaries(ctx context.Context, campaignID string) error {
	if !r.enabled() {
		return ErrCacheDisabled
	}
	iter := r.client.Scan(ctx, 0, summaryPattern(campaignID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Health pings Redis
func (r *Redis) Health(ctx context.Context) error {
	if !r.enabled() {
		return ErrCacheDisabled
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	if !r.enabled() {
		return nil
	}
	return r.client.Close()
}

// Lock acquires the named lock and returns its release function
func (r *Redis) Lock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	l, err := r.Acquire(ctx, name, ttl)
	if err != nil {
		return nil, err
	}
	return l.Release, nil
}

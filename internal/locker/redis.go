package locker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis implements Locker and SeenSet on a Redis backend.
type Redis struct {
	client *redis.Client
	prefix string
}

// Connect initializes a Redis-backed locker from a URL or host:port address.
func Connect(redisURL string) (*Redis, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	return &Redis{client: client, prefix: "xgrowth:"}, nil
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "xgrowth:"}
}

func (r *Redis) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+"lock:"+key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock backend: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{key: key, token: token, release: r.releaseLock}, true, nil
}

func (r *Redis) releaseLock(ctx context.Context, key, token string) {
	full := r.prefix + "lock:" + key
	held, err := r.client.Get(ctx, full).Result()
	if err != nil || held != token {
		return
	}
	_ = r.client.Del(ctx, full).Err()
}

func (r *Redis) Seen(ctx context.Context, set, member string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+"seen:"+set+":"+member).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("seen-set backend: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) Mark(ctx context.Context, set, member string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+"seen:"+set+":"+member, "1", ttl).Err(); err != nil {
		return fmt.Errorf("seen-set backend: %w", err)
	}
	return nil
}

func (r *Redis) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+"stash:"+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("stash backend: %w", err)
	}
	return nil
}

func (r *Redis) Take(ctx context.Context, key string) (string, bool, error) {
	full := r.prefix + "stash:" + key
	val, err := r.client.Get(ctx, full).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("stash backend: %w", err)
	}
	_ = r.client.Del(ctx, full).Err()
	return val, true, nil
}

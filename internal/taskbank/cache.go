package taskbank

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/meywd/benchforge/internal/models"
)

// CachedTaskBank wraps a TaskBank with a Redis read-through cache. Tasks
// are immutable, so cached entries never need invalidation; the TTL only
// bounds memory.
type CachedTaskBank struct {
	inner  TaskBank
	client *redis.Client
	ttl    time.Duration
}

// NewCachedTaskBank creates a CachedTaskBank.
func NewCachedTaskBank(inner TaskBank, client *redis.Client, ttl time.Duration) *CachedTaskBank {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedTaskBank{inner: inner, client: client, ttl: ttl}
}

// GetTask reads through the cache.
func (b *CachedTaskBank) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	key := "task:" + taskID
	raw, err := b.client.Get(ctx, key).Bytes()
	if err == nil {
		var task models.Task
		if json.Unmarshal(raw, &task) == nil {
			return &task, nil
		}
	}
	// redis.Nil and transport errors both fall through to the source.

	task, err := b.inner.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if encoded, err := json.Marshal(task); err == nil {
		b.client.Set(ctx, key, encoded, b.ttl)
	}
	return task, nil
}

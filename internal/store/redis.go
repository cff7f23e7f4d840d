package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

const holdingsKeyPrefix = "portfolio:holdings:"

// RedisLocal stores each owner's holdings as one JSON document
type RedisLocal struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisLocal creates a Local over client. Entries expire after ttl; zero keeps them.
func NewRedisLocal(client redis.Cmdable, ttl time.Duration) *RedisLocal {
	return &RedisLocal{client: client, ttl: ttl}
}

func holdingsKey(ownerID string) string {
	return holdingsKeyPrefix + ownerID
}

// Load implements Local
func (r *RedisLocal) Load(ctx context.Context, ownerID string) ([]*models.Holding, bool, error) {
	raw, err := r.client.Get(ctx, holdingsKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load holdings: %w", err)
	}

	var holdings []*models.Holding
	if err := json.Unmarshal(raw, &holdings); err != nil {
		return nil, false, fmt.Errorf("failed to decode holdings: %w", err)
	}
	return holdings, true, nil
}

// Save implements Local
func (r *RedisLocal) Save(ctx context.Context, ownerID string, holdings []*models.Holding) error {
	if holdings == nil {
		holdings = []*models.Holding{}
	}
	data, err := json.Marshal(holdings)
	if err != nil {
		return fmt.Errorf("failed to encode holdings: %w", err)
	}
	if err := r.client.Set(ctx, holdingsKey(ownerID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save holdings: %w", err)
	}
	return nil
}

// Delete implements Local
func (r *RedisLocal) Delete(ctx context.Context, ownerID string) error {
	if err := r.client.Del(ctx, holdingsKey(ownerID)).Err(); err != nil {
		return fmt.Errorf("failed to delete holdings: %w", err)
	}
	return nil
}

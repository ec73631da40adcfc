package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samogod/mentorloop/pkg/config"
	"github.com/samogod/mentorloop/pkg/types"

	"github.com/redis/go-redis/v9"
)

// Redis stores corrections in a capped list so they survive restarts and can
// be shared between runs.
type Redis struct {
	client   *redis.Client
	key      string
	capacity int
}

func NewRedis(ctx context.Context, cfg *config.Memory) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	if DebugLog != nil {
		DebugLog("connected to redis at %s", cfg.Addr)
	}

	return NewRedisWithClient(client, cfg.Prefix, cfg.Capacity), nil
}

func NewRedisWithClient(client *redis.Client, prefix string, capacity int) *Redis {
	if prefix == "" {
		prefix = "mentorloop:corrections"
	}
	if capacity <= 0 {
		capacity = 100
	}
	return &Redis{client: client, key: prefix, capacity: capacity}
}

func (r *Redis) Add(ctx context.Context, c types.Correction) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal correction: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, data)
	pipe.LTrim(ctx, r.key, 0, int64(r.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store correction: %w", err)
	}
	return nil
}

func (r *Redis) Recent(ctx context.Context, topic string, n int) ([]types.Correction, error) {
	if n <= 0 {
		return nil, nil
	}

	raw, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read corrections: %w", err)
	}

	items := make([]types.Correction, 0, len(raw))
	for _, entry := range raw {
		var c types.Correction
		if err := json.Unmarshal([]byte(entry), &c); err != nil {
			if DebugLog != nil {
				DebugLog("skipping malformed correction entry: %v", err)
			}
			continue
		}
		items = append(items, c)
	}
	return pickRecent(items, topic, n), nil
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count corrections: %w", err)
	}
	return int(n), nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

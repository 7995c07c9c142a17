package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/altinn-access/go-core/pkg/types"
)

// RedisQueueConfig configures the redis stream event sink.
type RedisQueueConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// DefaultRedisQueueConfig returns the default stream configuration.
func DefaultRedisQueueConfig() RedisQueueConfig {
	return RedisQueueConfig{
		Addr:   "localhost:6379",
		Stream: "delegationevents",
		MaxLen: 100000,
	}
}

// RedisQueue publishes delegation changes to a redis stream.
type RedisQueue struct {
	client redis.UniversalClient
	config RedisQueueConfig
	logger *zap.Logger
}

// NewRedisQueue connects to redis and returns the stream sink.
func NewRedisQueue(config RedisQueueConfig, logger *zap.Logger) (*RedisQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Stream == "" {
		config.Stream = "delegationevents"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisQueue{client: client, config: config, logger: logger}, nil
}

// NewRedisQueueWithClient wraps an existing client (tests).
func NewRedisQueueWithClient(client redis.UniversalClient, config RedisQueueConfig, logger *zap.Logger) *RedisQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Stream == "" {
		config.Stream = "delegationevents"
	}
	return &RedisQueue{client: client, config: config, logger: logger}
}

// Push appends the change to the stream.
func (q *RedisQueue) Push(ctx context.Context, change *types.DelegationChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal delegation change: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: q.config.Stream,
		Approx: true,
		MaxLen: q.config.MaxLen,
		Values: map[string]interface{}{
			"changeId":   change.DelegationChangeID,
			"changeType": string(change.Type),
			"payload":    payload,
		},
	}
	if err := q.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish delegation change %d: %w", change.DelegationChangeID, err)
	}
	return nil
}

// Close releases the redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

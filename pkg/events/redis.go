package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zjoart/go-monnify-wallet/pkg/config"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
)

const (
	NotificationQueue = "notification_events"
	FailedQueue       = "failed_notification_events"
	FlaggedQueue      = "flagged_webhook_events"
)

// ErrEmpty is returned by Pop when nothing arrived before the timeout.
var ErrEmpty = errors.New("queue empty")

type RedisClient struct {
	Client *redis.Client
}

func NewRedisClient(cfg config.Config) *RedisClient {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to parse Redis url", logger.Fields{"error": err.Error()})
		opt = &redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		}
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("Failed to connect to Redis", logger.Fields{"error": err.Error(), "addr": opt.Addr})
	} else {
		logger.Info("Connected to Redis", logger.Fields{"addr": opt.Addr})
	}

	return &RedisClient{Client: rdb}
}

func (r *RedisClient) Push(ctx context.Context, queue string, payload interface{}) error {
	data, ok := payload.([]byte)
	if !ok {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
	}

	if err := r.Client.RPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to push event to %s: %w", queue, err)
	}
	return nil
}

// Pop blocks for up to timeout waiting for the next entry on queue.
func (r *RedisClient) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	result, err := r.Client.BLPop(ctx, timeout, queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	return []byte(result[1]), nil
}

func (r *RedisClient) PushToDLQ(ctx context.Context, data []byte) error {
	return r.Push(ctx, FailedQueue, data)
}

// Flag parks a webhook that was acknowledged but could not be applied, for
// manual review.
func (r *RedisClient) Flag(ctx context.Context, reason string, payload []byte) error {
	return r.Push(ctx, FlaggedQueue, FlaggedEvent{
		Reason:    reason,
		Payload:   json.RawMessage(payload),
		FlaggedAt: time.Now().UTC(),
	})
}

type FlaggedEvent struct {
	Reason    string          `json:"reason"`
	Payload   json.RawMessage `json:"payload"`
	FlaggedAt time.Time       `json:"flagged_at"`
}

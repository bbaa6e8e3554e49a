// Package events publishes line status changes to a Redis stream so other
// services can follow the plant state without polling.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"line-status-backend/config"
	"line-status-backend/internal/model"
)

const publishTimeout = 2 * time.Second

// NewRedisClient creates a client from the redis configuration section.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisPublisher appends every status change to a stream with XADD.
type RedisPublisher struct {
	client *redis.Client
	stream string
	log    *zap.Logger
}

// NewRedisPublisher creates a publisher writing to stream.
func NewRedisPublisher(client *redis.Client, stream string, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, log: log}
}

// LineStatusChanged publishes the change. Failures are logged and dropped.
func (p *RedisPublisher) LineStatusChanged(ctx context.Context, change model.StatusChange) {
	if _, err := p.Publish(ctx, change); err != nil {
		p.log.Error("failed to publish status change",
			zap.String("stream", p.stream),
			zap.String("line_id", change.LineID),
			zap.Error(err))
	}
}

// Publish writes one entry and returns its stream ID.
func (p *RedisPublisher) Publish(ctx context.Context, change model.StatusChange) (string, error) {
	data, err := json.Marshal(change)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"line_id":  change.LineID,
			"previous": string(change.Previous),
			"status":   string(change.Status),
			"forced":   strconv.FormatBool(change.Forced),
			"at":       change.At.UTC().Format(time.RFC3339),
			"data":     string(data),
		},
	}).Result()
}

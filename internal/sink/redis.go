package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/product-card-scraper/internal/models"
	"github.com/redis/go-redis/v9"
)

const DefaultStream = "products:extracted"

// RedisClient is the subset of *redis.Client the stream sink needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisStream publishes each record as a stream entry so downstream
// consumers can pick extracted products up.
type RedisStream struct {
	client RedisClient
	stream string
	maxLen int64
	logger *slog.Logger
}

func NewRedisStream(client RedisClient, stream string, maxLen int64, logger *slog.Logger) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStream{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.With("component", "redis_sink"),
	}
}

func (r *RedisStream) Write(ctx context.Context, record models.ProductRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"data":        string(data),
			"type":        "product.extracted",
			"vendor_code": record.VendorCode,
			"timestamp":   fmt.Sprintf("%d", time.Now().UnixNano()),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	id, err := r.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	r.logger.Debug("record published", "stream", r.stream, "id", id, "vendor_code", record.VendorCode)
	return nil
}

func (r *RedisStream) Close() error {
	return r.client.Close()
}

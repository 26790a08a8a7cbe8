package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aluiziolira/go-scrape-watchcount/models"
)

// RedisWriter appends records to a Redis stream, one entry per listing.
type RedisWriter struct {
	client  *redis.Client
	stream  string
	runID   string
	timeout time.Duration
}

// NewRedisWriter connects to addr and verifies the server answers.
func NewRedisWriter(ctx context.Context, addr, stream, runID string) (*RedisWriter, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &RedisWriter{
		client:  client,
		stream:  stream,
		runID:   runID,
		timeout: 5 * time.Second,
	}, nil
}

// Write adds one stream entry with a field per column.
func (rw *RedisWriter) Write(record *models.ListingRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), rw.timeout)
	defer cancel()

	err := rw.client.XAdd(ctx, &redis.XAddArgs{
		Stream: rw.stream,
		Values: map[string]interface{}{
			"run_id":       rw.runID,
			"price":        record.Price,
			"link":         record.Link,
			"watchers":     record.Watchers,
			"title":        record.Title,
			"start_date":   record.StartDate,
			"end_date":     record.EndDate,
			"running_time": record.RunningTime,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", rw.stream, err)
	}
	return nil
}

// Close closes the Redis connection.
func (rw *RedisWriter) Close() error {
	return rw.client.Close()
}

// Validate checks the stream exists.
func (rw *RedisWriter) Validate() error {
	ctx, cancel := context.WithTimeout(context.Background(), rw.timeout)
	defer cancel()
	if err := rw.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unavailable: %w", err)
	}
	return nil
}

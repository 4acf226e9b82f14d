// Package redisq pushes run manifests onto a Redis list for downstream
// uploaders.
package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tiroq/qacut/internal/sink"
)

// Config describes the queue.
type Config struct {
	Addr        string
	Password    string
	DB          int
	Queue       string
	DialTimeout time.Duration
}

// Queue is a Redis-backed sink. A transcript is queued at most once per
// output directory, so reruns over the same inputs do not enqueue
// duplicates. The set "<queue>:seen" records published source and output
// directory pairs.
type Queue struct {
	client  *redis.Client
	queue   string
	seenSet string
}

// New returns a queue sink. The client connects lazily.
func New(cfg Config) *Queue {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
		opts.ReadTimeout = cfg.DialTimeout
		opts.WriteTimeout = cfg.DialTimeout
		opts.MaxRetries = -1
	}
	return &Queue{
		client:  redis.NewClient(opts),
		queue:   cfg.Queue,
		seenSet: cfg.Queue + ":seen",
	}
}

func (q *Queue) Name() string { return "redis" }

// seenKey identifies a manifest across runs. Run ids are fresh every run and
// cannot serve.
func seenKey(m *sink.Manifest) string {
	return filepath.Clean(m.Source) + "|" + filepath.Clean(m.OutDir)
}

// Publish queues m unless a manifest for the same source and output
// directory was queued before.
func (q *Queue) Publish(ctx context.Context, m *sink.Manifest) error {
	key := seenKey(m)
	added, err := q.client.SAdd(ctx, q.seenSet, key).Result()
	if err != nil {
		return fmt.Errorf("error adding to seen set: %w", err)
	}
	if added == 0 {
		return nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		q.client.SRem(ctx, q.seenSet, key)
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := q.client.RPush(ctx, q.queue, data).Err(); err != nil {
		q.client.SRem(ctx, q.seenSet, key)
		return fmt.Errorf("error adding to queue: %w", err)
	}
	return nil
}

// Len returns the current queue length.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.queue).Result()
	if err != nil {
		return 0, fmt.Errorf("error getting queue length: %w", err)
	}
	return n, nil
}

// Close closes the Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

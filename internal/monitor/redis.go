// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisOptions configures a RedisPublisher. An empty Channel disables
// Pub/Sub; an empty ListKey disables the history list.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	ListKey  string
	MaxLen   int64
}

// RedisPublisher publishes snapshots as JSON to a Redis channel and keeps
// the newest MaxLen of them in a list.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	listKey string
	maxLen  int64
	log     logrus.FieldLogger
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher connects to Redis and verifies the connection
func NewRedisPublisher(ctx context.Context, opts RedisOptions, log logrus.FieldLogger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connect failed (%s): %w", opts.Addr, err)
	}
	log.WithField("addr", opts.Addr).Info("Redis connected")
	return newRedisPublisher(client, opts, log), nil
}

func newRedisPublisher(client *redis.Client, opts RedisOptions, log logrus.FieldLogger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: opts.Channel,
		listKey: opts.ListKey,
		maxLen:  opts.MaxLen,
		log:     log,
	}
}

// Publish sends s to the channel and pushes it onto the history list
func (r *RedisPublisher) Publish(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if r.channel != "" {
		if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
			return fmt.Errorf("publish to %s: %w", r.channel, err)
		}
	}

	if r.listKey == "" {
		return nil
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.listKey, data)
	if r.maxLen > 0 {
		pipe.LTrim(ctx, r.listKey, 0, r.maxLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.WithError(err).WithField("key", r.listKey).Warn("History update failed")
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisPublisher) Close() error {
	return r.client.Close()
}

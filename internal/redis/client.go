package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

// NewClient connects and pings. An unreachable server is an error so callers
// can fall back to in-memory implementations.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// SessionEventChannel is the pubsub channel carrying chat events for one session.
func SessionEventChannel(sessionID string) string {
	return fmt.Sprintf("chat-events:%s", sessionID)
}

// RateLimitKey namespaces limiter buckets.
func RateLimitKey(scope, id string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, id)
}

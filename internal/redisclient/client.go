package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const listingsKey = "listings:all"

// Client is a thin wrapper around Redis used to cache the property
// listing read path. The ledger stays authoritative; the cache is
// invalidated on every committed write that touches properties.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetListings returns the cached serialized listing page, if present.
func (c *Client) GetListings(ctx context.Context) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, listingsKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// SetListings caches the serialized listing page with a TTL.
func (c *Client) SetListings(ctx context.Context, data []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, listingsKey, data, ttl).Err()
}

// InvalidateListings drops the cached listing page.
func (c *Client) InvalidateListings(ctx context.Context) error {
	return c.rdb.Del(ctx, listingsKey).Err()
}

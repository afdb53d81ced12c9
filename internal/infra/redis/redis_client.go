package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai-playground/internal/config"

	"github.com/go-redis/redis/v8"
)

// Client owns the go-redis connection. Stores in this package use the raw
// client directly for pipelines and scripts.
type Client struct {
	cli *redis.Client
}

// NewClient accepts either a redis:// URL or a bare host:port in cfg.URL.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	var opts *redis.Options
	if strings.Contains(cfg.URL, "://") {
		o, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, err
		}
		opts = o
		if cfg.Password != "" {
			opts.Password = cfg.Password
		}
	} else {
		opts = &redis.Options{
			Addr:     cfg.URL,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &Client{cli: c}, nil
}

func (c *Client) Ping(ctx context.Context) error { return c.cli.Ping(ctx).Err() }

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.cli.Del(ctx, keys...).Err()
}

func (c *Client) Close() error { return c.cli.Close() }

// windowHit increments KEYS[1] and starts its expiry on the first hit of a
// window, in one round trip. Returns the count and the remaining ms.
var windowHit = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}`)

// Hit counts one event in the fixed window stored at key.
func (c *Client) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := windowHit.Run(ctx, c.cli, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("redis: unexpected window reply %v", res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

// FlushDB wipes the selected database. Only setup tooling calls it.
func (c *Client) FlushDB(ctx context.Context) error { return c.cli.FlushDB(ctx).Err() }

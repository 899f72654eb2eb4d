package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotOwner is returned when the ownership lease is held by another instance.
var ErrNotOwner = errors.New("minter lease is held by another instance")

// Client wraps the Redis operations used to coordinate minter instances.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func ownerKey(networkCode string) string {
	return fmt.Sprintf("minter_owner:%s", networkCode)
}

// Compare-and-set scripts so an instance never touches a lease it does not hold.
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// AcquireOwnership takes the single-writer lease of a network for owner. It
// succeeds when the lease is free or already held by owner.
func (c *Client) AcquireOwnership(
	ctx context.Context,
	networkCode, owner string,
	ttl time.Duration,
) error {
	key := ownerKey(networkCode)
	ok, err := c.rdb.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return fmt.Errorf("setnx failed: %w", err)
	}
	if ok {
		return nil
	}
	return c.RefreshOwnership(ctx, networkCode, owner, ttl)
}

// RefreshOwnership extends the lease TTL if owner still holds it.
func (c *Client) RefreshOwnership(
	ctx context.Context,
	networkCode, owner string,
	ttl time.Duration,
) error {
	n, err := refreshScript.Run(ctx, c.rdb, []string{ownerKey(networkCode)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lease failed: %w", err)
	}
	if n == 0 {
		return ErrNotOwner
	}
	return nil
}

// ReleaseOwnership drops the lease if owner holds it.
func (c *Client) ReleaseOwnership(ctx context.Context, networkCode, owner string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{ownerKey(networkCode)}, owner).Err(); err != nil {
		return fmt.Errorf("release lease failed: %w", err)
	}
	return nil
}

// CurrentOwner returns the instance holding the lease, or "" when it is free.
func (c *Client) CurrentOwner(ctx context.Context, networkCode string) (string, error) {
	owner, err := c.rdb.Get(ctx, ownerKey(networkCode)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get failed: %w", err)
	}
	return owner, nil
}

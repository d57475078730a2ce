package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"grocery-service/internal/models"
	"grocery-service/internal/port"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/claim_idempotency.lua
var claimIdempotencyScript string

//go:embed scripts/complete_idempotency.lua
var completeIdempotencyScript string

//go:embed scripts/release_idempotency.lua
var releaseIdempotencyScript string

const pendingPrefix = "pending:"

type Client struct {
	rdb            *redis.Client
	cartTTL        time.Duration
	claimScript    *redis.Script
	completeScript *redis.Script
	releaseScript  *redis.Script
}

var (
	_ port.CartStore        = (*Client)(nil)
	_ port.IdempotencyStore = (*Client)(nil)
)

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int, cartTTL time.Duration) (*Client, error) {
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

	return &Client{
		rdb:            rdb,
		cartTTL:        cartTTL,
		claimScript:    redis.NewScript(claimIdempotencyScript),
		completeScript: redis.NewScript(completeIdempotencyScript),
		releaseScript:  redis.NewScript(releaseIdempotencyScript),
	}, nil
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func cartKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// GetCart loads the stored cart, or an empty one
func (c *Client) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	raw, err := c.rdb.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewCart(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	cart := models.NewCart(userID)
	if err := json.Unmarshal(raw, cart); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return cart, nil
}

// SaveCart stores the cart and refreshes its TTL
func (c *Client) SaveCart(ctx context.Context, cart *models.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	return c.rdb.Set(ctx, cartKey(cart.UserID), raw, c.cartTTL).Err()
}

// DeleteCart removes the stored cart
func (c *Client) DeleteCart(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, cartKey(userID)).Err()
}

// Claim atomically reserves an idempotency key using Lua script
func (c *Client) Claim(ctx context.Context, key, token string, ttl time.Duration) (string, bool, error) {
	result, err := c.claimScript.Run(ctx, c.rdb, []string{idempotencyKey(key)},
		pendingPrefix+token, ttl.Milliseconds()).Result()
	if errors.Is(err, redis.Nil) {
		return "", true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("claim idempotency script failed: %w", err)
	}

	current, ok := result.(string)
	if !ok {
		return "", false, fmt.Errorf("unexpected script result type")
	}
	if strings.HasPrefix(current, pendingPrefix) {
		return "", false, nil
	}
	return current, false, nil
}

// Complete records the order created under a claimed key
func (c *Client) Complete(ctx context.Context, key, token, orderID string, ttl time.Duration) error {
	result, err := c.completeScript.Run(ctx, c.rdb, []string{idempotencyKey(key)},
		pendingPrefix+token, orderID, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("complete idempotency script failed: %w", err)
	}
	if result == 0 {
		return fmt.Errorf("idempotency key %s is no longer held", key)
	}
	return nil
}

// Release frees a claimed key so the request can be retried
func (c *Client) Release(ctx context.Context, key, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{idempotencyKey(key)}, pendingPrefix+token).Result()
	if err != nil {
		return fmt.Errorf("release idempotency script failed: %w", err)
	}
	return nil
}

// Package cache is the local key-value persistence shim. It stores the last
// known session per browser context and, in fallback mode, the user registry.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/pharmacare-storefront/pkg/clientctx"
	"github.com/angelmondragon/pharmacare-storefront/pkg/config"
)

// Store is the raw substrate. Get reports found=false for a missing key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Cache layers JSON values and the fixed storefront keys over a Store.
type Cache struct {
	store    Store
	userKey  string
	authKey  string
	registry string
}

// New builds a cache over store using the configured key constants.
func New(store Store, cfg config.StorageConfig) (*Cache, error) {
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if strings.TrimSpace(cfg.UserKey) == "" || strings.TrimSpace(cfg.AuthKey) == "" {
		return nil, errors.New("cache keys are required")
	}
	return &Cache{
		store:    store,
		userKey:  cfg.UserKey,
		authKey:  cfg.AuthKey,
		registry: cfg.RegistryKey(),
	}, nil
}

// CurrentUserKey is the session slot for the browser context bound to ctx.
func (c *Cache) CurrentUserKey(ctx context.Context) string {
	return scoped(ctx, c.userKey)
}

// AuthTokenKey is the backend token slot for the browser context bound to ctx.
func (c *Cache) AuthTokenKey(ctx context.Context) string {
	return scoped(ctx, c.authKey)
}

// RegistryKey is the shared fallback user registry key.
func (c *Cache) RegistryKey() string {
	return c.registry
}

// GetJSON decodes the value stored at key into dest.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !found || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes value and stores it at key.
func (c *Cache) SetJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key; removing a missing key is not an error.
func (c *Cache) Remove(ctx context.Context, key string) error {
	if err := c.store.Remove(ctx, key); err != nil {
		return fmt.Errorf("cache remove %s: %w", key, err)
	}
	return nil
}

// Ping checks the underlying store.
func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

func scoped(ctx context.Context, key string) string {
	return "client:" + clientctx.ID(ctx) + ":" + key
}

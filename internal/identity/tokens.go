package identity

import (
	"context"
	"time"
)

// slotCache is the subset of the local cache used for the per-client token slot.
type slotCache interface {
	AuthTokenKey(ctx context.Context) string
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
}

// tokenPair is what the browser context keeps between requests.
type tokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type tokenSlot struct {
	cache slotCache
}

func (s tokenSlot) load(ctx context.Context) (*tokenPair, error) {
	var pair tokenPair
	ok, err := s.cache.GetJSON(ctx, s.cache.AuthTokenKey(ctx), &pair)
	if err != nil || !ok {
		return nil, err
	}
	if pair.AccessToken == "" {
		return nil, nil
	}
	return &pair, nil
}

func (s tokenSlot) save(ctx context.Context, pair tokenPair) error {
	return s.cache.SetJSON(ctx, s.cache.AuthTokenKey(ctx), pair)
}

func (s tokenSlot) clear(ctx context.Context) error {
	return s.cache.Remove(ctx, s.cache.AuthTokenKey(ctx))
}

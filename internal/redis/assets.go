package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/koios/matrx-watchface/internal/ingest"
	"github.com/redis/go-redis/v9"
)

// AssetStore resolves icon references to bytes stored under a key prefix
type AssetStore struct {
	client *Client
	prefix string
}

// NewAssetStore creates an asset store reading keys of the form prefix+ref
func NewAssetStore(client *Client, prefix string) *AssetStore {
	return &AssetStore{client: client, prefix: prefix}
}

// Key builds the Redis key for an asset reference
func (a *AssetStore) Key(ref string) string {
	// Clean ref to remove any potential path separators
	return a.prefix + strings.ReplaceAll(ref, "/", "_")
}

// Fetch returns the asset bytes or ingest.ErrAssetNotFound
func (a *AssetStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	data, err := a.client.client.Get(ctx, a.Key(ref)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ingest.ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", ref, err)
	}
	return data, nil
}

// Put stores an asset; a ttl of zero keeps it forever
func (a *AssetStore) Put(ctx context.Context, ref string, data []byte, ttl time.Duration) error {
	if err := a.client.client.Set(ctx, a.Key(ref), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set asset %s: %w", ref, err)
	}
	return nil
}

// Delete removes an asset
func (a *AssetStore) Delete(ctx context.Context, ref string) error {
	if err := a.client.client.Del(ctx, a.Key(ref)).Err(); err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", ref, err)
	}
	return nil
}

package ingest

import (
	"context"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
)

type assetItem struct {
	data      []byte
	expiresAt time.Time
}

// MemoryAssets is an in-process asset store with a sliding TTL, used for
// assets uploaded directly to the device host
type MemoryAssets struct {
	clk   clock.Clock
	ttl   time.Duration
	mu    sync.Mutex
	items map[string]*assetItem
}

// NewMemoryAssets creates a store; a ttl <= 0 keeps assets forever
func NewMemoryAssets(clk clock.Clock, ttl time.Duration) *MemoryAssets {
	return &MemoryAssets{
		clk:   clk,
		ttl:   ttl,
		items: make(map[string]*assetItem),
	}
}

// Put stores a copy of data under ref
func (m *MemoryAssets) Put(ref string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[ref] = &assetItem{
		data:      append([]byte(nil), data...),
		expiresAt: m.expiry(),
	}
}

// Fetch returns the asset; getting an item extends its TTL
func (m *MemoryAssets) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item, found := m.items[ref]
	if !found {
		return nil, ErrAssetNotFound
	}
	if m.ttl > 0 && m.clk.Now().After(item.expiresAt) {
		delete(m.items, ref)
		return nil, ErrAssetNotFound
	}
	item.expiresAt = m.expiry()
	return item.data, nil
}

// Delete forgets an asset
func (m *MemoryAssets) Delete(ref string) {
	m.mu.Lock()
	delete(m.items, ref)
	m.mu.Unlock()
}

// Len returns the number of stored assets, expired ones included
func (m *MemoryAssets) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryAssets) expiry() time.Time {
	if m.ttl <= 0 {
		return time.Time{}
	}
	return m.clk.Now().Add(m.ttl)
}

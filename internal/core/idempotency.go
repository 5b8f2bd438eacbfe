package core

import (
	"container/list"
	"context"
	"fmt"
)

// Duplicate tiers, used as the metric label.
const (
	TierLRU   = "lru"
	TierStore = "store"
)

// IdempotencyChecker implements two-tier deduplication: an in-memory LRU in
// front of the persisted ProcessedEvent markers.
type IdempotencyChecker struct {
	lru   *IdempotencyLRU
	store ProcessedChecker
}

// ProcessedChecker looks up a persisted marker for an idempotency key.
type ProcessedChecker interface {
	IsProcessed(ctx context.Context, key string) (bool, error)
}

func NewIdempotencyChecker(capacity int, store ProcessedChecker) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:   NewIdempotencyLRU(capacity),
		store: store,
	}
}

// IsDuplicate reports whether the event was already applied and which tier
// answered. A store error is returned: treating it as "not seen" would
// apply the event twice.
func (ic *IdempotencyChecker) IsDuplicate(ctx context.Context, eventType, idempotencyKey string) (bool, string, error) {
	compositeKey := fmt.Sprintf("%s:%s", eventType, idempotencyKey)

	if ic.lru.Contains(compositeKey) {
		return true, TierLRU, nil
	}

	if ic.store != nil {
		seen, err := ic.store.IsProcessed(ctx, idempotencyKey)
		if err != nil {
			return false, TierStore, fmt.Errorf("processed marker %s: %w", idempotencyKey, err)
		}
		if seen {
			ic.lru.Add(compositeKey)
			return true, TierStore, nil
		}
	}

	return false, "", nil
}

// MarkProcessed adds key to LRU after the event's writes are flushed.
func (ic *IdempotencyChecker) MarkProcessed(eventType, idempotencyKey string) {
	ic.lru.Add(fmt.Sprintf("%s:%s", eventType, idempotencyKey))
}

// Reset empties the LRU. The store tier is cleared by Store.Reset.
func (ic *IdempotencyChecker) Reset() {
	ic.lru = NewIdempotencyLRU(ic.lru.capacity)
}

// LRU exposes the first tier for metrics.
func (ic *IdempotencyChecker) LRU() *IdempotencyLRU {
	return ic.lru
}

// --- LRU Implementation ---

// IdempotencyLRU is an LRU cache for idempotency keys.
// Not thread-safe: only accessed from the reducer goroutine.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

type lruEntry struct {
	key string
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

// Contains checks if key exists (promotes to front)
func (lru *IdempotencyLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts a key (or promotes if exists)
func (lru *IdempotencyLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	elem := lru.lruList.PushFront(&lruEntry{key: key})
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *IdempotencyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		entry := elem.Value.(*lruEntry)
		delete(lru.cache, entry.key)
		lru.evictions++
	}
}

// Size returns current number of entries
func (lru *IdempotencyLRU) Size() int {
	return lru.lruList.Len()
}

// Evictions returns total evictions (for metrics)
func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}

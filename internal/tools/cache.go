// Package tools implements the Tool Registry: mediates external tool
// calls, enforces budgets, records invocations, and provides a result
// cache. Grounded on original_source/backend/tools/{cache,guardrail,registry}.py.
package tools

import (
	"container/list"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type cacheEntry struct {
	key       string
	value     json.RawMessage
	expiresAt time.Time
}

// Cache is a process-in-memory TTL+LRU cache for tool results, scoped to a
// single session (per DESIGN.md Open Question 2).
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	items   map[string]*list.Element
	order   *list.List
	now     func() time.Time
}

// NewCache creates a cache with the given TTL (seconds) and max entry count.
func NewCache(ttlSeconds, maxSize int) *Cache {
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		ttl:     time.Duration(ttlSeconds) * time.Second,
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// BuildKey canonicalizes the given fields into a stable cache key, mirroring
// tools/cache.py's build_key: JSON-marshal with sorted keys (Go maps already
// serialize sorted), then SHA-256 hash.
func BuildKey(toolName, sessionID, canonicalInput string) string {
	payload := map[string]interface{}{
		"tool_name":       toolName,
		"session_id":      sessionID,
		"canonical_input": canonicalInput,
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%x", sum)
}

// CanonicalizeInput produces a stable string form of an arbitrary payload
// for use as part of a cache key.
func CanonicalizeInput(input interface{}) string {
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return string(raw)
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	cp := make(json.RawMessage, len(entry.value))
	copy(cp, entry.value)
	return cp, true
}

// Set stores value under key, evicting the least-recently-used entry once
// the cache exceeds its max size.
func (c *Cache) Set(key string, value json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make(json.RawMessage, len(value))
	copy(cp, value)

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).value = cp
		el.Value.(*cacheEntry).expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}
	entry := &cacheEntry{key: key, value: cp, expiresAt: c.now().Add(c.ttl)}
	el := c.order.PushFront(entry)
	c.items[key] = el

	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

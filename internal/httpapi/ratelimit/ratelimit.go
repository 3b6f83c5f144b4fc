// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

// Package ratelimit implements a fixed-window request limiter keyed by client
// address, used to slow down credential guessing on the login endpoint.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Defaults for the login endpoint window.
const (
	DefaultLimit  = 5
	DefaultWindow = 15 * time.Minute

	sweepInterval = 5 * time.Minute
)

// Store counts requests per key inside a fixed window. Implementations must
// be safe for concurrent use.
type Store interface {
	// Increment records one request for key and returns the resulting count
	// within the current window plus the time the window resets.
	Increment(key string, window time.Duration, now time.Time) (count int, reset time.Time)
}

type windowEntry struct {
	count int
	start time.Time
}

// MemoryStore is the in-process Store. Windows are tracked per key and stale
// entries are swept opportunistically on Increment.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*windowEntry
	lastSweep time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]*windowEntry),
		lastSweep: time.Now(),
	}
}

// Increment implements Store.
func (s *MemoryStore) Increment(key string, window time.Duration, now time.Time) (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= sweepInterval {
		for k, entry := range s.entries {
			if now.Sub(entry.start) >= window {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}

	entry, ok := s.entries[key]
	if !ok || now.Sub(entry.start) >= window {
		entry = &windowEntry{count: 0, start: now}
		s.entries[key] = entry
	}
	entry.count++
	return entry.count, entry.start.Add(window)
}

// Limiter applies a fixed-window limit over a Store.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

// NewLimiter creates a Limiter. Non-positive limit or window fall back to the
// defaults.
func NewLimiter(store Store, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Limiter{store: store, limit: limit, window: window}
}

// Allow records a request for key. When the window is exhausted it returns
// false and the duration until the window resets.
func (l *Limiter) Allow(key string, now time.Time) (bool, time.Duration) {
	count, reset := l.store.Increment(key, l.window, now)
	if count > l.limit {
		return false, reset.Sub(now)
	}
	return true, 0
}

// ClientKey derives the limiter key for a request. The first address in
// X-Forwarded-For wins so the limit follows the real client behind a proxy;
// otherwise the connection's remote address is used.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

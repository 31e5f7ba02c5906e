// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package index assigns dense integer ids to string keys.
//
// Ids start at 1 and follow first-seen order. Id 0 is reserved for
// "unknown". Catalog and usage parsing share one item map, so GetOrAdd
// is atomic: concurrent callers registering the same key all observe the
// same id and no id is handed out twice.
package index

import "sync"

// Map is a concurrent string to uint32 registry.
type Map struct {
	mu   sync.RWMutex
	ids  map[string]uint32
	keys []string // keys[id-1] is the key for id
}

// New creates an empty map.
func New() *Map {
	return &Map{ids: make(map[string]uint32)}
}

// GetOrAdd returns the id for key, assigning the next dense id on first sight.
func (m *Map) GetOrAdd(key string) uint32 {
	m.mu.RLock()
	id, ok := m.ids[key]
	m.mu.RUnlock()
	if ok {
		return id
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another goroutine may have assigned it between the locks.
	if id, ok := m.ids[key]; ok {
		return id
	}
	m.keys = append(m.keys, key)
	id = uint32(len(m.keys))
	m.ids[key] = id
	return id
}

// Get returns the id for key, or 0 and false when the key is unknown.
func (m *Map) Get(key string) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.ids[key]
	return id, ok
}

// Key returns the key registered under id.
func (m *Map) Key(id uint32) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id == 0 || int(id) > len(m.keys) {
		return "", false
	}
	return m.keys[id-1], true
}

// Len returns the number of registered keys, which is also the highest id.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Keys returns a copy of the reverse index: position i holds the key for id i+1.
func (m *Map) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Clear drops every entry. Ids handed out before Clear must not be reused with this map.
func (m *Map) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = make(map[string]uint32)
	m.keys = nil
}

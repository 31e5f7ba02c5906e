// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package index

import (
	"fmt"
	"sync"
	"testing"
)

func TestMap_DenseFirstSeenOrder(t *testing.T) {
	m := New()
	keys := []string{"b", "a", "c", "a", "b"}
	want := []uint32{1, 2, 3, 2, 1}

	for i, k := range keys {
		if got := m.GetOrAdd(k); got != want[i] {
			t.Errorf("GetOrAdd(%q) = %d, want %d", k, got, want[i])
		}
	}
	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}

	rev := m.Keys()
	if len(rev) != 3 || rev[0] != "b" || rev[1] != "a" || rev[2] != "c" {
		t.Errorf("Keys() = %v, want [b a c]", rev)
	}
}

func TestMap_GetAndKey(t *testing.T) {
	m := New()
	m.GetOrAdd("item-1")

	if id, ok := m.Get("item-1"); !ok || id != 1 {
		t.Errorf("Get(item-1) = %d,%v want 1,true", id, ok)
	}
	if id, ok := m.Get("missing"); ok || id != 0 {
		t.Errorf("Get(missing) = %d,%v want 0,false", id, ok)
	}
	if k, ok := m.Key(1); !ok || k != "item-1" {
		t.Errorf("Key(1) = %q,%v", k, ok)
	}
	if _, ok := m.Key(0); ok {
		t.Error("Key(0) should be unknown")
	}
	if _, ok := m.Key(2); ok {
		t.Error("Key(2) should be unknown")
	}
}

func TestMap_ConcurrentGetOrAdd(t *testing.T) {
	m := New()
	const workers = 16
	const keys = 500

	results := make([][]uint32, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]uint32, keys)
			for i := 0; i < keys; i++ {
				// Each worker walks the keys in a different order.
				k := (i*7 + w*13) % keys
				ids[k] = m.GetOrAdd(fmt.Sprintf("key-%d", k))
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()

	if m.Len() != keys {
		t.Fatalf("Len() = %d, want %d", m.Len(), keys)
	}

	seen := make(map[uint32]bool, keys)
	for k := 0; k < keys; k++ {
		id := results[0][k]
		for w := 1; w < workers; w++ {
			if results[w][k] != id {
				t.Fatalf("key-%d: worker %d saw id %d, worker 0 saw %d", k, w, results[w][k], id)
			}
		}
		if id < 1 || id > keys {
			t.Fatalf("key-%d: id %d out of dense range", k, id)
		}
		if seen[id] {
			t.Fatalf("id %d assigned twice", id)
		}
		seen[id] = true
	}
}

func TestMap_Clear(t *testing.T) {
	m := New()
	m.GetOrAdd("x")
	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Len() after Clear = %d", m.Len())
	}
	if id := m.GetOrAdd("y"); id != 1 {
		t.Errorf("GetOrAdd after Clear = %d, want 1", id)
	}
}

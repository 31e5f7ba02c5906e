// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package cache

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestCache_AbsoluteExpiry(t *testing.T) {
	clock := newClock()
	c := New[string](Options{TTL: time.Hour, Now: clock.Now})

	c.Set("k", "v")
	clock.Advance(30 * time.Minute)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("Get() = %q,%v want v,true", v, ok)
	}

	// A hit does not extend an absolute entry.
	clock.Advance(31 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should have expired")
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Evictions != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestCache_SlidingExpiry(t *testing.T) {
	clock := newClock()
	c := New[int](Options{TTL: time.Hour, Policy: Sliding, Now: clock.Now})

	c.Set("k", 7)
	for i := 0; i < 5; i++ {
		clock.Advance(45 * time.Minute)
		if _, ok := c.Get("k"); !ok {
			t.Fatalf("sliding entry expired after %d renewals", i)
		}
	}

	clock.Advance(61 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("idle sliding entry should expire")
	}
}

func TestCache_GetOrCreate(t *testing.T) {
	c := New[int](Options{TTL: time.Minute})

	calls := 0
	create := func() int {
		calls++
		return 42
	}

	v, hit := c.GetOrCreate("k", create)
	if v != 42 || hit {
		t.Errorf("first GetOrCreate = %d,%v", v, hit)
	}
	v, hit = c.GetOrCreate("k", create)
	if v != 42 || !hit {
		t.Errorf("second GetOrCreate = %d,%v", v, hit)
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
}

func TestCache_GetOrCreateConcurrent(t *testing.T) {
	c := New[*int](Options{TTL: time.Minute})

	var mu sync.Mutex
	calls := 0
	var wg sync.WaitGroup
	results := make([]*int, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.GetOrCreate("shared", func() *int {
				mu.Lock()
				calls++
				mu.Unlock()
				v := i
				return &v
			})
		}(i)
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("create called %d times, want 1", calls)
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("callers received different instances")
		}
	}
}

func TestCache_SweepAndDelete(t *testing.T) {
	clock := newClock()
	c := New[string](Options{TTL: time.Minute, Now: clock.Now})

	c.Set("a", "1")
	c.SetWithTTL("b", "2", time.Hour)
	c.Set("model:x:engine", "3")

	clock.Advance(2 * time.Minute)
	if n := c.Sweep(); n != 2 {
		t.Errorf("Sweep() removed %d, want 2", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	c.Delete("b")
	if _, ok := c.Get("b"); ok {
		t.Error("deleted key still present")
	}

	c.Set("model:y:1", "a")
	c.Set("model:y:2", "b")
	c.Set("model:z:1", "c")
	if n := c.DeleteFunc(func(k string) bool { return len(k) > 8 && k[:8] == "model:y:" }); n != 2 {
		t.Errorf("DeleteFunc removed %d, want 2", n)
	}
	if s := c.Stats(); s.Entries != 1 || s.Evictions != 5 {
		t.Errorf("Stats() = %+v, want 1 entry and 5 evictions", s)
	}
}

func TestCache_BackgroundSweep(t *testing.T) {
	c := New[string](Options{TTL: 10 * time.Millisecond, SweepInterval: 5 * time.Millisecond})
	defer c.Close()

	c.Set("k", "v")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Len() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("background sweep never removed the expired entry")
}

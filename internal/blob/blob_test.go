// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package blob

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/sarec/internal/database"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	fs, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Store{
		"badger":       NewBadgerStore(db),
		"filesystem":   fs,
		"instrumented": Instrument(NewBadgerStore(db), "test"),
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.Download(ctx, "input/missing.csv"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Download(missing) err = %v, want ErrNotFound", err)
			}
			if ok, err := store.Exists(ctx, "input/missing.csv"); err != nil || ok {
				t.Errorf("Exists(missing) = %v, %v", ok, err)
			}

			blobs := map[string]string{
				"input/usage/b.csv": "u2,B\n",
				"input/usage/a.csv": "u1,A\n",
				"input/catalog.csv": "A,x,y,z\n",
				"models/m1.sarm":    "model",
			}
			for n, body := range blobs {
				if err := store.Upload(ctx, n, []byte(body)); err != nil {
					t.Fatalf("Upload(%s): %v", n, err)
				}
			}

			got, err := store.Download(ctx, "input/usage/a.csv")
			if err != nil || !bytes.Equal(got, []byte("u1,A\n")) {
				t.Errorf("Download = %q, %v", got, err)
			}

			if err := store.Upload(ctx, "models/m1.sarm", []byte("model-v2")); err != nil {
				t.Fatal(err)
			}
			got, _ = store.Download(ctx, "models/m1.sarm")
			if string(got) != "model-v2" {
				t.Errorf("overwrite lost: %q", got)
			}

			names, err := store.List(ctx, "input/usage/")
			if err != nil {
				t.Fatal(err)
			}
			if len(names) != 2 || names[0] != "input/usage/a.csv" || names[1] != "input/usage/b.csv" {
				t.Errorf("List = %v", names)
			}

			if err := store.Delete(ctx, "models/m1.sarm"); err != nil {
				t.Fatal(err)
			}
			if err := store.Delete(ctx, "models/m1.sarm"); err != nil {
				t.Errorf("second Delete: %v", err)
			}
			if ok, _ := store.Exists(ctx, "models/m1.sarm"); ok {
				t.Error("blob still exists after Delete")
			}
		})
	}
}

func TestStore_RejectsBadNames(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, bad := range []string{"", "/abs", "../escape", "a/../../b"} {
				if err := store.Upload(context.Background(), bad, []byte("x")); err == nil {
					t.Errorf("Upload(%q) succeeded", bad)
				}
			}
		})
	}
}

func TestStore_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Upload(ctx, "x", []byte("x")); !errors.Is(err, context.Canceled) {
				t.Errorf("Upload err = %v, want context.Canceled", err)
			}
		})
	}
}

// flakyStore fails every call while down is set.
type flakyStore struct {
	Store
	down  bool
	calls int
}

var errUnavailable = errors.New("backend unavailable")

func (s *flakyStore) Download(ctx context.Context, name string) ([]byte, error) {
	s.calls++
	if s.down {
		return nil, errUnavailable
	}
	return s.Store.Download(ctx, name)
}

func TestBreakerStore_OpensAfterConsecutiveFailures(t *testing.T) {
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	inner := &flakyStore{Store: NewBadgerStore(db), down: true}
	store := NewBreakerStore(inner, "test-breaker", BreakerConfig{ConsecutiveFailures: 3, Timeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Download(ctx, "x"); !errors.Is(err, errUnavailable) {
			t.Fatalf("call %d err = %v", i, err)
		}
	}
	if store.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", store.State())
	}

	_, err = store.Download(ctx, "x")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want ErrOpenState", err)
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3 (open breaker must not call through)", inner.calls)
	}
}

func TestBreakerStore_NotFoundIsNotAFailure(t *testing.T) {
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	store := NewBreakerStore(NewBadgerStore(db), "test-notfound", BreakerConfig{ConsecutiveFailures: 2})
	for i := 0; i < 5; i++ {
		if _, err := store.Download(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	}
	if store.State() != gobreaker.StateClosed {
		t.Errorf("state = %v, want closed", store.State())
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := New(context.Background(), Config{Backend: "s3"}, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := New(context.Background(), Config{Backend: BackendBadger}, nil); err == nil {
		t.Error("expected error for badger backend without database")
	}
}

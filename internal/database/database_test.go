// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"in memory", Config{InMemory: true}, false},
		{"path", Config{Path: "/tmp/x"}, false},
		{"no path", Config{}, true},
		{"bad ratio", Config{InMemory: true, GCRatio: 1}, true},
		{"negative ratio", Config{InMemory: true, GCRatio: -0.1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpen_OnDisk(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = Open(Config{Path: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	err = db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("k"))
		return err
	})
	if err != nil {
		t.Errorf("value lost across reopen: %v", err)
	}
}

func TestKeysAndDeletePrefix(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	err = db.Update(func(txn *badger.Txn) error {
		for _, k := range []string{"a/2", "a/1", "b/1", "a/3"} {
			if err := txn.Set([]byte(k), []byte("x")); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	keys, err := Keys(context.Background(), db, []byte("a/"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"1", "2", "3"}
	if len(keys) != len(want) {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	if err := DeletePrefix(db, []byte("a/")); err != nil {
		t.Fatal(err)
	}
	keys, err = Keys(context.Background(), db, []byte("a/"))
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("keys after DeletePrefix = %v", keys)
	}
	rest, _ := Keys(context.Background(), db, []byte("b/"))
	if len(rest) != 1 {
		t.Errorf("unrelated prefix affected: %v", rest)
	}
}

func TestGCService_StopsOnCancel(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	svc := NewGCService(db, 5*time.Millisecond, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("GC service did not stop")
	}
}

// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/sarec/internal/database"
)

const badgerPrefix = "blob/"

// BadgerStore keeps blobs in a shared BadgerDB under the "blob/" prefix.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a store over an open database. The caller owns db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func badgerKey(name string) []byte {
	return []byte(badgerPrefix + name)
}

// Upload writes data under name, replacing any existing blob.
func (s *BadgerStore) Upload(ctx context.Context, name string, data []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(name), data)
	})
	if err != nil {
		return fmt.Errorf("upload blob %q: %w", name, err)
	}
	return nil
}

// Download returns a copy of the blob contents.
func (s *BadgerStore) Download(ctx context.Context, name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("download blob %q: %w", name, err)
	}
	return data, nil
}

// Exists reports whether name is stored.
func (s *BadgerStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(name))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat blob %q: %w", name, err)
	}
	return true, nil
}

// Delete removes name. Deleting a missing blob is not an error.
func (s *BadgerStore) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(name))
	})
	if err != nil {
		return fmt.Errorf("delete blob %q: %w", name, err)
	}
	return nil
}

// List returns the blob names under prefix.
func (s *BadgerStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := database.Keys(ctx, s.db, []byte(badgerPrefix+prefix))
	if err != nil {
		return nil, fmt.Errorf("list blobs %q: %w", prefix, err)
	}
	for i, k := range keys {
		keys[i] = prefix + k
	}
	return keys, nil
}

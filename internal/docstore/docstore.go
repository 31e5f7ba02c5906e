// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package docstore is the partitioned document table used for user histories.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/sarec/internal/database"
)

var (
	// ErrNotFound is returned by Get when the document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrTableMissing is returned by Put before CreateIfMissing was called.
	ErrTableMissing = errors.New("document table does not exist")
)

// Document is one stored unit, addressed by partition key and id.
type Document struct {
	ID      string
	Content string
}

// Store is one document table.
type Store interface {
	Get(ctx context.Context, partitionKey, id string) (*Document, error)
	// Put upserts docs into one partition and returns how many were written.
	Put(ctx context.Context, partitionKey string, docs []Document) (int, error)
	CreateIfMissing(ctx context.Context) error
	DeleteIfExists(ctx context.Context) error
}

// BadgerStore is a table inside the shared BadgerDB. Documents live under
// "doc/<table>/<partition>/<id>"; the table marker lives under "table/<table>".
type BadgerStore struct {
	db    *badger.DB
	table string
}

// NewBadgerStore returns the table named table. It does not create it.
func NewBadgerStore(db *badger.DB, table string) (*BadgerStore, error) {
	if table == "" || strings.ContainsAny(table, "/") {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &BadgerStore{db: db, table: table}, nil
}

// Table returns the table name.
func (s *BadgerStore) Table() string {
	return s.table
}

func (s *BadgerStore) markerKey() []byte {
	return []byte("table/" + s.table)
}

func (s *BadgerStore) prefix() []byte {
	return []byte("doc/" + s.table + "/")
}

func (s *BadgerStore) docKey(partitionKey, id string) []byte {
	return []byte("doc/" + s.table + "/" + partitionKey + "/" + id)
}

// CreateIfMissing creates the table marker.
func (s *BadgerStore) CreateIfMissing(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(s.markerKey())
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(s.markerKey(), nil)
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// DeleteIfExists drops the table and every document in it.
func (s *BadgerStore) DeleteIfExists(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := database.DeletePrefix(s.db, s.prefix()); err != nil {
		return fmt.Errorf("delete table %s: %w", s.table, err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.markerKey())
	})
	if err != nil {
		return fmt.Errorf("delete table %s: %w", s.table, err)
	}
	return nil
}

func (s *BadgerStore) exists() (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(s.markerKey())
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Get fetches one document.
func (s *BadgerStore) Get(ctx context.Context, partitionKey, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var content []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.docKey(partitionKey, id))
		if err != nil {
			return err
		}
		content, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s/%s: %w", partitionKey, id, err)
	}
	return &Document{ID: id, Content: string(content)}, nil
}

// Put upserts docs in one write batch.
func (s *BadgerStore) Put(ctx context.Context, partitionKey string, docs []Document) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ok, err := s.exists()
	if err != nil {
		return 0, fmt.Errorf("put documents: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTableMissing, s.table)
	}

	wb := s.db.NewWriteBatch()
	for _, d := range docs {
		if d.ID == "" {
			wb.Cancel()
			return 0, errors.New("put documents: empty document id")
		}
		if err := wb.Set(s.docKey(partitionKey, d.ID), []byte(d.Content)); err != nil {
			wb.Cancel()
			return 0, fmt.Errorf("put documents: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("put documents: %w", err)
	}
	return len(docs), nil
}

// Count returns the number of documents in the table.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	keys, err := database.Keys(ctx, s.db, s.prefix())
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package registry keeps one record per model: its lifecycle status, the
// parameters it was trained with and the training result.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/sarec/internal/database"
	"github.com/tomtom215/sarec/internal/training"
)

// Status is a model's lifecycle state.
type Status string

const (
	StatusCreated    Status = "Created"
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
	StatusAborted    Status = "Aborted"
)

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAborted
}

// allowed lists the legal transitions out of each non-terminal status.
var allowed = map[Status][]Status{
	StatusCreated:    {StatusInProgress, StatusAborted, StatusFailed},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusAborted},
}

// CanTransition reports whether a record in from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound is returned for unknown model ids.
	ErrNotFound = errors.New("model record not found")

	// ErrExists is returned when creating a record that already exists.
	ErrExists = errors.New("model record already exists")

	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ModelRecord describes one model.
type ModelRecord struct {
	ID            string              `json:"id"`
	Description   string              `json:"description,omitempty"`
	Status        Status              `json:"status"`
	StatusMessage string              `json:"status_message,omitempty"`
	Parameters    training.Parameters `json:"parameters"`
	Result        *training.Result    `json:"result,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Store persists model records.
type Store interface {
	Create(ctx context.Context, rec ModelRecord) error
	Get(ctx context.Context, id string) (*ModelRecord, error)
	Update(ctx context.Context, id string, fn func(*ModelRecord) error) (*ModelRecord, error)
	List(ctx context.Context) ([]ModelRecord, error)
	Delete(ctx context.Context, id string) error
}

var keyPrefix = []byte("model/")

func recordKey(id string) []byte {
	return append(append([]byte{}, keyPrefix...), id...)
}

// BadgerRegistry stores records as JSON under model/<id>.
type BadgerRegistry struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadgerRegistry creates a registry over db.
func NewBadgerRegistry(db *badger.DB) *BadgerRegistry {
	return &BadgerRegistry{db: db, now: time.Now}
}

// Create stores a new record. A zero status becomes StatusCreated.
func (r *BadgerRegistry) Create(ctx context.Context, rec ModelRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		return errors.New("model record id is empty")
	}
	if rec.Status == "" {
		rec.Status = StatusCreated
	}
	now := r.now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode model record %s: %w", rec.ID, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(recordKey(rec.ID))
		if err == nil {
			return ErrExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(recordKey(rec.ID), data)
	})
	if err != nil {
		return fmt.Errorf("create model record %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record for id.
func (r *BadgerRegistry) Get(ctx context.Context, id string) (*ModelRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *ModelRecord
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = read(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func read(txn *badger.Txn, id string) (*ModelRecord, error) {
	item, err := txn.Get(recordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get model record %s: %w", id, err)
	}
	var rec ModelRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("decode model record %s: %w", id, err)
	}
	return &rec, nil
}

// Update applies fn to the stored record in one transaction and returns the
// result. A status change is checked against the lifecycle.
func (r *BadgerRegistry) Update(ctx context.Context, id string, fn func(*ModelRecord) error) (*ModelRecord, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var out *ModelRecord
		err := r.db.Update(func(txn *badger.Txn) error {
			rec, err := read(txn, id)
			if err != nil {
				return err
			}
			before := rec.Status
			if err := fn(rec); err != nil {
				return err
			}
			rec.ID = id
			if rec.Status != before && !CanTransition(before, rec.Status) {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, before, rec.Status)
			}
			rec.UpdatedAt = r.now().UTC()
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode model record %s: %w", id, err)
			}
			out = rec
			return txn.Set(recordKey(id), data)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < 3 {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

// SetStatus moves a record to status with a message.
func SetStatus(ctx context.Context, s Store, id string, status Status, message string) (*ModelRecord, error) {
	return s.Update(ctx, id, func(rec *ModelRecord) error {
		rec.Status = status
		rec.StatusMessage = message
		return nil
	})
}

// List returns every record ordered by id.
func (r *BadgerRegistry) List(ctx context.Context) ([]ModelRecord, error) {
	ids, err := database.Keys(ctx, r.db, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list model records: %w", err)
	}
	out := make([]ModelRecord, 0, len(ids))
	err = r.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			rec, err := read(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the record for id. Deleting an unknown id is ErrNotFound.
func (r *BadgerRegistry) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(recordKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}
		return txn.Delete(recordKey(id))
	})
}

var _ Store = (*BadgerRegistry)(nil)

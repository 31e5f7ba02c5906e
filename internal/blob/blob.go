// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package blob provides the named-object storage used for raw training input
// and trained model artifacts.
//
// Backends:
//
//   - BadgerStore: embedded key-value store, the default for single-node use
//   - FSStore: plain files under a root directory
//   - GCSStore: a Google Cloud Storage bucket
//
// Any Store can be wrapped with NewBreakerStore for circuit breaking and
// Instrument for Prometheus latency metrics.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/sarec/internal/metrics"
)

// ErrNotFound is returned when a named blob does not exist.
var ErrNotFound = errors.New("blob not found")

// Store is a cancellable named-blob store.
type Store interface {
	Upload(ctx context.Context, name string, data []byte) error
	Download(ctx context.Context, name string) ([]byte, error)
	Exists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) error
	// List returns the names under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// validName rejects empty names and names that could escape a root directory.
func validName(name string) error {
	if name == "" {
		return errors.New("blob name is empty")
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("invalid blob name %q", name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return fmt.Errorf("invalid blob name %q", name)
		}
	}
	return nil
}

// Instrumented records Prometheus latency for every operation of a Store.
type Instrumented struct {
	store   Store
	backend string
}

// Instrument wraps store so every call is observed under backend.
func Instrument(store Store, backend string) *Instrumented {
	return &Instrumented{store: store, backend: backend}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	metrics.RecordBlobOperation(s.backend, op, time.Since(start), err)
}

func (s *Instrumented) Upload(ctx context.Context, name string, data []byte) error {
	start := time.Now()
	err := s.store.Upload(ctx, name, data)
	s.observe("upload", start, err)
	return err
}

func (s *Instrumented) Download(ctx context.Context, name string) ([]byte, error) {
	start := time.Now()
	data, err := s.store.Download(ctx, name)
	s.observe("download", start, err)
	return data, err
}

func (s *Instrumented) Exists(ctx context.Context, name string) (bool, error) {
	start := time.Now()
	ok, err := s.store.Exists(ctx, name)
	s.observe("exists", start, err)
	return ok, err
}

func (s *Instrumented) Delete(ctx context.Context, name string) error {
	start := time.Now()
	err := s.store.Delete(ctx, name)
	s.observe("delete", start, err)
	return err
}

func (s *Instrumented) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	names, err := s.store.List(ctx, prefix)
	s.observe("list", start, err)
	return names, err
}

// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package blob

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/sarec/internal/logging"
	"github.com/tomtom215/sarec/internal/metrics"
)

// BreakerConfig configures the circuit breaker around a remote Store.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open. Default: 3.
	MaxRequests uint32 `koanf:"max_requests"`

	// Interval resets the failure counts while closed. Default: 1m.
	Interval time.Duration `koanf:"interval"`

	// Timeout is how long the breaker stays open. Default: 30s.
	Timeout time.Duration `koanf:"timeout"`

	// ConsecutiveFailures trips the breaker. Default: 5.
	ConsecutiveFailures uint32 `koanf:"consecutive_failures"`
}

// DefaultBreakerConfig returns the breaker settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{}.withDefaults()
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxRequests == 0 {
		c.MaxRequests = 3
	}
	if c.Interval == 0 {
		c.Interval = time.Minute
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	return c
}

// BreakerStore rejects calls fast while the wrapped Store keeps failing.
// Missing blobs and cancellation are not counted as failures.
type BreakerStore struct {
	store Store
	cb    *gobreaker.CircuitBreaker[interface{}]
}

// NewBreakerStore wraps store with a breaker named name.
func NewBreakerStore(store Store, name string, cfg BreakerConfig) *BreakerStore {
	cfg = cfg.withDefaults()
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Blob store circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return &BreakerStore{store: store, cb: cb}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// State returns the current breaker state.
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

func (s *BreakerStore) Upload(ctx context.Context, name string, data []byte) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.store.Upload(ctx, name, data)
	})
	return err
}

func (s *BreakerStore) Download(ctx context.Context, name string) ([]byte, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.store.Download(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	data, _ := res.([]byte)
	return data, nil
}

func (s *BreakerStore) Exists(ctx context.Context, name string) (bool, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.store.Exists(ctx, name)
	})
	if err != nil {
		return false, err
	}
	ok, _ := res.(bool)
	return ok, nil
}

func (s *BreakerStore) Delete(ctx context.Context, name string) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.store.Delete(ctx, name)
	})
	return err
}

func (s *BreakerStore) List(ctx context.Context, prefix string) ([]string, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.store.List(ctx, prefix)
	})
	if err != nil {
		return nil, err
	}
	names, _ := res.([]string)
	return names, nil
}

// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package algorithms implements the item-similarity trainer.
//
// # Algorithm
//
// Usage events are grouped into sessions (per user, or per user and
// timestamp). For every session the trainer counts each unordered pair of
// distinct items once, and each item once. Pairs whose raw count is below the
// support threshold are dropped; the rest are scored with the configured
// similarity function:
//
//	Co-occurrence: sim = c(i,j)
//	Jaccard:       sim = c(i,j) / (c(i) + c(j) - c(i,j))
//	Lift:          sim = c(i,j) / (c(i) * c(j))
//
// # Cold Items
//
// With cold-item placement enabled, catalog items lacking enough usage get
// similarity edges derived from their catalog features. Each feature is
// weighted by how well agreement on it predicts usage similarity between warm
// items; the learned weights are returned with the model.
//
// # Thread Safety
//
// Counting runs on a bounded worker pool. Each worker owns a private counter
// shard and the shards are merged after all workers finish, so no counter is
// shared between goroutines.
package algorithms

import "context"

// ContextCancelled checks if the context has been canceled.
func ContextCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package history persists each user's most recent usage events for
// personalized scoring.
//
// Users are spread over max(1, users/100) partitions by hashing the user id.
// Each user is one document holding at most MaxEvents events, newest first.
// Uploads run one goroutine per partition under a concurrency ceiling; once
// the ceiling is reached, the next partition waits for an in-flight upload
// to finish.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tomtom215/sarec/internal/docstore"
	"github.com/tomtom215/sarec/internal/index"
	"github.com/tomtom215/sarec/internal/metrics"
	"github.com/tomtom215/sarec/internal/recommend"
)

// DefaultMaxConcurrentUploads is the default partition upload ceiling.
const DefaultMaxConcurrentUploads = 500

// TableName returns the document table holding a model's user histories.
func TableName(modelID string) string {
	return "history-" + modelID
}

// Options configures uploads.
type Options struct {
	// MaxConcurrentUploads bounds in-flight partition uploads. Default: 500.
	MaxConcurrentUploads int

	// UploadsPerSecond throttles partition uploads. Zero means unlimited.
	UploadsPerSecond float64

	// MaxEventsPerUser caps stored events. Values outside 1..MaxEvents mean MaxEvents.
	MaxEventsPerUser int
}

// UploadStats summarizes one upload.
type UploadStats struct {
	Users      int
	Partitions int
	Documents  int
	Duration   time.Duration
}

// Writer uploads the histories of one training run.
type Writer struct {
	docs    docstore.Store
	factor  int
	opts    Options
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewWriter creates a writer for userCount users.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewWriter(docs docstore.Store, userCount int, opts Options, logger zerolog.Logger) *Writer {
	if opts.MaxConcurrentUploads <= 0 {
		opts.MaxConcurrentUploads = DefaultMaxConcurrentUploads
	}
	if opts.MaxEventsPerUser <= 0 || opts.MaxEventsPerUser > MaxEvents {
		opts.MaxEventsPerUser = MaxEvents
	}
	w := &Writer{
		docs:   docs,
		factor: PartitionFactor(userCount),
		opts:   opts,
		logger: logger.With().Str("component", "history").Logger(),
	}
	if opts.UploadsPerSecond > 0 {
		burst := int(opts.UploadsPerSecond)
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(opts.UploadsPerSecond), burst)
	}
	return w
}

// Factor returns the partition factor.
func (w *Writer) Factor() int {
	return w.factor
}

// Batch is a set of prepared documents grouped by partition key. It holds no
// reference to the index maps it was built from.
type Batch struct {
	partitions map[string][]docstore.Document
	users      int
}

// Users returns the number of users in the batch.
func (b *Batch) Users() int {
	return b.users
}

// Upload stores the newest events of every user. users maps dense user ids
// back to their string ids. events is not modified.
func (w *Writer) Upload(ctx context.Context, events []recommend.UsageEvent, users *index.Map) (UploadStats, error) {
	batch, err := w.Prepare(ctx, events, users)
	if err != nil {
		return UploadStats{}, err
	}
	return w.Send(ctx, batch)
}

// Prepare encodes every user's document. Once it returns, events and users
// may be released.
func (w *Writer) Prepare(ctx context.Context, events []recommend.UsageEvent, users *index.Map) (*Batch, error) {
	partitions, n, err := w.build(ctx, events, users)
	if err != nil {
		return nil, err
	}
	return &Batch{partitions: partitions, users: n}, nil
}

// Send uploads a prepared batch, one Put per partition.
func (w *Writer) Send(ctx context.Context, batch *Batch) (UploadStats, error) {
	start := time.Now()
	stats := UploadStats{Users: batch.users, Partitions: len(batch.partitions)}

	if err := w.docs.CreateIfMissing(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stats, ctxErr
		}
		return stats, fmt.Errorf("create history table: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.MaxConcurrentUploads)

	keys := make([]string, 0, len(batch.partitions))
	for key := range batch.partitions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	counts := make([]int, len(keys))

	for i, key := range keys {
		// Go blocks once the limit is reached.
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if w.limiter != nil {
				if err := w.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			n, err := w.docs.Put(gctx, key, batch.partitions[key])
			if err != nil {
				return fmt.Errorf("upload history partition %s: %w", key, err)
			}
			counts[i] = n
			return nil
		})
	}
	err := g.Wait()
	for _, n := range counts {
		stats.Documents += n
	}
	stats.Duration = time.Since(start)
	metrics.RecordHistoryUpload(stats.Documents, err)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return stats, ctxErr
		}
		return stats, err
	}

	w.logger.Info().
		Int("users", stats.Users).
		Int("partitions", stats.Partitions).
		Int("documents", stats.Documents).
		Dur("duration", stats.Duration).
		Msg("User history stored")
	return stats, nil
}

// build groups documents by partition key.
func (w *Writer) build(ctx context.Context, events []recommend.UsageEvent, users *index.Map) (map[string][]docstore.Document, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if !sort.SliceIsSorted(events, func(i, j int) bool { return historyLess(&events[i], &events[j]) }) {
		sorted := make([]recommend.UsageEvent, len(events))
		copy(sorted, events)
		sort.SliceStable(sorted, func(i, j int) bool { return historyLess(&sorted[i], &sorted[j]) })
		events = sorted
	}

	partitions := make(map[string][]docstore.Document)
	nUsers := 0
	buf := make([]recommend.UsageEvent, 0, w.opts.MaxEventsPerUser)
	for start := 0; start < len(events); {
		end := start + 1
		for end < len(events) && events[end].UserID == events[start].UserID {
			end++
		}
		if nUsers%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}

		userID, ok := users.Key(events[start].UserID)
		if !ok {
			return nil, 0, fmt.Errorf("user id %d has no string key", events[start].UserID)
		}

		// Newest first: walk the ascending run backwards.
		buf = buf[:0]
		for i := end - 1; i >= start && len(buf) < w.opts.MaxEventsPerUser; i-- {
			buf = append(buf, events[i])
		}

		key := PartitionKey(userID, w.factor)
		partitions[key] = append(partitions[key], docstore.Document{ID: userID, Content: Encode(buf)})
		nUsers++
		start = end
	}
	return partitions, nUsers, nil
}

func historyLess(a, b *recommend.UsageEvent) bool {
	if a.UserID != b.UserID {
		return a.UserID < b.UserID
	}
	return a.Timestamp.Before(b.Timestamp)
}

// TableFunc resolves the history table of a model.
type TableFunc func(modelID string) (docstore.Store, error)

// Reader reads user histories. It implements recommend.HistoryReader.
type Reader struct {
	tables TableFunc
}

// NewReader creates a reader over tables.
func NewReader(tables TableFunc) *Reader {
	return &Reader{tables: tables}
}

// Read returns userID's stored events, newest first. A missing document is an
// empty history.
func (r *Reader) Read(ctx context.Context, modelID, userID string, userCount int) ([]recommend.UsageEvent, error) {
	docs, err := r.tables(modelID)
	if err != nil {
		return nil, fmt.Errorf("open history table: %w", err)
	}
	doc, err := docs.Get(ctx, PartitionKey(userID, PartitionFactor(userCount)), userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history of %s: %w", userID, err)
	}
	events, err := Decode(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("decode history of %s: %w", userID, err)
	}
	return events, nil
}

var _ recommend.HistoryReader = (*Reader)(nil)

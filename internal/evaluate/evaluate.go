// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package evaluate measures a trained model against held-out usage.
//
// Only users present in both the training and the evaluation usage are
// scored. Each user's training events seed a top-K prediction that is
// compared against the items the user touched in the evaluation period.
package evaluate

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/sarec/internal/recommend"
)

// DefaultK is the number of recommendations scored per user.
const DefaultK = 5

// Options configures an evaluation.
type Options struct {
	// K is the prediction size and the largest precision cutoff. Default: 5.
	K int

	// Workers bounds parallel scoring. Default: GOMAXPROCS.
	Workers int
}

// Precision is precision@K.
type Precision struct {
	K int `json:"k"`

	// Percentage of evaluated users with a hit in their top K.
	Percentage float64 `json:"percentage"`

	UsersInTest int `json:"users_in_test"`
}

// Bucket is one popularity-percentile range [Min, Max).
// The last bucket includes Max.
type Bucket struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Diversity reports how recommendations spread over popularity.
type Diversity struct {
	Buckets                  []Bucket `json:"buckets"`
	TotalItemsRecommended    int      `json:"total_items_recommended"`
	UniqueItemsRecommended   int      `json:"unique_items_recommended"`
	UniqueItemsInTrainingSet int      `json:"unique_items_in_training_set"`
}

// Result is the outcome of one evaluation.
type Result struct {
	Precision []Precision   `json:"precision"`
	Diversity Diversity     `json:"diversity"`
	Duration  time.Duration `json:"duration"`
}

var bucketBounds = [][2]float64{{0, 90}, {90, 99}, {99, 100}}

type userRun struct {
	user    uint32
	events  []recommend.UsageEvent
	heldOut map[uint32]struct{}
}

// Evaluator scores held-out usage.
type Evaluator struct {
	opts   Options
	logger zerolog.Logger
}

// New creates an evaluator.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(opts Options, logger zerolog.Logger) *Evaluator {
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Evaluator{opts: opts, logger: logger.With().Str("component", "evaluator").Logger()}
}

// Evaluate scores model against eval, seeding each user with their train events.
func (e *Evaluator) Evaluate(ctx context.Context, model *recommend.TrainedModel, train, eval []recommend.UsageEvent) (*Result, error) {
	start := time.Now()
	k := e.opts.K

	runs := pairUsers(train, eval)

	predictions := make([][]recommend.ScoredItem, len(runs))
	g, gctx := errgroup.WithContext(ctx)
	workers := e.opts.Workers
	if workers > len(runs) {
		workers = len(runs)
	}
	key := recommend.EngineKey{
		Count:          k,
		IncludeHistory: model.Properties.IncludeHistory,
		ReferenceDate:  model.Properties.ReferenceDate,
		Decay:          model.Properties.Decay,
	}
	for w := 0; w < workers; w++ {
		engine := recommend.NewEngine(model, key)
		g.Go(func() error {
			for i := w; i < len(runs); i += workers {
				pred, err := engine.Predict(gctx, runs[i].events)
				if err != nil {
					return err
				}
				predictions[i] = pred
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		Precision: precision(runs, predictions, k),
		Diversity: diversity(train, predictions),
	}
	res.Duration = time.Since(start)

	ev := e.logger.Info().Int("users_in_test", len(runs)).Dur("duration", res.Duration)
	if len(res.Precision) > 0 {
		ev = ev.Float64("precision_at_1", res.Precision[0].Percentage)
	}
	ev.Msg("Evaluation completed")
	return res, nil
}

// groupByUser returns each user's events, preserving order.
func groupByUser(events []recommend.UsageEvent) map[uint32][]recommend.UsageEvent {
	out := make(map[uint32][]recommend.UsageEvent)
	for _, ev := range events {
		out[ev.UserID] = append(out[ev.UserID], ev)
	}
	return out
}

// pairUsers builds one run per user present in both sets, ordered by user id.
func pairUsers(train, eval []recommend.UsageEvent) []userRun {
	byUser := groupByUser(train)
	heldOut := make(map[uint32]map[uint32]struct{})
	for _, ev := range eval {
		if _, ok := byUser[ev.UserID]; !ok {
			continue
		}
		items, ok := heldOut[ev.UserID]
		if !ok {
			items = make(map[uint32]struct{})
			heldOut[ev.UserID] = items
		}
		items[ev.ItemID] = struct{}{}
	}

	runs := make([]userRun, 0, len(heldOut))
	for user, items := range heldOut {
		runs = append(runs, userRun{user: user, events: byUser[user], heldOut: items})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].user < runs[j].user })
	return runs
}

func precision(runs []userRun, predictions [][]recommend.ScoredItem, k int) []Precision {
	out := make([]Precision, k)
	for cut := 1; cut <= k; cut++ {
		hits := 0
		for i, r := range runs {
			pred := predictions[i]
			if len(pred) > cut {
				pred = pred[:cut]
			}
			for _, p := range pred {
				if _, ok := r.heldOut[p.ItemID]; ok {
					hits++
					break
				}
			}
		}
		out[cut-1] = Precision{K: cut, UsersInTest: len(runs), Percentage: percent(hits, len(runs))}
	}
	return out
}

// diversity buckets every recommended item by the popularity percentile of its
// training event count: 100 * (items with a strictly smaller count) / items.
func diversity(train []recommend.UsageEvent, predictions [][]recommend.ScoredItem) Diversity {
	counts := make(map[uint32]int)
	for _, ev := range train {
		counts[ev.ItemID]++
	}
	sorted := make([]int, 0, len(counts))
	for _, c := range counts {
		sorted = append(sorted, c)
	}
	sort.Ints(sorted)

	percentile := func(item uint32) float64 {
		c, ok := counts[item]
		if !ok || len(sorted) == 0 {
			return 0
		}
		smaller := sort.SearchInts(sorted, c)
		return 100 * float64(smaller) / float64(len(sorted))
	}

	d := Diversity{UniqueItemsInTrainingSet: len(counts)}
	d.Buckets = make([]Bucket, len(bucketBounds))
	for i, b := range bucketBounds {
		d.Buckets[i] = Bucket{Min: b[0], Max: b[1]}
	}
	unique := make(map[uint32]struct{})
	for _, pred := range predictions {
		for _, p := range pred {
			d.TotalItemsRecommended++
			unique[p.ItemID] = struct{}{}
			pct := percentile(p.ItemID)
			for i := range d.Buckets {
				last := i == len(d.Buckets)-1
				if pct >= d.Buckets[i].Min && (pct < d.Buckets[i].Max || last) {
					d.Buckets[i].Count++
					break
				}
			}
		}
	}
	d.UniqueItemsRecommended = len(unique)
	for i := range d.Buckets {
		d.Buckets[i].Percentage = percent(d.Buckets[i].Count, d.TotalItemsRecommended)
	}
	return d
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

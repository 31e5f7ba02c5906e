// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package algorithms

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/sarec/internal/recommend"
)

// featureSet holds one item's tokenized feature values; set[f] is the sorted
// distinct tokens of feature f, nil when the item has no value for it.
type featureSet [][]string

// tokenize splits a feature value on ';' into sorted distinct tokens.
func tokenize(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ";")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	uniq := out[:1]
	for _, p := range out[1:] {
		if p != uniq[len(uniq)-1] {
			uniq = append(uniq, p)
		}
	}
	return uniq
}

// tokenJaccard is |a ∩ b| / |a ∪ b| over sorted distinct tokens.
func tokenJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// indexFeatures tokenizes catalog features by dense item id.
func indexFeatures(catalog []recommend.CatalogItem, itemCount, featureCount int) []featureSet {
	sets := make([]featureSet, itemCount+1)
	for _, item := range catalog {
		if item.ItemID == 0 || int(item.ItemID) > itemCount {
			continue
		}
		fs := make(featureSet, featureCount)
		hasValue := false
		for f := 0; f < featureCount && f < len(item.Features); f++ {
			fs[f] = tokenize(item.Features[f])
			if fs[f] != nil {
				hasValue = true
			}
		}
		if hasValue {
			sets[item.ItemID] = fs
		}
	}
	return sets
}

// learnFeatureWeights estimates how much agreement on each feature predicts
// usage similarity. For feature f it compares the similarity-weighted
// agreement over trained pairs against the agreement expected between two
// random items, scaled to [0, 1]:
//
//	w_f = max(0, (agree_sim - agree_rand) / (1 - agree_rand))
func learnFeatureWeights(pairs []recommend.Pair, sets []featureSet, featureCount int) []float64 {
	num := make([]float64, featureCount)
	den := make([]float64, featureCount)
	for _, p := range pairs {
		fa, fb := sets[p.A], sets[p.B]
		if fa == nil || fb == nil {
			continue
		}
		for f := 0; f < featureCount; f++ {
			if fa[f] == nil || fb[f] == nil {
				continue
			}
			num[f] += p.Score * tokenJaccard(fa[f], fb[f])
			den[f] += p.Score
		}
	}

	weights := make([]float64, featureCount)
	for f := 0; f < featureCount; f++ {
		if den[f] == 0 {
			continue
		}
		agreeSim := num[f] / den[f]
		agreeRand := randomAgreement(sets, f)
		if agreeRand >= 1 {
			continue
		}
		if w := (agreeSim - agreeRand) / (1 - agreeRand); w > 0 {
			weights[f] = w
		}
	}
	return weights
}

// randomAgreement is the probability that two random items carrying feature f
// have the same value: the sum of squared value frequencies.
func randomAgreement(sets []featureSet, f int) float64 {
	freq := make(map[string]int)
	total := 0
	for _, fs := range sets {
		if fs == nil || fs[f] == nil {
			continue
		}
		freq[strings.Join(fs[f], ";")]++
		total++
	}
	if total == 0 {
		return 0
	}
	var sum float64
	for _, n := range freq {
		p := float64(n) / float64(total)
		sum += p * p
	}
	return sum
}

// featureSimilarity is the weighted mean token agreement over features that
// either item carries. Zero weights everywhere fall back to uniform weights.
func featureSimilarity(a, b featureSet, weights []float64, uniform bool) float64 {
	var num, den float64
	for f := range weights {
		if a[f] == nil && b[f] == nil {
			continue
		}
		w := weights[f]
		if uniform {
			w = 1
		}
		if w == 0 {
			continue
		}
		den += w
		num += w * tokenJaccard(a[f], b[f])
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// placeColdItems adds feature-derived edges for catalog items whose usage
// count is below the support threshold. Cold items are linked to warm items,
// and to each other only when cold-to-cold is enabled. Existing usage pairs
// are never replaced. Returns the number of cold items and added pairs.
func (t *Trainer) placeColdItems(ctx context.Context, model *recommend.SimilarityModel, catalog []recommend.CatalogItem, names []string) (int, int, error) {
	featureCount := len(names)
	sets := indexFeatures(catalog, model.ItemCount, featureCount)

	weights := learnFeatureWeights(model.Pairs, sets, featureCount)
	model.FeatureWeights = make([]recommend.FeatureWeight, featureCount)
	uniform := true
	for f, w := range weights {
		model.FeatureWeights[f] = recommend.FeatureWeight{Name: names[f], Weight: w}
		if w > 0 {
			uniform = false
		}
	}

	threshold := uint32(t.cfg.SupportThreshold)
	var cold, warm []uint32
	for id := 1; id <= model.ItemCount; id++ {
		if sets[id] == nil {
			continue
		}
		if model.Occurrences[id] >= threshold {
			warm = append(warm, uint32(id))
		} else {
			cold = append(cold, uint32(id))
		}
	}
	if len(cold) == 0 {
		return 0, 0, nil
	}

	// Feature similarity is scaled to the typical usage score so cold edges
	// rank alongside warm ones under every similarity function.
	scale := 1.0
	if len(model.Pairs) > 0 {
		var sum float64
		for _, p := range model.Pairs {
			sum += p.Score
		}
		scale = sum / float64(len(model.Pairs))
	}

	workers := t.workersFor(len(cold))
	found := make([][]recommend.Pair, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			var local []recommend.Pair
			link := func(a, b uint32) {
				if a > b {
					a, b = b, a
				}
				if model.Similarity(a, b) > 0 {
					return
				}
				fs := featureSimilarity(sets[a], sets[b], weights, uniform)
				if fs <= 0 {
					return
				}
				local = append(local, recommend.Pair{A: a, B: b, Score: fs * scale})
			}
			for i := w; i < len(cold); i += workers {
				if ContextCancelled(gctx) {
					return gctx.Err()
				}
				c := cold[i]
				for _, o := range warm {
					link(c, o)
				}
				if t.cfg.EnableColdToColdRecommendations {
					for _, o := range cold[i+1:] {
						link(c, o)
					}
				}
			}
			found[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	added := 0
	for _, local := range found {
		model.Pairs = append(model.Pairs, local...)
		added += len(local)
	}
	sortPairs(model.Pairs)
	return len(cold), added, nil
}

// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package recommend

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// EventType classifies a usage event and determines its default weight.
type EventType int

const (
	// EventUnknown is the zero value; it has no default weight.
	EventUnknown EventType = iota
	// EventClick is a plain item view or click.
	EventClick
	// EventRecommendationClick is a click on a recommended item.
	EventRecommendationClick
	// EventAddToCart indicates the item was added to a cart.
	EventAddToCart
	// EventRemoveFromCart indicates the item was removed from a cart.
	EventRemoveFromCart
	// EventPurchase indicates the item was bought.
	EventPurchase
)

// String returns the canonical name of the event type.
func (t EventType) String() string {
	switch t {
	case EventClick:
		return "Click"
	case EventRecommendationClick:
		return "RecommendationClick"
	case EventAddToCart:
		return "AddToCart"
	case EventRemoveFromCart:
		return "RemoveFromCart"
	case EventPurchase:
		return "Purchase"
	default:
		return "Unknown"
	}
}

// DefaultWeight returns the weight applied when a usage row carries no explicit weight.
func (t EventType) DefaultWeight() float32 {
	switch t {
	case EventClick:
		return 1
	case EventRecommendationClick:
		return 2
	case EventAddToCart:
		return 3
	case EventRemoveFromCart:
		return -1
	case EventPurchase:
		return 4
	default:
		return 1
	}
}

// ParseEventType parses an event type name, case-insensitively.
// Both the cart and shop-cart spellings are accepted.
func ParseEventType(s string) (EventType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "click":
		return EventClick, true
	case "recommendationclick":
		return EventRecommendationClick, true
	case "addtocart", "addshopcart":
		return EventAddToCart, true
	case "removefromcart", "removeshopcart":
		return EventRemoveFromCart, true
	case "purchase":
		return EventPurchase, true
	default:
		return EventUnknown, false
	}
}

// MarshalText encodes the event type by name.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts any name ParseEventType does.
func (t *EventType) UnmarshalText(text []byte) error {
	et, ok := ParseEventType(string(text))
	if !ok {
		return fmt.Errorf("unknown event type %q", text)
	}
	*t = et
	return nil
}

// UnmarshalJSON accepts an event type name or its numeric code.
func (t *EventType) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		return t.UnmarshalText([]byte(name))
	}
	if string(data) == "null" {
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil || n < int(EventClick) || n > int(EventPurchase) {
		return fmt.Errorf("unknown event type %s", data)
	}
	*t = EventType(n)
	return nil
}

// UsageEvent is one parsed usage row with dense ids.
type UsageEvent struct {
	UserID    uint32
	ItemID    uint32
	Timestamp time.Time
	Weight    float32
}

// CatalogItem is one parsed catalog row. Features has one slot per known
// feature name, indexed by feature id - 1; an empty slot means "not set".
type CatalogItem struct {
	ItemID   uint32
	Features []string
}

// SimilarityFunction selects how raw co-occurrence counts become scores.
type SimilarityFunction string

const (
	// SimilarityJaccard scores count(i,j) / (count(i) + count(j) - count(i,j)).
	SimilarityJaccard SimilarityFunction = "Jaccard"
	// SimilarityCooccurrence scores the raw count(i,j).
	SimilarityCooccurrence SimilarityFunction = "Cooccurrence"
	// SimilarityLift scores count(i,j) / (count(i) * count(j)).
	SimilarityLift SimilarityFunction = "Lift"
)

// Valid reports whether f names a supported function.
func (f SimilarityFunction) Valid() bool {
	switch f {
	case SimilarityJaccard, SimilarityCooccurrence, SimilarityLift:
		return true
	default:
		return false
	}
}

// CooccurrenceUnit selects how events are grouped into sessions.
type CooccurrenceUnit string

const (
	// UnitUser groups all events of one user into a single session.
	UnitUser CooccurrenceUnit = "User"
	// UnitTimestamp groups events of one user sharing a timestamp.
	UnitTimestamp CooccurrenceUnit = "Timestamp"
)

// Valid reports whether u names a supported unit.
func (u CooccurrenceUnit) Valid() bool {
	return u == UnitUser || u == UnitTimestamp
}

// Pair is one entry of the sparse similarity model. A < B always; the
// similarity functions are symmetric so the pair is stored once.
type Pair struct {
	A     uint32
	B     uint32
	Count uint32
	Score float64
}

// FeatureWeight reports how strongly one catalog feature drove cold-item similarity.
type FeatureWeight struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Neighbor is an item reachable through a nonzero similarity edge.
type Neighbor struct {
	Item  uint32
	Score float64
}

// SimilarityModel is the sparse item-item affinity model.
type SimilarityModel struct {
	Function SimilarityFunction

	// ItemCount is the highest dense item id.
	ItemCount int

	// Pairs is sorted by (A, B).
	Pairs []Pair

	// Occurrences[id] is the number of sessions containing item id. Index 0 is unused.
	Occurrences []uint32

	// Popular lists item ids with nonzero occurrence, most popular first,
	// ties broken by ascending id.
	Popular []uint32

	FeatureWeights []FeatureWeight

	adjOnce sync.Once
	adj     [][]Neighbor
}

// Neighbors returns every item with nonzero similarity to id, ordered by
// ascending item id. The slice is shared and must not be modified.
func (m *SimilarityModel) Neighbors(id uint32) []Neighbor {
	m.adjOnce.Do(m.buildAdjacency)
	if int(id) >= len(m.adj) {
		return nil
	}
	return m.adj[id]
}

func (m *SimilarityModel) buildAdjacency() {
	adj := make([][]Neighbor, m.ItemCount+1)
	for _, p := range m.Pairs {
		if p.Score == 0 || int(p.B) > m.ItemCount {
			continue
		}
		adj[p.A] = append(adj[p.A], Neighbor{Item: p.B, Score: p.Score})
		adj[p.B] = append(adj[p.B], Neighbor{Item: p.A, Score: p.Score})
	}
	for _, ns := range adj {
		sort.Slice(ns, func(i, j int) bool { return ns[i].Item < ns[j].Item })
	}
	m.adj = adj
}

// Similarity returns sim(a, b), which equals sim(b, a).
func (m *SimilarityModel) Similarity(a, b uint32) float64 {
	p, ok := m.pair(a, b)
	if !ok {
		return 0
	}
	return p.Score
}

// Cooccurrence returns the raw co-occurrence count of a and b.
func (m *SimilarityModel) Cooccurrence(a, b uint32) uint32 {
	p, ok := m.pair(a, b)
	if !ok {
		return 0
	}
	return p.Count
}

func (m *SimilarityModel) pair(a, b uint32) (Pair, bool) {
	if a > b {
		a, b = b, a
	}
	i := sort.Search(len(m.Pairs), func(i int) bool {
		p := m.Pairs[i]
		return p.A > a || (p.A == a && p.B >= b)
	})
	if i < len(m.Pairs) && m.Pairs[i].A == a && m.Pairs[i].B == b {
		return m.Pairs[i], true
	}
	return Pair{}, false
}

// Properties are the scoring settings frozen into a trained model.
type Properties struct {
	IncludeHistory        bool          `json:"include_history"`
	EnableUserAffinity    bool          `json:"enable_user_affinity"`
	IsUserToItemSupported bool          `json:"is_user_to_item_supported"`
	EnableBackfilling     bool          `json:"enable_backfilling"`
	ReferenceDate         time.Time     `json:"reference_date"`
	Decay                 time.Duration `json:"decay"`
	UniqueUsersCount      int           `json:"unique_users_count"`
}

// TrainedModel is the immutable output of a training run.
type TrainedModel struct {
	Properties Properties

	// Items is the reverse item index: Items[id-1] is the string id of dense id.
	Items []string

	Similarity *SimilarityModel

	lookupOnce sync.Once
	lookup     map[string]uint32
}

// ItemID maps a catalog string id to its dense id.
func (m *TrainedModel) ItemID(key string) (uint32, bool) {
	m.lookupOnce.Do(func() {
		m.lookup = make(map[string]uint32, len(m.Items))
		for i, k := range m.Items {
			m.lookup[k] = uint32(i + 1)
		}
	})
	id, ok := m.lookup[key]
	return id, ok
}

// ItemKey maps a dense id back to its catalog string id.
func (m *TrainedModel) ItemKey(id uint32) (string, bool) {
	if id == 0 || int(id) > len(m.Items) {
		return "", false
	}
	return m.Items[id-1], true
}

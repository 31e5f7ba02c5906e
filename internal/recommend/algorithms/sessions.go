// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package algorithms

import (
	"sort"

	"github.com/tomtom215/sarec/internal/recommend"
)

// SortBySessionUnit orders events so that every session is contiguous:
// by user, then timestamp, then item. The sort is stable.
func SortBySessionUnit(events []recommend.UsageEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return sessionLess(&events[i], &events[j])
	})
}

func sessionLess(a, b *recommend.UsageEvent) bool {
	if a.UserID != b.UserID {
		return a.UserID < b.UserID
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ItemID < b.ItemID
}

// span is a half-open range of a sorted event slice forming one session.
type span struct {
	start, end int
}

// splitSessions cuts sorted events into sessions for unit.
func splitSessions(events []recommend.UsageEvent, unit recommend.CooccurrenceUnit) []span {
	if len(events) == 0 {
		return nil
	}
	spans := make([]span, 0, len(events)/4+1)
	start := 0
	for i := 1; i < len(events); i++ {
		if sameSession(&events[start], &events[i], unit) {
			continue
		}
		spans = append(spans, span{start, i})
		start = i
	}
	return append(spans, span{start, len(events)})
}

func sameSession(a, b *recommend.UsageEvent, unit recommend.CooccurrenceUnit) bool {
	if a.UserID != b.UserID {
		return false
	}
	if unit == recommend.UnitTimestamp {
		return a.Timestamp.Equal(b.Timestamp)
	}
	return true
}

// distinctItems writes the sorted distinct item ids of events into buf.
func distinctItems(events []recommend.UsageEvent, buf []uint32) []uint32 {
	buf = buf[:0]
	for i := range events {
		if events[i].ItemID != 0 {
			buf = append(buf, events[i].ItemID)
		}
	}
	sort.Slice(buf, func(i, j int) bool { return buf[i] < buf[j] })
	out := buf[:0]
	for _, id := range buf {
		if len(out) == 0 || id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}

// CountUsers returns the number of distinct users in sorted events.
func CountUsers(events []recommend.UsageEvent) int {
	n := 0
	for i := range events {
		if i == 0 || events[i].UserID != events[i-1].UserID {
			n++
		}
	}
	return n
}

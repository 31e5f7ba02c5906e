// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package history

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tomtom215/sarec/internal/recommend"
)

// MaxEvents is the most events kept per user.
const MaxEvents = 100

// usersPerPartition sets the partition factor.
const usersPerPartition = 100

// ticksPerSecond and epochOffset define timestamp ticks: 100ns units counted
// from 0001-01-01T00:00:00Z.
const (
	ticksPerSecond = 10_000_000
	epochOffset    = 62_135_596_800
)

// PartitionFactor returns max(1, userCount/100).
func PartitionFactor(userCount int) int {
	f := userCount / usersPerPartition
	if f < 1 {
		return 1
	}
	return f
}

// PartitionKey maps userID to one of factor partitions.
func PartitionKey(userID string, factor int) string {
	if factor < 1 {
		factor = 1
	}
	return strconv.FormatUint(xxhash.Sum64String(userID)%uint64(factor), 10)
}

// Ticks converts t to timestamp ticks.
func Ticks(t time.Time) uint64 {
	sec := t.Unix() + epochOffset
	if sec < 0 {
		return 0
	}
	return uint64(sec)*ticksPerSecond + uint64(t.Nanosecond()/100)
}

// FromTicks converts timestamp ticks back to a UTC time.
func FromTicks(ticks uint64) time.Time {
	sec := int64(ticks/ticksPerSecond) - epochOffset
	nsec := int64(ticks%ticksPerSecond) * 100
	return time.Unix(sec, nsec).UTC()
}

// Encode serializes events in the given order as comma-joined
// hex(item).hex(ticks).hex(weightBits) triples.
func Encode(events []recommend.UsageEvent) string {
	var b strings.Builder
	b.Grow(len(events) * 24)
	for i, e := range events {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(e.ItemID), 16))
		b.WriteByte('.')
		b.WriteString(strconv.FormatUint(Ticks(e.Timestamp), 16))
		b.WriteByte('.')
		b.WriteString(strconv.FormatUint(uint64(math.Float32bits(e.Weight)), 16))
	}
	return b.String()
}

// Decode parses document content produced by Encode. UserID is left zero.
func Decode(content string) ([]recommend.UsageEvent, error) {
	if content == "" {
		return nil, nil
	}
	parts := strings.Split(content, ",")
	events := make([]recommend.UsageEvent, 0, len(parts))
	for i, p := range parts {
		fields := strings.Split(p, ".")
		if len(fields) != 3 {
			return nil, fmt.Errorf("history entry %d: expected 3 fields, got %d", i, len(fields))
		}
		item, err := strconv.ParseUint(fields[0], 16, 32)
		if err != nil {
			return nil, fmt.Errorf("history entry %d item: %w", i, err)
		}
		ticks, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("history entry %d timestamp: %w", i, err)
		}
		bits, err := strconv.ParseUint(fields[2], 16, 32)
		if err != nil {
			return nil, fmt.Errorf("history entry %d weight: %w", i, err)
		}
		events = append(events, recommend.UsageEvent{
			ItemID:    uint32(item),
			Timestamp: FromTicks(ticks),
			Weight:    math.Float32frombits(uint32(bits)),
		})
	}
	return events, nil
}

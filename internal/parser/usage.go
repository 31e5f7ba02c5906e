// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package parser

import (
	"context"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/sarec/internal/index"
	"github.com/tomtom215/sarec/internal/metrics"
	"github.com/tomtom215/sarec/internal/recommend"
)

// Usage is a parsed usage file set.
type Usage struct {
	Events []recommend.UsageEvent

	// MaxTimestamp is the newest event timestamp seen, counting defaulted timestamps.
	MaxTimestamp time.Time
}

// UsageOptions configures usage parsing.
type UsageOptions struct {
	Options

	// FileType labels the report. Default: FileUsage.
	FileType string

	// KnownItemsOnly rejects item ids absent from the item map with an
	// UnknownItemId warning instead of registering them. Set when a catalog
	// was supplied, and always for evaluation usage.
	KnownItemsOnly bool
}

type usageParser struct {
	items *index.Map
	users *index.Map
	known bool
	now   func() time.Time
	usage *Usage
}

// ParseUsage parses the usage file or folder at path.
func ParseUsage(ctx context.Context, path string, items, users *index.Map, opts UsageOptions) (*Usage, *Report, error) {
	p, report, start := newUsageParser(items, users, opts)
	if err := scanFiles(ctx, path, report, p.line); err != nil {
		return nil, report, err
	}
	return p.finish(report, start), report, nil
}

// ParseUsageReader parses a single usage stream.
func ParseUsageReader(ctx context.Context, name string, r io.Reader, items, users *index.Map, opts UsageOptions) (*Usage, *Report, error) {
	p, report, start := newUsageParser(items, users, opts)
	report.Files = append(report.Files, name)
	if _, err := scan(ctx, r, name, report, p.line); err != nil {
		return nil, report, err
	}
	return p.finish(report, start), report, nil
}

func newUsageParser(items, users *index.Map, opts UsageOptions) (*usageParser, *Report, time.Time) {
	opts.Options = opts.Options.withDefaults()
	if opts.FileType == "" {
		opts.FileType = FileUsage
	}
	p := &usageParser{
		items: items,
		users: users,
		known: opts.KnownItemsOnly,
		now:   opts.Now,
		usage: &Usage{},
	}
	return p, newReport(opts.FileType, opts.MaxErrors, opts.MaxSampleErrors), time.Now()
}

// line parses `userId,itemId[,timestamp[,eventType[,weight]]]`.
func (p *usageParser) line(fields []string) (ErrorCode, string) {
	if len(fields) < 2 {
		return MissingFields, "expected userId,itemId"
	}
	if len(fields) > 5 {
		return MalformedLine, "too many fields"
	}

	userID := strings.TrimSpace(fields[0])
	itemID := strings.TrimSpace(fields[1])
	if userID == "" || itemID == "" {
		return MissingFields, "empty user or item id"
	}
	if len(userID) > MaxUserIDLength {
		return UserIDTooLong, ""
	}
	if !validUserID(userID) {
		return IllegalCharactersInUserID, userID
	}
	if len(itemID) > MaxItemIDLength {
		return ItemIDTooLong, ""
	}

	var ts time.Time
	if len(fields) > 2 && strings.TrimSpace(fields[2]) != "" {
		parsed, ok := ParseTimestamp(fields[2])
		if !ok {
			return BadTimestampFormat, strings.TrimSpace(fields[2])
		}
		ts = parsed
	} else {
		ts = p.now().UTC()
	}

	eventType := recommend.EventClick
	if len(fields) > 3 && strings.TrimSpace(fields[3]) != "" {
		et, ok := recommend.ParseEventType(fields[3])
		if !ok {
			return MalformedLine, "unknown event type " + strings.TrimSpace(fields[3])
		}
		eventType = et
	}

	weight := eventType.DefaultWeight()
	if len(fields) > 4 && strings.TrimSpace(fields[4]) != "" {
		w, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 32)
		if err != nil || math.IsNaN(w) || math.IsInf(w, 0) {
			return BadWeightFormat, strings.TrimSpace(fields[4])
		}
		weight = float32(w)
	}

	var item uint32
	if p.known {
		id, ok := p.items.Get(itemID)
		if !ok {
			return UnknownItemID, itemID
		}
		item = id
	} else {
		item = p.items.GetOrAdd(itemID)
	}

	p.usage.Events = append(p.usage.Events, recommend.UsageEvent{
		UserID:    p.users.GetOrAdd(userID),
		ItemID:    item,
		Timestamp: ts,
		Weight:    weight,
	})
	if ts.After(p.usage.MaxTimestamp) {
		p.usage.MaxTimestamp = ts
	}
	return "", ""
}

func (p *usageParser) finish(report *Report, start time.Time) *Usage {
	if !report.Failed && len(p.usage.Events) == 0 {
		report.fail("no usable usage events")
	}
	report.Duration = time.Since(start)
	metrics.RecordParse(report.FileType, report.SuccessfulLines, report.ErrorLines, report.WarningLines)
	return p.usage
}

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006/01/02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// ParseTimestamp parses a usage timestamp in any accepted layout.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

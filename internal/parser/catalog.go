// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package parser

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/tomtom215/sarec/internal/index"
	"github.com/tomtom215/sarec/internal/metrics"
	"github.com/tomtom215/sarec/internal/recommend"
)

// Catalog is the parsed catalog. Every item's Features has len(FeatureNames) slots.
type Catalog struct {
	Items        []recommend.CatalogItem
	FeatureNames []string
}

// catalogParser accumulates catalog rows across files.
type catalogParser struct {
	items    *index.Map
	features *index.Map
	seen     map[uint32]struct{}
	rows     []catalogRow
}

type catalogRow struct {
	id       uint32
	features map[uint32]string // feature id -> value
}

func newCatalogParser(items *index.Map) *catalogParser {
	return &catalogParser{
		items:    items,
		features: index.New(),
		seen:     make(map[uint32]struct{}),
	}
}

// ParseCatalog parses the catalog file or folder at path. Item ids are
// registered in items.
func ParseCatalog(ctx context.Context, path string, items *index.Map, opts Options) (*Catalog, *Report, error) {
	opts = opts.withDefaults()
	start := time.Now()
	p := newCatalogParser(items)
	report := newReport(FileCatalog, opts.MaxErrors, opts.MaxSampleErrors)

	if err := scanFiles(ctx, path, report, p.line); err != nil {
		return nil, report, err
	}
	return p.finish(report, start), report, nil
}

// ParseCatalogReader parses a single catalog stream.
func ParseCatalogReader(ctx context.Context, name string, r io.Reader, items *index.Map, opts Options) (*Catalog, *Report, error) {
	opts = opts.withDefaults()
	start := time.Now()
	p := newCatalogParser(items)
	report := newReport(FileCatalog, opts.MaxErrors, opts.MaxSampleErrors)
	report.Files = append(report.Files, name)

	if _, err := scan(ctx, r, name, report, p.line); err != nil {
		return nil, report, err
	}
	return p.finish(report, start), report, nil
}

// line parses `itemId,name,category,description[,feature=value]*`.
func (p *catalogParser) line(fields []string) (ErrorCode, string) {
	if len(fields) < 4 {
		return MissingFields, "expected at least 4 fields"
	}
	itemID := strings.TrimSpace(fields[0])
	if itemID == "" {
		return MissingFields, "empty item id"
	}
	if len(itemID) > MaxItemIDLength {
		return ItemIDTooLong, ""
	}

	var feats map[string]string
	var order []string
	for _, tok := range fields[4:] {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		eq := strings.IndexByte(tok, '=')
		if eq <= 0 {
			return MalformedFeature, tok
		}
		name := strings.TrimSpace(tok[:eq])
		value := strings.TrimSpace(tok[eq+1:])
		if name == "" {
			return MalformedFeature, tok
		}
		if feats == nil {
			feats = make(map[string]string)
		}
		if prev, ok := feats[name]; ok {
			feats[name] = prev + ";" + value
			continue
		}
		feats[name] = value
		order = append(order, name)
	}

	if existing, ok := p.items.Get(itemID); ok {
		if _, dup := p.seen[existing]; dup {
			return DuplicateItemID, itemID
		}
	}

	id := p.items.GetOrAdd(itemID)
	p.seen[id] = struct{}{}
	row := catalogRow{id: id}
	if len(order) > 0 {
		row.features = make(map[uint32]string, len(order))
		for _, name := range order {
			row.features[p.features.GetOrAdd(name)] = feats[name]
		}
	}
	p.rows = append(p.rows, row)
	return "", ""
}

// finish inflates every feature vector to the final feature count.
func (p *catalogParser) finish(report *Report, start time.Time) *Catalog {
	names := p.features.Keys()
	cat := &Catalog{
		Items:        make([]recommend.CatalogItem, len(p.rows)),
		FeatureNames: names,
	}
	for i, row := range p.rows {
		vec := make([]string, len(names))
		for fid, v := range row.features {
			vec[fid-1] = v
		}
		cat.Items[i] = recommend.CatalogItem{ItemID: row.id, Features: vec}
	}

	if !report.Failed && len(cat.Items) == 0 {
		report.fail("no usable catalog items")
	}
	report.Duration = time.Since(start)
	metrics.RecordParse(report.FileType, report.SuccessfulLines, report.ErrorLines, report.WarningLines)
	return cat
}

// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package parser streams catalog and usage files into dense-id records.
//
// Files are read one line at a time. Each line is either accepted, rejected
// with a hard error that consumes the shared error budget, or skipped with a
// warning. Once the number of hard errors exceeds the budget, parsing stops
// and the Report is marked failed. Ids already registered in the index maps
// are not rolled back.
//
// Data-quality problems never surface as Go errors; only I/O failures and
// cancellation do.
package parser

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultMaxErrors is the default tolerated hard-error count.
	DefaultMaxErrors = 100

	// MaxItemIDLength is the longest accepted item id.
	MaxItemIDLength = 450

	// MaxUserIDLength is the longest accepted user id.
	MaxUserIDLength = 255

	maxLineBytes = 4 << 20
)

// Options controls parsing behavior.
type Options struct {
	// MaxErrors is the hard-error budget. Default: DefaultMaxErrors.
	MaxErrors int

	// MaxSampleErrors bounds the detailed line errors kept in the report.
	// Default: MaxErrors.
	MaxSampleErrors int

	// Now supplies the timestamp for usage rows without one.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxErrors <= 0 {
		o.MaxErrors = DefaultMaxErrors
	}
	if o.MaxSampleErrors <= 0 {
		o.MaxSampleErrors = o.MaxErrors
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Files resolves path to the files it names: the file itself, or the regular
// files of a directory sorted by name. Hidden files are skipped.
func Files(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// lineFunc handles one non-blank line. It returns "" when the line was accepted.
type lineFunc func(fields []string) (ErrorCode, string)

// scan feeds every non-blank line of r to handle. It returns stopped=true once
// the report's budget is exceeded.
func scan(ctx context.Context, r io.Reader, file string, report *Report, handle lineFunc) (stopped bool, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return false, err
			}
		}

		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		code, detail := handle(strings.Split(line, ","))
		if code == "" {
			report.success()
			continue
		}
		if report.reject(file, lineNo, code, detail) {
			return true, nil
		}
	}
	if err := sc.Err(); err != nil {
		return false, fmt.Errorf("read %s: %w", file, err)
	}
	return false, ctx.Err()
}

// scanFiles runs scan over every file from Files(path).
func scanFiles(ctx context.Context, path string, report *Report, handle lineFunc) error {
	files, err := Files(path)
	if err != nil {
		return err
	}
	for _, f := range files {
		stopped, err := scanFile(ctx, f, report, handle)
		if err != nil {
			return err
		}
		if stopped {
			return nil
		}
	}
	return nil
}

func scanFile(ctx context.Context, file string, report *Report, handle lineFunc) (bool, error) {
	fh, err := os.Open(file) //nolint:gosec // path comes from the training working directory
	if err != nil {
		return false, fmt.Errorf("open %s: %w", file, err)
	}
	defer fh.Close()

	report.Files = append(report.Files, filepath.Base(file))
	return scan(ctx, fh, filepath.Base(file), report, handle)
}

// validUserID reports whether id contains only letters, digits, '-' and '_'.
func validUserID(id string) bool {
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

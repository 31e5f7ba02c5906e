// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package parser

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorCode classifies a rejected input line.
type ErrorCode string

// Hard errors consume the error budget.
const (
	MalformedLine             ErrorCode = "MalformedLine"
	MissingFields             ErrorCode = "MissingFields"
	BadTimestampFormat        ErrorCode = "BadTimestampFormat"
	BadWeightFormat           ErrorCode = "BadWeightFormat"
	MalformedFeature          ErrorCode = "MalformedFeature"
	ItemIDTooLong             ErrorCode = "ItemIdTooLong"
	UserIDTooLong             ErrorCode = "UserIdTooLong"
	IllegalCharactersInUserID ErrorCode = "IllegalCharactersInUserId"
)

// Warnings skip the line without consuming the budget.
const (
	UnknownItemID   ErrorCode = "UnknownItemId"
	DuplicateItemID ErrorCode = "DuplicateItemId"
)

// IsWarning reports whether c is a warning rather than a hard error.
func (c ErrorCode) IsWarning() bool {
	return c == UnknownItemID || c == DuplicateItemID
}

// File types reported by the parsers.
const (
	FileCatalog         = "catalog"
	FileUsage           = "usage"
	FileEvaluationUsage = "evaluation_usage"
)

// LineError describes one rejected line.
type LineError struct {
	File   string    `json:"file"`
	Line   int       `json:"line"`
	Code   ErrorCode `json:"code"`
	Detail string    `json:"detail,omitempty"`
}

func (e LineError) String() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Code)
	}
	return fmt.Sprintf("%s:%d: %s (%s)", e.File, e.Line, e.Code, e.Detail)
}

// Report summarizes parsing of one file set.
//
// TotalLines == SuccessfulLines + ErrorLines + WarningLines always holds.
// Blank lines are not counted.
type Report struct {
	FileType        string            `json:"file_type"`
	Files           []string          `json:"files"`
	TotalLines      int               `json:"total_lines"`
	SuccessfulLines int               `json:"successful_lines"`
	ErrorLines      int               `json:"error_lines"`
	WarningLines    int               `json:"warning_lines"`
	ErrorCounts     map[ErrorCode]int `json:"error_counts,omitempty"`
	Errors          []LineError       `json:"errors,omitempty"`
	Failed          bool              `json:"failed"`
	FailureReason   string            `json:"failure_reason,omitempty"`
	Duration        time.Duration     `json:"duration"`

	maxErrors int
	maxSample int
}

func newReport(fileType string, maxErrors, maxSample int) *Report {
	return &Report{
		FileType:    fileType,
		ErrorCounts: make(map[ErrorCode]int),
		maxErrors:   maxErrors,
		maxSample:   maxSample,
	}
}

func (r *Report) success() {
	r.TotalLines++
	r.SuccessfulLines++
}

// reject records a failed line and reports whether the error budget is now exceeded.
func (r *Report) reject(file string, line int, code ErrorCode, detail string) bool {
	r.TotalLines++
	r.ErrorCounts[code]++
	if code.IsWarning() {
		r.WarningLines++
	} else {
		r.ErrorLines++
	}
	if len(r.Errors) < r.maxSample {
		r.Errors = append(r.Errors, LineError{File: file, Line: line, Code: code, Detail: detail})
	}
	if r.ErrorLines > r.maxErrors {
		r.fail(fmt.Sprintf("error budget exceeded: %d errors, budget %d", r.ErrorLines, r.maxErrors))
		return true
	}
	return false
}

func (r *Report) fail(reason string) {
	if r.Failed {
		return
	}
	r.Failed = true
	r.FailureReason = reason
}

// Summary renders a one-line human readable description.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d lines, %d ok, %d errors, %d warnings",
		r.FileType, r.TotalLines, r.SuccessfulLines, r.ErrorLines, r.WarningLines)
	if len(r.ErrorCounts) > 0 {
		codes := make([]string, 0, len(r.ErrorCounts))
		for c := range r.ErrorCounts {
			codes = append(codes, string(c))
		}
		sort.Strings(codes)
		b.WriteString(" [")
		for i, c := range codes {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%d", c, r.ErrorCounts[ErrorCode(c)])
		}
		b.WriteString("]")
	}
	if r.Failed {
		b.WriteString("; failed: ")
		b.WriteString(r.FailureReason)
	}
	return b.String()
}

// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"

	"github.com/tomtom215/sarec/internal/blob"
	"github.com/tomtom215/sarec/internal/config"
	"github.com/tomtom215/sarec/internal/recommend"
	"github.com/tomtom215/sarec/internal/registry"
	"github.com/tomtom215/sarec/internal/training"
)

func parseTrainFlags(t *testing.T, args ...string) (*cobra.Command, *trainFlags) {
	t.Helper()
	cmd := &cobra.Command{Use: "train"}
	f := &trainFlags{}
	bindTrainFlags(cmd, f)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return cmd, f
}

func TestTrainFlags_KeepDefaultsForUnsetFlags(t *testing.T) {
	defaults := training.DefaultParameters()
	defaults.SupportThreshold = 4
	defaults.EnableBackfilling = true

	cmd, f := parseTrainFlags(t, "--usage", "usage/")
	p := f.parameters(cmd, defaults)

	if p.UsagePath != "usage/" {
		t.Errorf("UsagePath = %q", p.UsagePath)
	}
	if p.SupportThreshold != 4 {
		t.Errorf("SupportThreshold = %d, want default 4", p.SupportThreshold)
	}
	if !p.EnableBackfilling {
		t.Error("EnableBackfilling default was overwritten by unset flag")
	}
}

func TestTrainFlags_Overrides(t *testing.T) {
	cmd, f := parseTrainFlags(t,
		"--usage", "u.csv",
		"--catalog", "catalog.csv",
		"--eval-usage", "eval.csv",
		"--support-threshold", "7",
		"--similarity", "Lift",
		"--cooccurrence-unit", "Timestamp",
		"--decay-days", "30",
		"--cold-items",
		"--backfill=false",
	)
	defaults := training.DefaultParameters()
	defaults.EnableBackfilling = true
	p := f.parameters(cmd, defaults)

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"catalog", p.CatalogPath, "catalog.csv"},
		{"eval", p.EvaluationUsagePath, "eval.csv"},
		{"support", p.SupportThreshold, 7},
		{"similarity", p.SimilarityFunction, recommend.SimilarityLift},
		{"unit", p.CooccurrenceUnit, recommend.CooccurrenceUnit("Timestamp")},
		{"decay", p.DecayPeriodInDays, 30},
		{"cold", p.EnableColdItemPlacement, true},
		{"backfill", p.EnableBackfilling, false},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name   string
		res    *training.Result
		err    error
		status registry.Status
	}{
		{"succeeded", &training.Result{Succeeded: true, CompletionMessage: "ok"}, nil, registry.StatusCompleted},
		{"data failure", &training.Result{CompletionMessage: "too many errors"}, nil, registry.StatusFailed},
		{"cancelled", &training.Result{}, fmt.Errorf("train: %w", context.Canceled), registry.StatusAborted},
		{"timeout", nil, context.DeadlineExceeded, registry.StatusAborted},
		{"infrastructure", nil, errors.New("blob store down"), registry.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := outcome(tt.res, tt.err)
			if status != tt.status {
				t.Errorf("status = %s, want %s", status, tt.status)
			}
			if msg == "" {
				t.Error("empty status message")
			}
		})
	}
}

func TestSeedEvents(t *testing.T) {
	got := seedEvents(" a, b,,c ")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i, ev := range got {
		if ev.ItemID != want[i] {
			t.Errorf("event %d = %q, want %q", i, ev.ItemID, want[i])
		}
	}
	if seedEvents("") != nil {
		t.Error("empty list should yield no events")
	}
}

func TestAppOverrides(t *testing.T) {
	cfg := &config.Config{Storage: blob.Config{Backend: blob.BackendGCS}}
	appOverrides{blobRoot: "/tmp/data", inMemory: true}.apply(cfg)
	if cfg.Storage.Backend != blob.BackendFilesystem || cfg.Storage.Root != "/tmp/data" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if !cfg.Database.InMemory {
		t.Error("InMemory not set")
	}

	cfg = &config.Config{Storage: blob.Config{Backend: blob.BackendGCS}}
	appOverrides{}.apply(cfg)
	if cfg.Storage.Backend != blob.BackendGCS {
		t.Errorf("empty overrides changed backend to %s", cfg.Storage.Backend)
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(&configError{errors.New("bad")}); got != ExitConfigError {
		t.Errorf("config error exit = %d", got)
	}
	if got := exitCode(fmt.Errorf("wrapped: %w", &configError{errors.New("bad")})); got != ExitConfigError {
		t.Errorf("wrapped config error exit = %d", got)
	}
	if got := exitCode(errors.New("other")); got != ExitError {
		t.Errorf("other error exit = %d", got)
	}
}

// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

type sample struct {
	ModelID   string `json:"model_id" validate:"required,modelid"`
	Usage     string `json:"usage" validate:"required,blobpath"`
	Threshold int    `json:"support_threshold" validate:"gte=1"`
	Function  string `json:"similarity_function" validate:"oneof=Jaccard Cooccurrence Lift"`
}

func TestValidateStruct(t *testing.T) {
	valid := sample{ModelID: "model_1", Usage: "input/usage/", Threshold: 3, Function: "Jaccard"}
	tests := []struct {
		name      string
		mutate    func(*sample)
		wantField string
		wantTag   string
	}{
		{"valid", func(*sample) {}, "", ""},
		{"missing model", func(s *sample) { s.ModelID = "" }, "model_id", "required"},
		{"bad model", func(s *sample) { s.ModelID = "a b" }, "model_id", "modelid"},
		{"escaping path", func(s *sample) { s.Usage = "../etc/passwd" }, "usage", "blobpath"},
		{"absolute path", func(s *sample) { s.Usage = "/input" }, "usage", "blobpath"},
		{"threshold", func(s *sample) { s.Threshold = 0 }, "support_threshold", "gte"},
		{"function", func(s *sample) { s.Function = "Cosine" }, "similarity_function", "oneof"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := ValidateStruct(&s)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *Error", err)
			}
			fields := verr.Fields()
			if len(fields) != 1 || fields[0].Field() != tt.wantField || fields[0].Tag() != tt.wantTag {
				t.Errorf("fields = %+v", fields)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("message %q does not name the field", err.Error())
			}
		})
	}
}

func TestValidModelID(t *testing.T) {
	tests := map[string]bool{
		"abc":                   true,
		"A-b_9":                 true,
		"":                      false,
		"has space":             false,
		"dot.ted":               false,
		strings.Repeat("x", 64): true,
		strings.Repeat("x", 65): false,
	}
	for in, want := range tests {
		if got := ValidModelID(in); got != want {
			t.Errorf("ValidModelID(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidBlobPath(t *testing.T) {
	tests := map[string]bool{
		"catalog.csv":  true,
		"input/usage/": true,
		"a/b..c/d":     true,
		"":             false,
		"/abs":         false,
		"a/../b":       false,
		"win\\path":    false,
	}
	for in, want := range tests {
		if got := ValidBlobPath(in); got != want {
			t.Errorf("ValidBlobPath(%q) = %v, want %v", in, got, want)
		}
	}
}

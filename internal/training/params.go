// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package training

import (
	"time"

	"github.com/tomtom215/sarec/internal/parser"
	"github.com/tomtom215/sarec/internal/recommend"
	"github.com/tomtom215/sarec/internal/validation"
)

// Parameters are the user-supplied settings of one training run.
//
// Blob paths name either a single blob or a prefix whose blobs are parsed in
// name order.
type Parameters struct {
	CatalogPath         string `json:"catalog_path,omitempty" koanf:"catalog_path" validate:"omitempty,blobpath"`
	UsagePath           string `json:"usage_path" koanf:"usage_path" validate:"required,blobpath"`
	EvaluationUsagePath string `json:"evaluation_usage_path,omitempty" koanf:"evaluation_usage_path" validate:"omitempty,blobpath"`

	SupportThreshold   int                          `json:"support_threshold" koanf:"support_threshold" validate:"gte=1"`
	CooccurrenceUnit   recommend.CooccurrenceUnit   `json:"cooccurrence_unit" koanf:"cooccurrence_unit" validate:"oneof=User Timestamp"`
	SimilarityFunction recommend.SimilarityFunction `json:"similarity_function" koanf:"similarity_function" validate:"oneof=Jaccard Cooccurrence Lift"`

	EnableColdItemPlacement         bool `json:"enable_cold_item_placement" koanf:"enable_cold_item_placement"`
	EnableColdToColdRecommendations bool `json:"enable_cold_to_cold_recommendations" koanf:"enable_cold_to_cold_recommendations"`
	EnableUserAffinity              bool `json:"enable_user_affinity" koanf:"enable_user_affinity"`
	EnableUserToItemRecommendations bool `json:"enable_user_to_item_recommendations" koanf:"enable_user_to_item_recommendations"`
	AllowSeedItemsInRecommendations bool `json:"allow_seed_items_in_recommendations" koanf:"allow_seed_items_in_recommendations"`
	EnableBackfilling               bool `json:"enable_backfilling" koanf:"enable_backfilling"`

	// DecayPeriodInDays is the affinity half-life. Zero disables decay.
	DecayPeriodInDays int `json:"decay_period_in_days" koanf:"decay_period_in_days" validate:"gte=0,lte=3650"`

	// MaxErrors is the parse error budget shared by every file of one kind.
	MaxErrors int `json:"max_errors" koanf:"max_errors" validate:"gte=0"`
}

// DefaultParameters returns the defaults applied to unset fields.
func DefaultParameters() Parameters {
	return Parameters{
		SupportThreshold:   3,
		CooccurrenceUnit:   recommend.UnitUser,
		SimilarityFunction: recommend.SimilarityJaccard,
		EnableUserAffinity: true,
		EnableBackfilling:  true,
		DecayPeriodInDays:  30,
		MaxErrors:          parser.DefaultMaxErrors,
	}
}

// WithDefaults fills zero-valued numeric and enum fields from DefaultParameters.
// Booleans are taken as given.
func (p Parameters) WithDefaults() Parameters {
	d := DefaultParameters()
	if p.SupportThreshold == 0 {
		p.SupportThreshold = d.SupportThreshold
	}
	if p.CooccurrenceUnit == "" {
		p.CooccurrenceUnit = d.CooccurrenceUnit
	}
	if p.SimilarityFunction == "" {
		p.SimilarityFunction = d.SimilarityFunction
	}
	if p.MaxErrors == 0 {
		p.MaxErrors = d.MaxErrors
	}
	return p
}

// Validate checks p with the shared validator.
func (p *Parameters) Validate() error {
	return validation.ValidateStruct(p)
}

// Decay returns the affinity half-life.
func (p *Parameters) Decay() time.Duration {
	return time.Duration(p.DecayPeriodInDays) * 24 * time.Hour
}

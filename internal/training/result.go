// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package training

import (
	"fmt"
	"time"

	"github.com/tomtom215/sarec/internal/evaluate"
	"github.com/tomtom215/sarec/internal/history"
	"github.com/tomtom215/sarec/internal/parser"
	"github.com/tomtom215/sarec/internal/recommend"
	"github.com/tomtom215/sarec/internal/recommend/algorithms"
	"github.com/tomtom215/sarec/internal/recommend/storage"
)

// Phase names one step of a training run.
type Phase string

// Phases in execution order.
const (
	PhaseValidateInputs       Phase = "ValidateInputs"
	PhaseDownloadInputs       Phase = "DownloadInputs"
	PhaseParseCatalog         Phase = "ParseCatalog"
	PhaseParseUsage           Phase = "ParseUsage"
	PhaseSortBySessionUnit    Phase = "SortBySessionUnit"
	PhaseStoreHistory         Phase = "StoreHistory"
	PhaseParseEvaluationUsage Phase = "ParseEvaluationUsage"
	PhaseTrain                Phase = "Train"
	PhaseEvaluate             Phase = "Evaluate"
	PhaseAwaitHistoryStore    Phase = "AwaitHistoryStore"
	PhaseStoreModel           Phase = "StoreModel"
	PhaseDone                 Phase = "Done"
)

// PhaseDuration is the wall-clock time spent in one phase.
type PhaseDuration struct {
	Phase    Phase         `json:"phase"`
	Duration time.Duration `json:"duration"`
}

// Result is the structured outcome of a training run. It is returned for
// successful and failed runs alike.
type Result struct {
	ModelID   string `json:"model_id"`
	Succeeded bool   `json:"succeeded"`

	// Phase is the last phase entered. On failure it is the phase that failed.
	Phase Phase `json:"phase"`

	CompletionMessage string `json:"completion_message"`

	Parameters Parameters `json:"parameters"`

	CatalogReport         *parser.Report `json:"catalog_report,omitempty"`
	UsageReport           *parser.Report `json:"usage_report,omitempty"`
	EvaluationUsageReport *parser.Report `json:"evaluation_usage_report,omitempty"`

	Durations []PhaseDuration `json:"durations"`

	Training       *algorithms.Stats         `json:"training,omitempty"`
	FeatureWeights []recommend.FeatureWeight `json:"feature_weights,omitempty"`
	Evaluation     *evaluate.Result          `json:"evaluation,omitempty"`
	History        *history.UploadStats      `json:"history,omitempty"`
	Artifact       *storage.Metadata         `json:"artifact,omitempty"`
	Properties     *recommend.Properties     `json:"properties,omitempty"`

	StartedAt     time.Time     `json:"started_at"`
	TotalDuration time.Duration `json:"total_duration"`

	// Model is the trained model of a successful run.
	Model *recommend.TrainedModel `json:"-"`
}

// Duration returns the recorded duration of p, or zero when p never ran.
func (r *Result) Duration(p Phase) time.Duration {
	for _, d := range r.Durations {
		if d.Phase == p {
			return d.Duration
		}
	}
	return 0
}

// TrainingError is an infrastructure failure during a training run.
// Cancellation is never reported as a TrainingError.
type TrainingError struct {
	Phase   Phase
	ModelID string
	Cause   error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training %s failed in %s: %v", e.ModelID, e.Phase, e.Cause)
}

func (e *TrainingError) Unwrap() error {
	return e.Cause
}

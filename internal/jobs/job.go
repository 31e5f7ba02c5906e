// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package jobs queues training runs.
//
// A TrainingJob is published to DefaultTopic and consumed by a watermill
// router that runs the training orchestrator and records the outcome in the
// model registry. The transport is either an in-process gochannel or NATS
// JetStream.
package jobs

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sarec/internal/training"
)

// DefaultTopic carries training jobs.
const DefaultTopic = "sarec.training"

// Metadata keys set on every job message.
const (
	MetadataModelID = "model_id"
	metadataAttempt = "attempt"
)

// ErrInvalidJob marks a payload that can never be processed.
var ErrInvalidJob = errors.New("invalid training job")

// TrainingJob asks for one model to be trained.
type TrainingJob struct {
	ModelID     string              `json:"model_id"`
	Description string              `json:"description,omitempty"`
	Parameters  training.Parameters `json:"parameters"`
}

// EncodeJob serializes job.
func EncodeJob(job *TrainingJob) ([]byte, error) {
	if job.ModelID == "" {
		return nil, fmt.Errorf("%w: model id is empty", ErrInvalidJob)
	}
	return json.Marshal(job)
}

// DecodeJob parses a job payload.
func DecodeJob(data []byte) (*TrainingJob, error) {
	var job TrainingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if job.ModelID == "" {
		return nil, fmt.Errorf("%w: model id is empty", ErrInvalidJob)
	}
	return &job, nil
}

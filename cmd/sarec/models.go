// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/sarec/internal/registry"
)

// ModelSummary is one row of the models listing.
type ModelSummary struct {
	ID            string          `json:"id"`
	Status        registry.Status `json:"status"`
	StatusMessage string          `json:"status_message,omitempty"`
	Description   string          `json:"description,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ModelsResponse is the output of the models command.
type ModelsResponse struct {
	Models []ModelSummary `json:"models"`
	Count  int            `json:"count"`
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List registered models",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func runModels(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, appOverrides{})
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	records, err := a.registry.List(ctx)
	if err != nil {
		return fail(err)
	}
	resp := ModelsResponse{Models: make([]ModelSummary, 0, len(records)), Count: len(records)}
	for i := range records {
		r := &records[i]
		resp.Models = append(resp.Models, ModelSummary{
			ID:            r.ID,
			Status:        r.Status,
			StatusMessage: r.StatusMessage,
			Description:   r.Description,
			UpdatedAt:     r.UpdatedAt,
		})
	}
	return outputJSON(resp)
}

// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/sarec/internal/blob"
	"github.com/tomtom215/sarec/internal/cache"
	"github.com/tomtom215/sarec/internal/recommend"
)

const (
	artifactPrefix = "models/"
	artifactSuffix = ".sarm"

	// DefaultModelTTL is the absolute lifetime of a cached model.
	DefaultModelTTL = time.Hour
)

// ArtifactName returns the blob name of a model artifact.
func ArtifactName(modelID string) string {
	return artifactPrefix + modelID + artifactSuffix
}

// ModelStore reads and writes model artifacts in a blob store.
type ModelStore struct {
	blobs  blob.Store
	logger zerolog.Logger
}

// NewModelStore creates a model store over blobs.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewModelStore(blobs blob.Store, logger zerolog.Logger) *ModelStore {
	return &ModelStore{blobs: blobs, logger: logger.With().Str("component", "model_store").Logger()}
}

// Save encodes and uploads model. It returns the completed metadata.
func (s *ModelStore) Save(ctx context.Context, modelID string, model *recommend.TrainedModel, meta Metadata) (*Metadata, error) {
	meta.ModelID = modelID
	meta.SavedAt = time.Now().UTC()
	meta.ItemCount = len(model.Items)
	if model.Similarity != nil {
		meta.PairCount = len(model.Similarity.Pairs)
	}

	data, err := Encode(model, &meta)
	if err != nil {
		return nil, err
	}
	if err := s.blobs.Upload(ctx, ArtifactName(modelID), data); err != nil {
		return nil, fmt.Errorf("upload model %s: %w", modelID, err)
	}
	s.logger.Info().
		Str("model_id", modelID).
		Int64("size_bytes", meta.SizeBytes).
		Int("pairs", meta.PairCount).
		Msg("Model artifact stored")
	return &meta, nil
}

// Load downloads and decodes a model. A missing artifact is recommend.ErrModelNotFound.
func (s *ModelStore) Load(ctx context.Context, modelID string) (*recommend.TrainedModel, *Metadata, error) {
	data, err := s.blobs.Download(ctx, ArtifactName(modelID))
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", recommend.ErrModelNotFound, modelID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("download model %s: %w", modelID, err)
	}
	model, meta, err := Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("model %s: %w", modelID, err)
	}
	return model, meta, nil
}

// Delete removes a model artifact.
func (s *ModelStore) Delete(ctx context.Context, modelID string) error {
	if err := s.blobs.Delete(ctx, ArtifactName(modelID)); err != nil {
		return fmt.Errorf("delete model %s: %w", modelID, err)
	}
	return nil
}

// List returns the ids of every stored model.
func (s *ModelStore) List(ctx context.Context) ([]string, error) {
	names, err := s.blobs.List(ctx, artifactPrefix)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	ids := make([]string, 0, len(names))
	for _, n := range names {
		if !strings.HasSuffix(n, artifactSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(n, artifactPrefix), artifactSuffix))
	}
	return ids, nil
}

// ModelCache serves decoded models from memory with an absolute TTL.
// It implements recommend.ModelProvider.
type ModelCache struct {
	store  *ModelStore
	models *cache.Cache[*recommend.TrainedModel]
	loads  singleflight.Group
}

// NewModelCache creates a cache in front of store. ttl <= 0 uses DefaultModelTTL.
func NewModelCache(store *ModelStore, ttl time.Duration) *ModelCache {
	if ttl <= 0 {
		ttl = DefaultModelTTL
	}
	return &ModelCache{
		store: store,
		models: cache.New[*recommend.TrainedModel](cache.Options{
			TTL:           ttl,
			Policy:        cache.Absolute,
			SweepInterval: ttl,
		}),
	}
}

// Model returns the cached model, loading it on a miss.
func (c *ModelCache) Model(ctx context.Context, modelID string) (*recommend.TrainedModel, error) {
	if m, ok := c.models.Get(modelID); ok {
		return m, nil
	}
	v, err, _ := c.loads.Do(modelID, func() (interface{}, error) {
		m, _, err := c.store.Load(ctx, modelID)
		if err != nil {
			return nil, err
		}
		c.models.Set(modelID, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*recommend.TrainedModel), nil
}

// Evict drops modelID from memory.
func (c *ModelCache) Evict(modelID string) {
	c.models.Delete(modelID)
	c.loads.Forget(modelID)
}

// Delete evicts modelID and removes its artifact.
func (c *ModelCache) Delete(ctx context.Context, modelID string) error {
	c.Evict(modelID)
	return c.store.Delete(ctx, modelID)
}

// Stats returns the model cache counters.
func (c *ModelCache) Stats() cache.Stats {
	return c.models.Stats()
}

// Len returns the number of cached models.
func (c *ModelCache) Len() int {
	return c.models.Len()
}

// Close stops the background sweep.
func (c *ModelCache) Close() {
	c.models.Close()
}

var _ recommend.ModelProvider = (*ModelCache)(nil)

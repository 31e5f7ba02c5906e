// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"

	"github.com/tomtom215/sarec/internal/logging"
	"github.com/tomtom215/sarec/internal/metrics"
	"github.com/tomtom215/sarec/internal/registry"
	"github.com/tomtom215/sarec/internal/training"
)

// Job outcomes recorded in metrics.
const (
	outcomeAcked  = "acked"
	outcomeNacked = "nacked"
	outcomePoison = "poison"
)

// Trainer runs one training pipeline.
type Trainer interface {
	Train(ctx context.Context, modelID string, params training.Parameters) (*training.Result, error)
}

// errSkip acks a job without running it.
var errSkip = errors.New("skip job")

// Consumer trains models for jobs read from the queue and records each
// outcome in the registry. It implements suture.Service.
//
// Data-quality failures and cancellations are acked with the record set to
// Failed or Aborted. Infrastructure errors are returned to the retry
// middleware; the last attempt marks the record Failed and acks.
type Consumer struct {
	cfg      Config
	sub      message.Subscriber
	trainer  Trainer
	registry registry.Store
	logger   zerolog.Logger

	runningOnce sync.Once
	running     chan struct{}
}

// NewConsumer creates a consumer reading cfg.Topic from sub.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewConsumer(cfg *Config, sub message.Subscriber, trainer Trainer, reg registry.Store, logger zerolog.Logger) *Consumer {
	c := *cfg
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	return &Consumer{
		cfg:      c,
		sub:      sub,
		trainer:  trainer,
		registry: reg,
		logger:   logger.With().Str("component", "jobs").Logger(),
		running:  make(chan struct{}),
	}
}

// Running is closed once the first router is consuming.
func (c *Consumer) Running() <-chan struct{} {
	return c.running
}

// Serve runs a router until ctx is cancelled. Every call builds a fresh
// router so the supervisor can restart the service.
func (c *Consumer) Serve(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: c.cfg.CloseTimeout},
		logging.NewWatermillAdapter(c.logger))
	if err != nil {
		return fmt.Errorf("create watermill router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      c.cfg.Retry.MaxRetries,
		InitialInterval: c.cfg.Retry.InitialInterval,
		MaxInterval:     c.cfg.Retry.MaxInterval,
		Multiplier:      c.cfg.Retry.Multiplier,
		Logger:          logging.NewWatermillAdapter(c.logger),
	}
	router.AddMiddleware(retry.Middleware)
	router.AddConsumerHandler("sarec-training", c.cfg.Topic, c.sub, c.Handle)

	go func() {
		select {
		case <-router.Running():
			c.runningOnce.Do(func() { close(c.running) })
		case <-ctx.Done():
		}
	}()

	c.logger.Info().Str("topic", c.cfg.Topic).Msg("Training job consumer started")
	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("run watermill router: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("watermill router stopped")
}

// String names the service in supervisor logs.
func (c *Consumer) String() string {
	return "jobs-consumer"
}

// attempt increments and returns the delivery attempt stored on msg.
func attempt(msg *message.Message) int {
	n, _ := strconv.Atoi(msg.Metadata.Get(metadataAttempt))
	n++
	msg.Metadata.Set(metadataAttempt, strconv.Itoa(n))
	return n
}

// Handle processes one job message.
func (c *Consumer) Handle(msg *message.Message) error {
	job, err := DecodeJob(msg.Payload)
	if err != nil {
		c.logger.Error().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping malformed training job")
		metrics.RecordJob(outcomePoison)
		return nil
	}
	n := attempt(msg)
	ctx := logging.ContextWithModelID(msg.Context(), job.ModelID)
	if id := msg.Metadata.Get("correlation_id"); id != "" {
		ctx = logging.ContextWithCorrelationID(ctx, id)
	}
	ctx = logging.ContextWithLogger(ctx, c.logger)
	log := logging.CtxWith(ctx).Int("attempt", n).Logger()

	if err := c.begin(ctx, job); err != nil {
		if errors.Is(err, errSkip) {
			log.Info().Msg("Skipping job for a finished model")
			metrics.RecordJob(outcomeAcked)
			return nil
		}
		metrics.RecordJob(outcomeNacked)
		return err
	}

	res, err := c.trainer.Train(ctx, job.ModelID, job.Parameters)
	switch {
	case err == nil:
		status := registry.StatusCompleted
		if !res.Succeeded {
			status = registry.StatusFailed
		}
		return c.finish(ctx, job.ModelID, status, res.CompletionMessage, res)

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		log.Warn().Err(err).Msg("Training job aborted")
		return c.finish(context.WithoutCancel(ctx), job.ModelID, registry.StatusAborted, "Training was cancelled", res)

	case n > c.cfg.Retry.MaxRetries:
		log.Error().Err(err).Msg("Training job failed, retries exhausted")
		return c.finish(ctx, job.ModelID, registry.StatusFailed, err.Error(), res)

	default:
		log.Warn().Err(err).Msg("Training job failed, will retry")
		metrics.RecordJob(outcomeNacked)
		return err
	}
}

// begin creates or advances the job's record to InProgress.
func (c *Consumer) begin(ctx context.Context, job *TrainingJob) error {
	rec, err := c.registry.Get(ctx, job.ModelID)
	if errors.Is(err, registry.ErrNotFound) {
		err = c.registry.Create(ctx, registry.ModelRecord{
			ID:          job.ModelID,
			Description: job.Description,
			Status:      registry.StatusInProgress,
			Parameters:  job.Parameters,
		})
		if !errors.Is(err, registry.ErrExists) {
			return err
		}
		rec, err = c.registry.Get(ctx, job.ModelID)
	}
	if err != nil {
		return err
	}

	switch {
	case rec.Status.Terminal():
		return errSkip
	case rec.Status == registry.StatusCreated:
		_, err = c.registry.Update(ctx, job.ModelID, func(r *registry.ModelRecord) error {
			r.Status = registry.StatusInProgress
			r.StatusMessage = ""
			r.Parameters = job.Parameters
			return nil
		})
		return err
	default:
		return nil
	}
}

func (c *Consumer) finish(ctx context.Context, id string, status registry.Status, message string, res *training.Result) error {
	_, err := c.registry.Update(ctx, id, func(r *registry.ModelRecord) error {
		r.Status = status
		r.StatusMessage = message
		r.Result = res
		return nil
	})
	if err != nil {
		metrics.RecordJob(outcomeNacked)
		return fmt.Errorf("record outcome of %s: %w", id, err)
	}
	metrics.RecordJob(outcomeAcked)
	c.logger.Info().Str("model_id", id).Str("status", string(status)).Msg("Training job finished")
	return nil
}

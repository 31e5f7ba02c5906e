// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package jobs

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/sarec/internal/logging"
	"github.com/tomtom215/sarec/internal/metrics"
)

// Publisher submits training jobs.
type Publisher struct {
	pub   message.Publisher
	topic string
}

// NewPublisher creates a publisher on topic. An empty topic uses DefaultTopic.
func NewPublisher(pub message.Publisher, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{pub: pub, topic: topic}
}

// Submit publishes job. The model id doubles as the JetStream message id so
// a duplicate submission is dropped by the broker.
func (p *Publisher) Submit(ctx context.Context, job *TrainingJob) error {
	data, err := EncodeJob(job)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataModelID, job.ModelID)
	msg.Metadata.Set(natsgo.MsgIdHdr, job.ModelID)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set("correlation_id", id)
	}

	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish training job %s: %w", job.ModelID, err)
	}
	metrics.JobsPublished.Inc()
	logging.Ctx(ctx).Info().Str("model_id", job.ModelID).Str("topic", p.topic).Msg("Training job submitted")
	return nil
}

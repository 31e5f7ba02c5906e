// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package jobs

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
)

// Transport backends.
const (
	BackendGoChannel = "gochannel"
	BackendNATS      = "nats"
)

// Config selects and tunes the job transport.
type Config struct {
	// Backend is BackendGoChannel (default) or BackendNATS.
	Backend string `koanf:"backend"`

	// Topic carries training jobs. Default: DefaultTopic.
	Topic string `koanf:"topic"`

	NATS NATSConfig `koanf:"nats"`

	Retry RetryConfig `koanf:"retry"`

	// CloseTimeout bounds how long in-flight jobs may run after shutdown starts.
	CloseTimeout time.Duration `koanf:"close_timeout"`
}

// NATSConfig configures the JetStream transport.
type NATSConfig struct {
	URL           string        `koanf:"url"`
	QueueGroup    string        `koanf:"queue_group"`
	DurableName   string        `koanf:"durable_name"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`

	// AckWait must exceed the longest training run or JetStream redelivers.
	AckWait time.Duration `koanf:"ack_wait"`
}

// RetryConfig controls redelivery of jobs that hit infrastructure errors.
type RetryConfig struct {
	MaxRetries      int           `koanf:"max_retries"`
	InitialInterval time.Duration `koanf:"initial_interval"`
	MaxInterval     time.Duration `koanf:"max_interval"`
	Multiplier      float64       `koanf:"multiplier"`
}

// DefaultConfig returns the in-process transport defaults.
func DefaultConfig() Config {
	return Config{
		Backend: BackendGoChannel,
		Topic:   DefaultTopic,
		NATS: NATSConfig{
			URL:           natsgo.DefaultURL,
			QueueGroup:    "sarec-trainers",
			DurableName:   "sarec-training",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			AckWait:       2 * time.Hour,
		},
		Retry: RetryConfig{
			MaxRetries:      3,
			InitialInterval: time.Second,
			MaxInterval:     time.Minute,
			Multiplier:      2.0,
		},
		CloseTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGoChannel:
	case BackendNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("jobs.nats.url is required for the %s backend", BackendNATS)
		}
	default:
		return fmt.Errorf("unknown jobs backend %q", c.Backend)
	}
	if c.Topic == "" {
		return fmt.Errorf("jobs.topic is required")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("jobs.retry.max_retries must be >= 0")
	}
	return nil
}

// Transport is a connected publisher/subscriber pair.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	closers    []func() error
}

// Close closes both ends.
func (t *Transport) Close() error {
	var first error
	for _, c := range t.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewTransport connects the configured backend.
func NewTransport(cfg *Config, logger watermill.LoggerAdapter) (*Transport, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	switch cfg.Backend {
	case BackendNATS:
		return newNATSTransport(&cfg.NATS, logger)
	case BackendGoChannel, "":
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return &Transport{Publisher: ch, Subscriber: ch, closers: []func() error{ch.Close}}, nil
	default:
		return nil, fmt.Errorf("unknown jobs backend %q", cfg.Backend)
	}
}

func natsOptions(cfg *NATSConfig, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name("sarec"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

func newNATSTransport(cfg *NATSConfig, logger watermill.LoggerAdapter) (*Transport, error) {
	opts := natsOptions(cfg, logger)

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: opts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   cfg.AckWait,
		NatsOptions:      opts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.AckWait(cfg.AckWait),
				natsgo.DeliverAll(),
			},
			DurablePrefix: cfg.DurableName,
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create NATS subscriber: %w", err)
	}

	return &Transport{Publisher: pub, Subscriber: sub, closers: []func() error{pub.Close, sub.Close}}, nil
}

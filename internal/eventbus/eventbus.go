// Package eventbus implements the ephemeral event bus (C4) on core NATS
// pub/sub: broadcast fan-out, no persistence, no redelivery.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
	"github.com/spicyneutrino/distributed-rce-engine/internal/interfaces"
	"github.com/spicyneutrino/distributed-rce-engine/internal/models"
)

// Bus implements interfaces.EventBus on core NATS pub/sub.
type Bus struct {
	nc      *nats.Conn
	subject string
	logger  *common.Logger
}

// New connects to NATS for ephemeral event fan-out.
func New(cfg *common.EventBusConfig, logger *common.Logger) (*Bus, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("rce-event-bus"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event bus: %w", err)
	}

	logger.Info().Str("url", cfg.URL).Str("subject", cfg.Subject).Msg("event bus initialized")
	return &Bus{nc: nc, subject: cfg.Subject, logger: logger}, nil
}

// Publish broadcasts evt. Failures are logged by callers and never affect
// the durable path.
func (b *Bus) Publish(ctx context.Context, evt models.EventMessage) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.nc.Publish(b.subject, body); err != nil {
		return fmt.Errorf("failed to publish event for job %s: %w", evt.JobID, err)
	}
	return nil
}

// Subscribe returns a channel of every event published after the call
// returns, and an unsubscribe function. An event that arrives while the
// channel's 64-slot buffer is full is dropped with a logged warning.
func (b *Bus) Subscribe(ctx context.Context) (<-chan models.EventMessage, func(), error) {
	ch := make(chan models.EventMessage, 64)

	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		var evt models.EventMessage
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			b.logger.Warn().Err(err).Msg("failed to decode event bus message")
			return
		}
		select {
		case ch <- evt:
		default:
			b.logger.Warn().Str("job_id", evt.JobID).Msg("event bus subscriber channel full, dropping event")
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	cancel := func() {
		sub.Unsubscribe()
		close(ch)
	}
	return ch, cancel, nil
}

// Close drains the NATS connection.
func (b *Bus) Close() error {
	return b.nc.Drain()
}

var _ interfaces.EventBus = (*Bus)(nil)

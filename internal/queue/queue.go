// Package queue implements the durable work queue (C3) on NATS JetStream:
// at-least-once delivery, redelivery on un-acked consumer loss, prefetch 1.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
	"github.com/spicyneutrino/distributed-rce-engine/internal/interfaces"
	"github.com/spicyneutrino/distributed-rce-engine/internal/models"
)

// Queue implements interfaces.WorkQueue on a JetStream stream with a single
// durable consumer, prefetch 1.
type Queue struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	cons   jetstream.Consumer
	cfg    *common.QueueConfig
	logger *common.Logger
}

// New connects to NATS, creates the work stream if absent, and binds the
// configured durable consumer.
func New(ctx context.Context, logger *common.Logger, cfg *common.QueueConfig) (*Queue, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("rce-work-queue"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to work queue: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to init jetstream: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create work stream: %w", err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       cfg.DurableConsumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxAckPending: 1,
		FilterSubject: cfg.Subject,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to bind durable consumer: %w", err)
	}

	logger.Info().
		Str("url", cfg.URL).
		Str("stream", cfg.Stream).
		Str("subject", cfg.Subject).
		Msg("work queue initialized")

	return &Queue{nc: nc, js: js, stream: stream, cons: cons, cfg: cfg, logger: logger}, nil
}

// Enqueue publishes a QueueMessage for job id.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	body, err := json.Marshal(models.QueueMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	if _, err := q.js.Publish(ctx, q.cfg.Subject, body); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Consume pulls messages one at a time (prefetch 1) and invokes handler for
// each. Blocks until ctx is cancelled.
func (q *Queue) Consume(ctx context.Context, handler func(interfaces.Delivery)) error {
	consumeCtx, err := q.cons.Consume(func(msg jetstream.Msg) {
		handler(&delivery{msg: msg})
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming work queue: %w", err)
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	return ctx.Err()
}

// Close drains the NATS connection.
func (q *Queue) Close() error {
	return q.nc.Drain()
}

// delivery adapts a jetstream.Msg to interfaces.Delivery.
type delivery struct {
	msg jetstream.Msg
}

func (d *delivery) JobID() (string, error) {
	var qm models.QueueMessage
	if err := json.Unmarshal(d.msg.Data(), &qm); err != nil {
		return "", fmt.Errorf("failed to decode queue message: %w", err)
	}
	return qm.JobID, nil
}

func (d *delivery) Ack() error {
	return d.msg.Ack()
}

func (d *delivery) Nak() error {
	return d.msg.Nak()
}

var _ interfaces.WorkQueue = (*Queue)(nil)

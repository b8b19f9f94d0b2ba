package eventbus

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
	"github.com/spicyneutrino/distributed-rce-engine/internal/models"
)

func startEmbeddedNATS(t *testing.T) string {
	t.Helper()

	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("start embedded NATS server: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)

	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS server did not become ready")
	}
	return srv.ClientURL()
}

func testBus(t *testing.T) *Bus {
	t.Helper()
	cfg := &common.EventBusConfig{
		URL:     startEmbeddedNATS(t),
		Subject: "rce.jobs.events.test",
	}
	bus, err := New(cfg, common.NewSilentLogger())
	if err != nil {
		t.Fatalf("create event bus: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := testBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, unsub, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsub()

	// Give the subscription a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)

	evt := models.EventMessage{JobID: "job-1", Status: models.JobStatusProcessing, Logs: ""}
	if err := bus.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-ch:
		if got.JobID != "job-1" || got.Status != models.JobStatusProcessing {
			t.Errorf("unexpected event: %+v", got)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_BroadcastToMultipleSubscribers(t *testing.T) {
	bus := testBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch1, unsub1, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe 1 failed: %v", err)
	}
	defer unsub1()

	ch2, unsub2, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe 2 failed: %v", err)
	}
	defer unsub2()

	time.Sleep(50 * time.Millisecond)

	evt := models.EventMessage{JobID: "job-2", Status: models.JobStatusCompleted}
	if err := bus.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for i, ch := range []<-chan models.EventMessage{ch1, ch2} {
		select {
		case got := <-ch:
			if got.JobID != "job-2" {
				t.Errorf("subscriber %d: unexpected event %+v", i, got)
			}
		case <-ctx.Done():
			t.Fatalf("subscriber %d: timed out waiting for event", i)
		}
	}
}

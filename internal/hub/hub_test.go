package hub

import (
	"testing"
	"time"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
	"github.com/spicyneutrino/distributed-rce-engine/internal/models"
)

func TestHub_RegisterAndDeliver(t *testing.T) {
	h := New(common.NewSilentLogger())

	ch := h.Register("job-1")
	h.Deliver(models.EventMessage{JobID: "job-1", Status: models.JobStatusProcessing})

	select {
	case evt := <-ch:
		if evt.JobID != "job-1" {
			t.Errorf("expected job-1, got %s", evt.JobID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestHub_DeliverToUnregisteredJobIsNoop(t *testing.T) {
	h := New(common.NewSilentLogger())
	// Should not panic or block.
	h.Deliver(models.EventMessage{JobID: "nobody-subscribed"})
}

func TestHub_SecondRegisterEvictsFirst(t *testing.T) {
	h := New(common.NewSilentLogger())

	first := h.Register("job-2")
	second := h.Register("job-2")

	// The first channel must be closed (evicted).
	select {
	case _, ok := <-first:
		if ok {
			t.Fatal("expected first channel to be closed, got a value instead")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first channel to close")
	}

	h.Deliver(models.EventMessage{JobID: "job-2", Status: models.JobStatusCompleted})
	select {
	case evt := <-second:
		if evt.JobID != "job-2" {
			t.Errorf("expected job-2, got %s", evt.JobID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery to second subscriber")
	}
}

func TestHub_UnregisterRemovesCurrentSubscription(t *testing.T) {
	h := New(common.NewSilentLogger())

	ch := h.Register("job-3")
	h.Unregister("job-3", ch)

	// Delivering after unregister should be a no-op, not a panic.
	h.Deliver(models.EventMessage{JobID: "job-3"})

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel closed after unregister")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestHub_UnregisterStaleChannelIsNoop(t *testing.T) {
	h := New(common.NewSilentLogger())

	first := h.Register("job-4")
	second := h.Register("job-4") // evicts first

	// Unregistering the stale first channel must not disturb the second.
	h.Unregister("job-4", first)

	h.Deliver(models.EventMessage{JobID: "job-4", Status: models.JobStatusCompleted})
	select {
	case evt := <-second:
		if evt.JobID != "job-4" {
			t.Errorf("expected job-4, got %s", evt.JobID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected second subscriber to still receive events after stale unregister")
	}
}

// Package hub implements the live per-job subscription hub (C9): at most
// one subscriber per job id, with a second subscription for the same id
// evicting the first. Adapted from this codebase's broadcast-all
// WebSocket hub, narrowed to per-job routing instead of fan-out-to-all.
package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
	"github.com/spicyneutrino/distributed-rce-engine/internal/interfaces"
	"github.com/spicyneutrino/distributed-rce-engine/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub routes events by job id to at most one live subscriber channel.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan models.EventMessage
	logger      *common.Logger
}

// New creates an empty Hub.
func New(logger *common.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]chan models.EventMessage),
		logger:      logger,
	}
}

// Register returns a channel that will receive events for jobID. A prior
// registration for the same jobID is evicted: its channel is closed and
// removed.
func (h *Hub) Register(jobID string) <-chan models.EventMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.subscribers[jobID]; ok {
		close(old)
	}

	ch := make(chan models.EventMessage, 16)
	h.subscribers[jobID] = ch
	return ch
}

// Unregister removes the subscription for jobID iff ch is still the
// current registration (a later Register call may already have evicted
// it, in which case this is a no-op).
func (h *Hub) Unregister(jobID string, ch <-chan models.EventMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.subscribers[jobID]
	if !ok || current != ch {
		return
	}
	close(current)
	delete(h.subscribers, jobID)
}

// Deliver routes evt to its job id's subscriber, if one is registered.
// Never blocks: an absent subscriber silently drops the event, and a full
// subscriber channel drops it with a logged warning.
func (h *Hub) Deliver(evt models.EventMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.subscribers[evt.JobID]
	if !ok {
		return
	}
	select {
	case ch <- evt:
	default:
		h.logger.Warn().Str("job_id", evt.JobID).Msg("live subscriber channel full, dropping event")
	}
}

// ServeWS upgrades the connection and streams events for the job id named
// by jobID until the connection closes or the subscription is evicted.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, jobID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := h.Register(jobID)
	defer h.Unregister(jobID, ch)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

var _ interfaces.Hub = (*Hub)(nil)

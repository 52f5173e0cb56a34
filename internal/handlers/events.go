package handlers

import (
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"

	"taskboard/backend/internal/channel"
	"taskboard/backend/internal/middleware"
	boardsync "taskboard/backend/internal/sync"
	"taskboard/backend/internal/utils"
)

// EventsHandler streams board change events over SSE. All connections for
// one board share a single upstream feed subscription; a per-feed hub fans
// events out to each connection's buffered channel. A connection that
// cannot keep up has events dropped rather than stalling the hub.
type EventsHandler struct {
	manager *channel.Manager

	mu   sync.Mutex
	hubs map[string]*feedHub
}

func NewEventsHandler(manager *channel.Manager) *EventsHandler {
	return &EventsHandler{
		manager: manager,
		hubs:    make(map[string]*feedHub),
	}
}

type feedHub struct {
	sub *channel.Subscription

	mu      sync.Mutex
	clients map[chan boardsync.TaskEvent]struct{}
}

func (h *feedHub) dispatch(payload []byte) {
	ev, err := boardsync.DecodeEvent(payload)
	if err != nil {
		log.Printf("⚠️  Dropping undecodable feed event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *EventsHandler) attach(feed string) (chan boardsync.TaskEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	hub, ok := h.hubs[feed]
	if !ok {
		hub = &feedHub{clients: make(map[chan boardsync.TaskEvent]struct{})}
		hub.sub = h.manager.Open(feed, hub.dispatch)
		h.hubs[feed] = hub
	}

	ch := make(chan boardsync.TaskEvent, 16)
	hub.mu.Lock()
	hub.clients[ch] = struct{}{}
	hub.mu.Unlock()

	detach := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		hub.mu.Lock()
		delete(hub.clients, ch)
		remaining := len(hub.clients)
		hub.mu.Unlock()

		if remaining == 0 {
			hub.sub.Close()
			delete(h.hubs, feed)
		}
	}
	return ch, detach
}

// StreamBoard is GET /boards/:id/events. The stream stays open until the
// client disconnects; heartbeats keep intermediaries from timing it out.
func (h *EventsHandler) StreamBoard(c *gin.Context) {
	idStr := c.Param("id")
	if !utils.IsValidUUID(idStr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid board id"})
		return
	}
	boardID := uuid.FromStringOrNil(idStr)

	h.streamFeed(c, channel.BoardFeed(boardID))
}

// StreamActivity is GET /activity/events. It follows the calling actor's
// own notification feed, so an open activity panel sees new entries live.
func (h *EventsHandler) StreamActivity(c *gin.Context) {
	h.streamFeed(c, channel.ActivityFeed(middleware.Actor(c)))
}

func (h *EventsHandler) streamFeed(c *gin.Context, feed string) {
	events, detach := h.attach(feed)
	defer detach()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("task_event", ev)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-clientGone:
			return false
		}
	})
}

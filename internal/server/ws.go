package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"marketpulse/internal/events"
)

// streamedEvents are the bus events pushed to websocket clients.
var streamedEvents = []events.EventType{
	events.SnapshotUpdated,
	events.RecommendationUpdated,
	events.UniverseUpdated,
	events.SymbolSwitched,
}

// wsHub fans bus events out to connected websocket clients. Bus handlers must
// not block, so each client gets a buffered channel and slow clients lose
// events instead of stalling the publisher.
type wsHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	log     zerolog.Logger
}

type wsClient struct {
	ch     chan *events.Event
	cancel context.CancelFunc
}

func newWSHub(bus *events.Bus, log zerolog.Logger) *wsHub {
	h := &wsHub{
		clients: make(map[*wsClient]struct{}),
		log:     log.With().Str("component", "ws_hub").Logger(),
	}
	for _, t := range streamedEvents {
		bus.Subscribe(t, h.broadcast)
	}
	return h
}

func (h *wsHub) broadcast(event *events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.ch <- event:
		default:
			// Client is not keeping up; drop the event for it.
		}
	}
}

func (h *wsHub) register(cancel context.CancelFunc) *wsClient {
	client := &wsClient{
		ch:     make(chan *events.Event, 16),
		cancel: cancel,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		cancel()
		return client
	}
	h.clients[client] = struct{}{}
	return client
}

func (h *wsHub) unregister(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

// closeAll disconnects every client. Used during shutdown.
func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		client.cancel()
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the connection and streams store change events
// until the client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// CloseRead cancels the context when the client goes away.
	ctx := conn.CloseRead(r.Context())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := s.hub.register(cancel)
	defer s.hub.unregister(client)

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("Websocket client connected")

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-client.ch:
			writeCtx, writeCancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, event)
			writeCancel()
			if err != nil {
				return
			}
		}
	}
}

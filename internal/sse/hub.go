package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/platform/envutil"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

const (
	clientBufferSize = 256

	defaultHeartbeat = 30 * time.Second
)

func heartbeatInterval() time.Duration {
	return envutil.Seconds("SSE_PING_SECONDS", defaultHeartbeat)
}

// Client is one attached event-stream consumer. Outbound is bounded;
// the hub drops rather than blocks when it fills.
type Client struct {
	ID       uuid.UUID
	Channels map[string]bool
	Outbound chan domain.PipelineEvent
	done     chan struct{}
}

// Hub fans pipeline events out to subscribers keyed by request ID.
// Delivery is best-effort: no subscriber, or a full buffer, means the
// event is dropped and the request proceeds untouched.
type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[string]map[*Client]bool
}

func NewHub(log *logger.Logger) (*Hub, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Hub{
		log:           log.With("service", "SSEHub"),
		subscriptions: make(map[string]map[*Client]bool),
	}, nil
}

func (h *Hub) NewClient() *Client {
	return &Client{
		ID:       uuid.New(),
		Channels: make(map[string]bool),
		Outbound: make(chan domain.PipelineEvent, clientBufferSize),
		done:     make(chan struct{}),
	}
}

func (h *Hub) Subscribe(client *Client, requestID string) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	client.Channels[requestID] = true
	clients, ok := h.subscriptions[requestID]
	if !ok {
		clients = make(map[*Client]bool)
		h.subscriptions[requestID] = clients
	}
	clients[client] = true
	h.log.Debug("sse client subscribed", "client_id", client.ID, "request_id", requestID)
}

func (h *Hub) Unsubscribe(client *Client, requestID string) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(client.Channels, requestID)
	if clients, ok := h.subscriptions[requestID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.subscriptions, requestID)
		}
	}
}

func (h *Hub) RemoveClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range client.Channels {
		if clients, ok := h.subscriptions[ch]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.subscriptions, ch)
			}
		}
	}
	client.Channels = make(map[string]bool)
}

// Publish satisfies the pipeline's event sink. Send order per request is
// the caller's emit order; per-client channels preserve it.
func (h *Hub) Publish(requestID string, ev domain.PipelineEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.subscriptions[requestID]
	if !ok {
		return
	}
	for c := range clients {
		select {
		case c.Outbound <- ev:
		default:
			// Full buffer: evict the oldest queued event so the newest
			// always lands.
			select {
			case <-c.Outbound:
			default:
			}
			select {
			case c.Outbound <- ev:
			default:
			}
			h.log.Warn("sse buffer full, dropped oldest event", "client_id", c.ID)
		}
	}
}

// SubscriberCount is used by tests and the health endpoint.
func (h *Hub) SubscriberCount(requestID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[requestID])
}

// ServeHTTP streams the client's events until the request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *Client) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(heartbeatInterval())
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-client.Outbound:
			payload, err := json.Marshal(ev)
			if err != nil {
				h.log.Warn("failed to marshal sse event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}

func (h *Hub) CloseClient(client *Client) {
	close(client.done)
	h.RemoveClient(client)
	close(client.Outbound)
}

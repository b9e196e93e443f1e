package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/http/response"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
	"github.com/yungbote/lawgraph-backend/internal/sse"
)

// EventsHandler attaches SSE subscribers to a request's event channel.
// Subscribe before issuing the search (with a client-chosen X-Request-ID)
// to observe every stage.
type EventsHandler struct {
	log *logger.Logger
	hub *sse.Hub
}

func NewEventsHandler(log *logger.Logger, hub *sse.Hub) (*EventsHandler, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub required")
	}
	return &EventsHandler{log: log.With("handler", "EventsHandler"), hub: hub}, nil
}

func (h *EventsHandler) Stream(c *gin.Context) {
	requestID := strings.TrimSpace(c.Param("request_id"))
	if requestID == "" {
		response.RespondMapped(c, fmt.Errorf("%w: request_id required", domain.ErrInvalidInput))
		return
	}

	client := h.hub.NewClient()
	h.hub.Subscribe(client, requestID)
	defer h.hub.CloseClient(client)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}

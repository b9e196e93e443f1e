package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lawgraph-backend/internal/http/response"
	"github.com/yungbote/lawgraph-backend/internal/llm"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

// HealthHandler serves liveness, readiness, and the model usage snapshot.
type HealthHandler struct {
	log   *logger.Logger
	gen   llm.Generator
	ready func() bool
	stats func() map[string]any
}

func NewHealthHandler(log *logger.Logger, gen llm.Generator, ready func() bool, stats func() map[string]any) (*HealthHandler, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ready == nil {
		return nil, fmt.Errorf("readiness probe required")
	}
	return &HealthHandler{
		log:   log.With("handler", "HealthHandler"),
		gen:   gen,
		ready: ready,
		stats: stats,
	}, nil
}

func (h *HealthHandler) Live(c *gin.Context) {
	response.RespondOK(c, gin.H{"status": "ok"})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		return
	}
	payload := gin.H{"status": "ready"}
	if h.stats != nil {
		payload["stats"] = h.stats()
	}
	response.RespondOK(c, payload)
}

func (h *HealthHandler) LLMUsage(c *gin.Context) {
	if h.gen == nil {
		response.RespondOK(c, llm.Usage{Enabled: false})
		return
	}
	usage, err := h.gen.Usage(c.Request.Context())
	if err != nil {
		response.RespondMapped(c, err)
		return
	}
	response.RespondOK(c, usage)
}

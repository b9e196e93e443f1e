package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/http/response"
	"github.com/yungbote/lawgraph-backend/internal/kg"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

const kgDefaultLimit = 20

// KGHandler serves the read-only graph views. None of these touch the
// pipeline.
type KGHandler struct {
	log   *logger.Logger
	graph *kg.Graph
}

func NewKGHandler(log *logger.Logger, graph *kg.Graph) (*KGHandler, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if graph == nil {
		return nil, fmt.Errorf("graph required")
	}
	return &KGHandler{log: log.With("handler", "KGHandler"), graph: graph}, nil
}

// Expand returns the neighbor union for the entities named in the query
// string: ?crime=a,b&article=264,133.
func (h *KGHandler) Expand(c *gin.Context) {
	var ent kg.Entities
	for _, crime := range strings.Split(c.Query("crime"), ",") {
		if crime = strings.TrimSpace(crime); crime != "" {
			ent.Crimes = append(ent.Crimes, crime)
		}
	}
	for _, raw := range strings.Split(c.Query("article"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		num, err := strconv.Atoi(raw)
		if err != nil {
			response.RespondMapped(c, fmt.Errorf("%w: bad article number %q", domain.ErrInvalidInput, raw))
			return
		}
		ent.Articles = append(ent.Articles, num)
	}
	if len(ent.Crimes) == 0 && len(ent.Articles) == 0 {
		response.RespondMapped(c, fmt.Errorf("%w: crime or article required", domain.ErrInvalidInput))
		return
	}
	response.RespondOK(c, h.graph.Expand(ent))
}

func (h *KGHandler) RelatedArticles(c *gin.Context) {
	crime := strings.TrimSpace(c.Param("crime"))
	if crime == "" {
		response.RespondMapped(c, fmt.Errorf("%w: crime required", domain.ErrInvalidInput))
		return
	}
	response.RespondOK(c, gin.H{
		"crime": crime,
		"edges": h.graph.RelatedArticles(crime, limitParam(c)),
	})
}

func (h *KGHandler) RelatedCrimes(c *gin.Context) {
	num, err := strconv.Atoi(strings.TrimSpace(c.Param("article")))
	if err != nil {
		response.RespondMapped(c, fmt.Errorf("%w: bad article number", domain.ErrInvalidInput))
		return
	}
	response.RespondOK(c, gin.H{
		"article_number": num,
		"edges":          h.graph.RelatedCrimes(num, limitParam(c)),
	})
}

// Cases returns case IDs for one (crime, article) pair:
// ?crime=盗窃罪&article=264.
func (h *KGHandler) Cases(c *gin.Context) {
	crime := strings.TrimSpace(c.Query("crime"))
	num, err := strconv.Atoi(strings.TrimSpace(c.Query("article")))
	if crime == "" || err != nil {
		response.RespondMapped(c, fmt.Errorf("%w: crime and article required", domain.ErrInvalidInput))
		return
	}
	ids := h.graph.CasesFor(crime, num, limitParam(c))
	response.RespondOK(c, gin.H{
		"crime":          crime,
		"article_number": num,
		"case_ids":       ids,
	})
}

func limitParam(c *gin.Context) int {
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return kgDefaultLimit
}

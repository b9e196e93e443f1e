package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/fusion"
	"github.com/yungbote/lawgraph-backend/internal/http/response"
	"github.com/yungbote/lawgraph-backend/internal/llm"
	"github.com/yungbote/lawgraph-backend/internal/pagecache"
	"github.com/yungbote/lawgraph-backend/internal/pipeline"
	"github.com/yungbote/lawgraph-backend/internal/platform/ctxutil"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

const (
	maxQueryRunes = 500
	maxPageLimit  = 10
)

type SearchRequest struct {
	Query        string `json:"query"`
	TopKArticles int    `json:"top_k_articles"`
	TopKCases    int    `json:"top_k_cases"`
	EnableLLM    *bool  `json:"enable_llm"`
}

type ArticleResult struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	ContentPreview string   `json:"content_preview"`
	Score          float64  `json:"score"`
	Sources        []string `json:"sources"`
	Confidence     float64  `json:"confidence"`
}

type CaseResult struct {
	ID              string   `json:"id"`
	CaseID          string   `json:"case_id"`
	Accusations     []string `json:"accusations"`
	ContentPreview  string   `json:"content_preview"`
	SentenceSummary string   `json:"sentence_summary"`
	Score           float64  `json:"score"`
	Sources         []string `json:"sources"`
	Confidence      float64  `json:"confidence"`
}

type SearchResponse struct {
	RequestID        string             `json:"request_id"`
	Articles         []ArticleResult    `json:"articles"`
	Cases            []CaseResult       `json:"cases"`
	FinalAnswer      string             `json:"final_answer"`
	ProcessingTimeMS int64              `json:"processing_time_ms"`
	Partial          bool               `json:"partial,omitempty"`
	Trace            *domain.QueryTrace `json:"trace"`
}

type LoadMoreRequest struct {
	Query  string `json:"query"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

type LoadMoreResponse struct {
	Cases         []CaseResult `json:"cases"`
	HasMore       bool         `json:"has_more"`
	ReturnedCount int          `json:"returned_count"`
}

type SearchHandler struct {
	log          *logger.Logger
	orchestrator *pipeline.Orchestrator
	cache        pagecache.Cache
	ready        func() bool
}

func NewSearchHandler(log *logger.Logger, orch *pipeline.Orchestrator, cache pagecache.Cache, ready func() bool) (*SearchHandler, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if orch == nil || cache == nil || ready == nil {
		return nil, fmt.Errorf("orchestrator, cache, and readiness probe required")
	}
	return &SearchHandler{
		log:          log.With("handler", "SearchHandler"),
		orchestrator: orch,
		cache:        cache,
		ready:        ready,
	}, nil
}

func (h *SearchHandler) Search(c *gin.Context) {
	if !h.ready() {
		response.RespondMapped(c, domain.ErrNotReady)
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondMapped(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	q := strings.TrimSpace(req.Query)
	if n := len([]rune(q)); n == 0 || n > maxQueryRunes {
		response.RespondMapped(c, fmt.Errorf("%w: query must be 1..%d characters", domain.ErrInvalidInput, maxQueryRunes))
		return
	}

	ctx := c.Request.Context()
	if req.EnableLLM != nil && !*req.EnableLLM {
		ctx = llm.Disable(ctx)
	}

	requestID := ""
	if td := ctxutil.GetTraceData(ctx); td != nil {
		requestID = td.RequestID
	}

	start := time.Now()
	outcome, err := h.orchestrator.Run(ctx, requestID, q)
	if err != nil {
		response.RespondMapped(c, err)
		return
	}

	// Retain the fused set so load-more pages without a pipeline rerun.
	if err := h.cache.Put(ctx, queryKey(q), pagecache.Entry{
		Query:    q,
		Articles: outcome.Fused.Articles,
		Cases:    outcome.Fused.Cases,
	}); err != nil {
		h.log.Warn("page cache write failed", "error", err)
	}

	topA := req.TopKArticles
	if topA <= 0 || topA > len(outcome.Fused.Articles) {
		topA = len(outcome.Fused.Articles)
	}
	topC := req.TopKCases
	if topC <= 0 || topC > len(outcome.Fused.Cases) {
		topC = len(outcome.Fused.Cases)
	}

	response.RespondOK(c, SearchResponse{
		RequestID:        requestID,
		Articles:         toArticleResults(outcome.Fused.Articles[:topA]),
		Cases:            toCaseResults(outcome.Fused.Cases[:topC]),
		FinalAnswer:      outcome.Fused.FinalAnswer,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Partial:          outcome.Trace.Partial,
		Trace:            outcome.Trace,
	})
}

func (h *SearchHandler) LoadMore(c *gin.Context) {
	var req LoadMoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondMapped(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	q := strings.TrimSpace(req.Query)
	if q == "" || req.Offset < 0 {
		response.RespondMapped(c, fmt.Errorf("%w: query required, offset >= 0", domain.ErrInvalidInput))
		return
	}
	limit := req.Limit
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}

	entry, ok, err := h.cache.Get(c.Request.Context(), queryKey(q))
	if err != nil {
		response.RespondMapped(c, err)
		return
	}
	if !ok {
		response.RespondMapped(c, fmt.Errorf("%w: no cached results for query, search first", domain.ErrNotReady))
		return
	}

	if req.Offset >= len(entry.Cases) {
		response.RespondOK(c, LoadMoreResponse{Cases: []CaseResult{}, HasMore: false})
		return
	}
	end := req.Offset + limit
	if end > len(entry.Cases) {
		end = len(entry.Cases)
	}
	page := toCaseResults(entry.Cases[req.Offset:end])
	response.RespondOK(c, LoadMoreResponse{
		Cases:         page,
		HasMore:       end < len(entry.Cases),
		ReturnedCount: len(page),
	})
}

func queryKey(q string) string {
	sum := sha256.Sum256([]byte(q))
	return hex.EncodeToString(sum[:16])
}

func toArticleResults(ranked []fusion.RankedDoc) []ArticleResult {
	out := make([]ArticleResult, 0, len(ranked))
	for _, r := range ranked {
		ar := ArticleResult{
			ID:         r.DocID,
			Score:      r.Score,
			Sources:    r.Sources,
			Confidence: r.Confidence,
		}
		if r.Document != nil {
			ar.Title = r.Document.Title
			ar.ContentPreview = r.Document.ContentPreview(200)
		}
		out = append(out, ar)
	}
	return out
}

func toCaseResults(ranked []fusion.RankedDoc) []CaseResult {
	out := make([]CaseResult, 0, len(ranked))
	for _, r := range ranked {
		cr := CaseResult{
			ID:         r.DocID,
			Score:      r.Score,
			Sources:    r.Sources,
			Confidence: r.Confidence,
		}
		if r.Document != nil {
			cr.CaseID = r.Document.CaseID
			cr.Accusations = r.Document.Accusations
			cr.ContentPreview = r.Document.ContentPreview(200)
			cr.SentenceSummary = r.Document.SentenceSummary()
		}
		out = append(out, cr)
	}
	return out
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lawgraph-backend/internal/artifacts"
	"github.com/yungbote/lawgraph-backend/internal/bm25"
	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/embedding"
	"github.com/yungbote/lawgraph-backend/internal/fusion"
	"github.com/yungbote/lawgraph-backend/internal/http/middleware"
	"github.com/yungbote/lawgraph-backend/internal/http/response"
	"github.com/yungbote/lawgraph-backend/internal/kg"
	"github.com/yungbote/lawgraph-backend/internal/llm"
	"github.com/yungbote/lawgraph-backend/internal/pagecache"
	"github.com/yungbote/lawgraph-backend/internal/pipeline"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
	"github.com/yungbote/lawgraph-backend/internal/query"
	"github.com/yungbote/lawgraph-backend/internal/search"
	"github.com/yungbote/lawgraph-backend/internal/vectorstore"
)

type noModel struct{}

func (noModel) Enabled() bool { return false }
func (noModel) Generate(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{}, domain.ErrProviderUnavailable
}
func (noModel) GenerateJSON(context.Context, llm.Request, any) error {
	return domain.ErrProviderUnavailable
}
func (noModel) Usage(context.Context) (llm.Usage, error) { return llm.Usage{}, nil }

func buildPipeline(t *testing.T) *pipeline.Orchestrator {
	t.Helper()
	log := logger.NewNop()

	articles := []*domain.Document{
		{ID: "article_264", Type: domain.DocTypeArticle, ArticleNumber: 264, Title: "盗窃罪", Content: "盗窃公私财物，数额较大的，处三年以下有期徒刑"},
		{ID: "article_266", Type: domain.DocTypeArticle, ArticleNumber: 266, Title: "诈骗罪", Content: "诈骗公私财物，数额较大的"},
	}
	cases := []*domain.Document{
		{ID: "case_1", Type: domain.DocTypeCase, CaseID: "case_1", Title: "张某盗窃案", Content: "被告人张某盗窃他人财物", Accusations: []string{"盗窃罪"}},
		{ID: "case_2", Type: domain.DocTypeCase, CaseID: "case_2", Title: "王某盗窃案", Content: "被告人王某入户盗窃", Accusations: []string{"盗窃罪"}},
		{ID: "case_3", Type: domain.DocTypeCase, CaseID: "case_3", Title: "赵某盗窃案", Content: "被告人赵某扒窃他人手机", Accusations: []string{"盗窃罪"}},
	}
	mapping := []artifacts.MappingRow{
		{CaseID: "case_1", ArticleNumber: 264, Confidence: 0.9, IsPrimary: true},
		{CaseID: "case_2", ArticleNumber: 264, Confidence: 0.85, IsPrimary: true},
		{CaseID: "case_3", ArticleNumber: 264, Confidence: 0.8, IsPrimary: true},
	}

	provider := embedding.NewHashProvider(embedding.HashDim)
	encode := func(docs []*domain.Document) *artifacts.VectorFile {
		vf := &artifacts.VectorFile{Dim: provider.Dim()}
		for _, d := range docs {
			vecs, err := provider.Embed(context.Background(), []string{d.Title + "\n" + d.Content})
			if err != nil {
				t.Fatalf("Embed: %v", err)
			}
			vf.IDs = append(vf.IDs, d.ID)
			vf.Vectors = append(vf.Vectors, vecs[0])
		}
		return vf
	}
	store, err := vectorstore.New(log, encode(articles), encode(cases))
	if err != nil {
		t.Fatalf("vectorstore.New: %v", err)
	}
	tok, err := bm25.NewTokenizer(nil)
	if err != nil {
		t.Fatalf("NewTokenizer: %v", err)
	}
	index, err := bm25.NewIndex(log, tok, articles, cases)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	graph, err := kg.Build(log, &artifacts.Bundle{Articles: articles, Cases: cases, Mapping: mapping})
	if err != nil {
		t.Fatalf("kg.Build: %v", err)
	}

	gen := noModel{}
	understander, err := query.NewUnderstander(log, gen, index, graph)
	if err != nil {
		t.Fatalf("NewUnderstander: %v", err)
	}
	router, err := search.NewRouter(log, nil, func(ctx context.Context) bool { return llm.EnabledIn(ctx, gen) })
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	registry, err := search.NewRegistry(log, provider, store, index, graph, understander)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	engine, err := fusion.NewEngine(log, gen, articles, cases)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	orch, err := pipeline.NewOrchestrator(log, understander, router, registry, engine, nil, pipeline.Config{
		GlobalTimeout:   10 * time.Second,
		StrategyTimeout: 5 * time.Second,
		MaxConcurrent:   8,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return orch
}

func newTestAPI(t *testing.T, ready bool) (*gin.Engine, pagecache.Cache) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cache := pagecache.NewMemory(time.Minute)
	h, err := NewSearchHandler(logger.NewNop(), buildPipeline(t), cache, func() bool { return ready })
	if err != nil {
		t.Fatalf("NewSearchHandler: %v", err)
	}
	r := gin.New()
	r.Use(middleware.AttachRequestContext())
	r.POST("/search", h.Search)
	r.POST("/search/load-more", h.LoadMore)
	return r, cache
}

func doJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env response.ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, w.Body.String())
	}
	return env.Error.Code
}

func TestSearchEndToEnd(t *testing.T) {
	r, _ := newTestAPI(t, true)
	w := doJSON(t, r, "/search", SearchRequest{Query: "盗窃他人财物怎么判"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}

	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RequestID == "" {
		t.Fatalf("missing request id in body")
	}
	if len(resp.Articles) == 0 {
		t.Fatalf("no articles returned")
	}
	if resp.Articles[0].ID != "article_264" {
		t.Fatalf("theft article should rank first, got %s", resp.Articles[0].ID)
	}
	if resp.FinalAnswer == "" {
		t.Fatalf("missing final answer")
	}
	if resp.Trace == nil {
		t.Fatalf("missing trace")
	}
}

func TestSearchHonorsRequestIDHeader(t *testing.T) {
	r, _ := newTestAPI(t, true)
	raw, _ := json.Marshal(SearchRequest{Query: "盗窃怎么判"})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "caller-id-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") != "caller-id-1" {
		t.Fatalf("caller request id should echo back, got %q", w.Header().Get("X-Request-ID"))
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RequestID != "caller-id-1" {
		t.Fatalf("body request id: %q", resp.RequestID)
	}
}

func TestSearchValidation(t *testing.T) {
	r, _ := newTestAPI(t, true)

	w := doJSON(t, r, "/search", SearchRequest{Query: ""})
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "invalid_query" {
		t.Fatalf("empty query: status=%d code=%s", w.Code, errorCode(t, w))
	}

	w = doJSON(t, r, "/search", SearchRequest{Query: strings.Repeat("判", maxQueryRunes+1)})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("overlong query: status=%d", w.Code)
	}

	w = doJSON(t, r, "/search", SearchRequest{Query: strings.Repeat("判", maxQueryRunes)})
	if w.Code != http.StatusOK {
		t.Fatalf("boundary-length query should pass validation: status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestSearchNotReady(t *testing.T) {
	r, _ := newTestAPI(t, false)
	w := doJSON(t, r, "/search", SearchRequest{Query: "盗窃怎么判"})
	if w.Code != http.StatusServiceUnavailable || errorCode(t, w) != "not_ready" {
		t.Fatalf("not ready: status=%d code=%s", w.Code, errorCode(t, w))
	}
}

func TestSearchTopKTrimming(t *testing.T) {
	r, _ := newTestAPI(t, true)
	w := doJSON(t, r, "/search", SearchRequest{Query: "盗窃他人财物怎么判", TopKCases: 1})
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Cases) != 1 {
		t.Fatalf("top_k_cases=1: got %d cases", len(resp.Cases))
	}
}

func TestLoadMorePagesCachedResults(t *testing.T) {
	r, cache := newTestAPI(t, true)

	entry := pagecache.Entry{Query: "盗窃怎么判"}
	for i := 0; i < 25; i++ {
		entry.Cases = append(entry.Cases, fusion.RankedDoc{DocID: fmt.Sprintf("case_%02d", i), Score: 1 - float64(i)*0.01})
	}
	if err := cache.Put(context.Background(), queryKey("盗窃怎么判"), entry); err != nil {
		t.Fatalf("cache.Put: %v", err)
	}

	w := doJSON(t, r, "/search/load-more", LoadMoreRequest{Query: "盗窃怎么判", Offset: 10, Limit: 5})
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	var resp LoadMoreResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ReturnedCount != 5 || len(resp.Cases) != 5 {
		t.Fatalf("want 5 cases, got %+v", resp)
	}
	if resp.Cases[0].ID != "case_10" {
		t.Fatalf("offset 10 should start at case_10, got %s", resp.Cases[0].ID)
	}
	if !resp.HasMore {
		t.Fatalf("25 cached, served through 15: has_more should be true")
	}

	// Limit clamps to the page maximum.
	w = doJSON(t, r, "/search/load-more", LoadMoreRequest{Query: "盗窃怎么判", Offset: 0, Limit: 50})
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ReturnedCount != maxPageLimit {
		t.Fatalf("limit should clamp to %d, got %d", maxPageLimit, resp.ReturnedCount)
	}

	// Past the end is an empty page, not an error.
	w = doJSON(t, r, "/search/load-more", LoadMoreRequest{Query: "盗窃怎么判", Offset: 100})
	if w.Code != http.StatusOK {
		t.Fatalf("past-end status: %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.HasMore || len(resp.Cases) != 0 {
		t.Fatalf("past-end page: %+v", resp)
	}
}

func TestLoadMoreWithoutCachedSearch(t *testing.T) {
	r, _ := newTestAPI(t, true)
	w := doJSON(t, r, "/search/load-more", LoadMoreRequest{Query: "从未搜索过的问题"})
	if w.Code != http.StatusServiceUnavailable || errorCode(t, w) != "not_ready" {
		t.Fatalf("uncached load-more: status=%d code=%s", w.Code, errorCode(t, w))
	}
}

func TestLoadMoreValidation(t *testing.T) {
	r, _ := newTestAPI(t, true)
	w := doJSON(t, r, "/search/load-more", LoadMoreRequest{Query: "", Offset: 0})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty query: status=%d", w.Code)
	}
	w = doJSON(t, r, "/search/load-more", LoadMoreRequest{Query: "盗窃", Offset: -1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative offset: status=%d", w.Code)
	}
}

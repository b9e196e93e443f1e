package search

import (
	"context"

	"github.com/yungbote/lawgraph-backend/internal/query"
)

// Strategy names. The router emits an ordered subset of these and the
// trace keys its module map by them.
const (
	StrategyBasicSemantic  = "basic_semantic"
	StrategyBM25Hybrid     = "bm25_hybrid"
	StrategyQuery2doc      = "query2doc_enhanced"
	StrategyHyde           = "hyde_enhanced"
	StrategyKnowledgeGraph = "knowledge_graph"
	StrategyLLMEnhanced    = "llm_enhanced"
)

// AllStrategies in canonical order, which is also the router's output
// order and the weight-table order.
var AllStrategies = []string{
	StrategyBasicSemantic,
	StrategyBM25Hybrid,
	StrategyQuery2doc,
	StrategyHyde,
	StrategyKnowledgeGraph,
	StrategyLLMEnhanced,
}

const defaultTopK = 20

// Input is the shared read-only context every strategy receives.
type Input struct {
	Query          string
	Classification query.Classification
	Extraction     query.Extraction
}

type ScoredDoc struct {
	DocID string         `json:"doc_id"`
	Score float64        `json:"score"`
	Debug map[string]any `json:"debug,omitempty"`
}

// Result is one strategy's ranked output. Scores are normalized to [0,1]
// within the strategy.
type Result struct {
	Articles []ScoredDoc    `json:"articles"`
	Cases    []ScoredDoc    `json:"cases"`
	Meta     map[string]any `json:"search_meta,omitempty"`
}

// Searcher is one retrieval strategy. Execute must respect ctx and keep
// its output deterministic for fixed inputs and corpus.
type Searcher interface {
	Name() string
	Execute(ctx context.Context, in Input) (Result, error)
}

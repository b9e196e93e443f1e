package search

import (
	"context"
	"math"
	"testing"

	"github.com/yungbote/lawgraph-backend/internal/bm25"
	"github.com/yungbote/lawgraph-backend/internal/kg"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
	"github.com/yungbote/lawgraph-backend/internal/query"
)

func testRouter(t *testing.T, healthy bool) *Router {
	t.Helper()
	r, err := NewRouter(logger.NewNop(), nil, func(context.Context) bool { return healthy })
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return r
}

func fullExtraction() query.Extraction {
	return query.Extraction{
		IdentifiedCrimes:  []query.CrimeMention{{Name: "盗窃罪", Confidence: 0.9}},
		BM25Keywords:      []bm25.WeightedKeyword{{Keyword: "盗窃", Weight: 1}},
		Query2docEnhanced: "盗窃公私财物，数额较大的，处三年以下有期徒刑",
		HydeHypothetical:  "根据刑法规定，盗窃罪的量刑取决于数额",
		Entities:          kg.Entities{Crimes: []string{"盗窃罪"}},
	}
}

func hasStrategy(plan Plan, name string) bool {
	for _, s := range plan.Strategies {
		if s == name {
			return true
		}
	}
	return false
}

func TestRouteNonCriminalShortCircuit(t *testing.T) {
	r := testRouter(t, true)
	cls := query.Classification{IsCriminalLaw: false, Confidence: 0.9}
	plan := r.Route(context.Background(), cls, fullExtraction())
	if len(plan.Strategies) != 1 || plan.Strategies[0] != StrategyBasicSemantic {
		t.Fatalf("confident non-criminal should run basic only, got %v", plan.Strategies)
	}
	if plan.Weights[StrategyBasicSemantic] != 1 {
		t.Fatalf("single strategy weight should be 1, got %v", plan.Weights)
	}
}

func TestRouteUncertainNonCriminalRunsFull(t *testing.T) {
	r := testRouter(t, true)
	cls := query.Classification{IsCriminalLaw: false, Confidence: 0.7}
	plan := r.Route(context.Background(), cls, fullExtraction())
	if len(plan.Strategies) < 5 {
		t.Fatalf("uncertain classification should not short-circuit, got %v", plan.Strategies)
	}
}

func TestRouteAllSignalsSelectsAll(t *testing.T) {
	r := testRouter(t, true)
	cls := query.Classification{IsCriminalLaw: true, Confidence: 0.9}
	plan := r.Route(context.Background(), cls, fullExtraction())
	if len(plan.Strategies) != len(AllStrategies) {
		t.Fatalf("full signal bundle should select all strategies, got %v", plan.Strategies)
	}
	for i, name := range AllStrategies {
		if plan.Strategies[i] != name {
			t.Fatalf("strategies out of canonical order: %v", plan.Strategies)
		}
	}
	var sum float64
	for _, w := range plan.Weights {
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("weights should sum to 1, got %f", sum)
	}
}

func TestRouteConditionalStrategies(t *testing.T) {
	r := testRouter(t, true)
	cls := query.Classification{IsCriminalLaw: true, Confidence: 0.9}

	ext := fullExtraction()
	ext.BM25Keywords = nil
	plan := r.Route(context.Background(), cls, ext)
	if hasStrategy(plan, StrategyBM25Hybrid) {
		t.Fatalf("no keywords should drop bm25_hybrid: %v", plan.Strategies)
	}

	ext = fullExtraction()
	ext.Query2docEnhanced = ""
	plan = r.Route(context.Background(), cls, ext)
	if hasStrategy(plan, StrategyQuery2doc) {
		t.Fatalf("no pseudo doc should drop query2doc: %v", plan.Strategies)
	}

	ext = fullExtraction()
	ext.HydeHypothetical = ""
	plan = r.Route(context.Background(), cls, ext)
	if hasStrategy(plan, StrategyHyde) {
		t.Fatalf("no hypothetical should drop hyde: %v", plan.Strategies)
	}

	ext = fullExtraction()
	ext.Entities = kg.Entities{}
	ext.IdentifiedCrimes = nil
	plan = r.Route(context.Background(), cls, ext)
	if hasStrategy(plan, StrategyKnowledgeGraph) {
		t.Fatalf("no entities should drop knowledge_graph: %v", plan.Strategies)
	}
}

func TestRouteLLMGates(t *testing.T) {
	cls := query.Classification{IsCriminalLaw: true, Confidence: 0.9}

	plan := testRouter(t, false).Route(context.Background(), cls, fullExtraction())
	if hasStrategy(plan, StrategyLLMEnhanced) {
		t.Fatalf("unhealthy llm should drop llm_enhanced: %v", plan.Strategies)
	}

	lowConf := query.Classification{IsCriminalLaw: true, Confidence: 0.5}
	plan = testRouter(t, true).Route(context.Background(), lowConf, fullExtraction())
	if hasStrategy(plan, StrategyLLMEnhanced) {
		t.Fatalf("low confidence should drop llm_enhanced: %v", plan.Strategies)
	}
}

func TestRouteBasicAlwaysSelected(t *testing.T) {
	r := testRouter(t, false)
	cls := query.Classification{IsCriminalLaw: true, Confidence: 0.4}
	plan := r.Route(context.Background(), cls, query.Extraction{})
	if len(plan.Strategies) != 1 || plan.Strategies[0] != StrategyBasicSemantic {
		t.Fatalf("bare extraction should still run basic, got %v", plan.Strategies)
	}
}

func TestRouterWeightOverrides(t *testing.T) {
	r, err := NewRouter(logger.NewNop(), map[string]float64{StrategyBasicSemantic: 0.5}, func(context.Context) bool { return false })
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	cls := query.Classification{IsCriminalLaw: true, Confidence: 0.9}
	ext := query.Extraction{BM25Keywords: []bm25.WeightedKeyword{{Keyword: "盗窃", Weight: 1}}}
	plan := r.Route(context.Background(), cls, ext)
	want := 0.5 / 0.7
	if math.Abs(plan.Weights[StrategyBasicSemantic]-want) > 1e-9 {
		t.Fatalf("override weight: want %f got %f", want, plan.Weights[StrategyBasicSemantic])
	}

	if _, err := NewRouter(logger.NewNop(), map[string]float64{"bogus": 1}, func(context.Context) bool { return false }); err == nil {
		t.Fatalf("unknown strategy in overrides should error")
	}
	if _, err := NewRouter(logger.NewNop(), map[string]float64{StrategyHyde: -1}, func(context.Context) bool { return false }); err == nil {
		t.Fatalf("negative weight should error")
	}
}

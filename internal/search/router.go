package search

import (
	"context"
	"fmt"

	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
	"github.com/yungbote/lawgraph-backend/internal/query"
)

// defaultWeights is the relative importance of each strategy before
// renormalization over the selected subset.
var defaultWeights = map[string]float64{
	StrategyBasicSemantic:  0.25,
	StrategyBM25Hybrid:     0.20,
	StrategyQuery2doc:      0.20,
	StrategyHyde:           0.15,
	StrategyKnowledgeGraph: 0.15,
	StrategyLLMEnhanced:    0.05,
}

const nonCriminalShortCircuit = 0.8

// Plan is the router's decision: which strategies run and with what
// fusion weight. Weights sum to 1 over Strategies.
type Plan struct {
	Strategies []string           `json:"strategies"`
	Weights    map[string]float64 `json:"weights"`
	Reasons    map[string]string  `json:"reasons,omitempty"`
}

type Router struct {
	log        *logger.Logger
	weights    map[string]float64
	llmHealthy func(ctx context.Context) bool
}

// NewRouter takes the base weight table (nil means defaults) and a probe
// reporting whether the model client is usable for this request.
func NewRouter(log *logger.Logger, weights map[string]float64, llmHealthy func(ctx context.Context) bool) (*Router, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if llmHealthy == nil {
		return nil, fmt.Errorf("llm health probe required")
	}
	w := make(map[string]float64, len(defaultWeights))
	for k, v := range defaultWeights {
		w[k] = v
	}
	for k, v := range weights {
		if _, ok := w[k]; !ok {
			return nil, fmt.Errorf("unknown strategy in weight table: %q", k)
		}
		if v < 0 {
			return nil, fmt.Errorf("negative weight for %q", k)
		}
		w[k] = v
	}
	return &Router{log: log.With("service", "Router"), weights: w, llmHealthy: llmHealthy}, nil
}

// Route applies the selection rules in canonical strategy order.
func (r *Router) Route(ctx context.Context, cls query.Classification, ext query.Extraction) Plan {
	plan := Plan{Reasons: map[string]string{}}

	if !cls.IsCriminalLaw && cls.Confidence >= nonCriminalShortCircuit {
		plan.Strategies = []string{StrategyBasicSemantic}
		plan.Weights = map[string]float64{StrategyBasicSemantic: 1}
		plan.Reasons[StrategyBasicSemantic] = "non-criminal query, semantic only"
		return plan
	}

	selected := []string{StrategyBasicSemantic}
	plan.Reasons[StrategyBasicSemantic] = "always selected"

	if len(ext.BM25Keywords) > 0 {
		selected = append(selected, StrategyBM25Hybrid)
		plan.Reasons[StrategyBM25Hybrid] = fmt.Sprintf("%d keywords extracted", len(ext.BM25Keywords))
	}
	if ext.Query2docEnhanced != "" {
		selected = append(selected, StrategyQuery2doc)
		plan.Reasons[StrategyQuery2doc] = "pseudo document available"
	}
	if ext.HydeHypothetical != "" {
		selected = append(selected, StrategyHyde)
		plan.Reasons[StrategyHyde] = "hypothetical answer available"
	}
	if len(ext.Entities.Crimes) > 0 || len(ext.Entities.Articles) > 0 || len(ext.IdentifiedCrimes) > 0 {
		selected = append(selected, StrategyKnowledgeGraph)
		plan.Reasons[StrategyKnowledgeGraph] = "graph entities detected"
	}
	if r.llmHealthy(ctx) && cls.Confidence >= 0.6 {
		selected = append(selected, StrategyLLMEnhanced)
		plan.Reasons[StrategyLLMEnhanced] = "llm healthy, confident classification"
	}

	plan.Strategies = selected
	plan.Weights = r.renormalize(selected)
	return plan
}

func (r *Router) renormalize(selected []string) map[string]float64 {
	var total float64
	for _, s := range selected {
		total += r.weights[s]
	}
	out := make(map[string]float64, len(selected))
	if total == 0 {
		for _, s := range selected {
			out[s] = 1 / float64(len(selected))
		}
		return out
	}
	for _, s := range selected {
		out[s] = r.weights[s] / total
	}
	return out
}

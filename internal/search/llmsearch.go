package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/yungbote/lawgraph-backend/internal/embedding"
	"github.com/yungbote/lawgraph-backend/internal/query"
	"github.com/yungbote/lawgraph-backend/internal/vectorstore"
)

// llmEnhanced searches once per model-generated phrasing (plus the
// original query) and keeps each document's best score across phrasings.
type llmEnhanced struct {
	provider     embedding.Provider
	store        *vectorstore.Store
	understander *query.Understander
	topK         int
}

func newLLMEnhanced(provider embedding.Provider, store *vectorstore.Store, u *query.Understander) *llmEnhanced {
	return &llmEnhanced{provider: provider, store: store, understander: u, topK: defaultTopK}
}

func (s *llmEnhanced) Name() string { return StrategyLLMEnhanced }

func (s *llmEnhanced) Execute(ctx context.Context, in Input) (Result, error) {
	phrasings := s.understander.Rephrase(ctx, in.Query)
	if len(phrasings) == 0 {
		return Result{}, fmt.Errorf("no alternative phrasings available")
	}
	texts := append([]string{in.Query}, phrasings...)

	vecs, err := s.provider.Embed(ctx, texts)
	if err != nil {
		return Result{}, err
	}

	articles, err := s.maxOverPhrasings(ctx, vecs, vectorstore.PartitionArticles)
	if err != nil {
		return Result{}, err
	}
	cases, err := s.maxOverPhrasings(ctx, vecs, vectorstore.PartitionCases)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Articles: articles,
		Cases:    cases,
		Meta:     map[string]any{"phrasings": phrasings},
	}, nil
}

func (s *llmEnhanced) maxOverPhrasings(ctx context.Context, vecs [][]float32, part vectorstore.Partition) ([]ScoredDoc, error) {
	best := map[string]float64{}
	for _, v := range vecs {
		matches, err := s.store.Search(ctx, v, s.topK, part)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if m.Score > best[m.DocID] {
				best[m.DocID] = m.Score
			}
		}
	}

	docs := make([]ScoredDoc, 0, len(best))
	for id, score := range best {
		docs = append(docs, ScoredDoc{DocID: id, Score: score})
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score == docs[j].Score {
			return docs[i].DocID < docs[j].DocID
		}
		return docs[i].Score > docs[j].Score
	})
	if len(docs) > s.topK {
		docs = docs[:s.topK]
	}
	return docs, nil
}

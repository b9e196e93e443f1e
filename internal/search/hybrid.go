package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/yungbote/lawgraph-backend/internal/bm25"
	"github.com/yungbote/lawgraph-backend/internal/embedding"
	"github.com/yungbote/lawgraph-backend/internal/vectorstore"
)

const (
	hybridDenseWeight = 0.6
	hybridBM25Weight  = 0.4
)

// bm25Hybrid combines lexical and dense evidence per document. Both
// sources are normalized to [0,1] before mixing, and a document missing
// from one source contributes zero from it.
type bm25Hybrid struct {
	provider embedding.Provider
	store    *vectorstore.Store
	index    *bm25.Index
	topK     int
}

func newBM25Hybrid(provider embedding.Provider, store *vectorstore.Store, index *bm25.Index) *bm25Hybrid {
	return &bm25Hybrid{provider: provider, store: store, index: index, topK: defaultTopK}
}

func (s *bm25Hybrid) Name() string { return StrategyBM25Hybrid }

func (s *bm25Hybrid) Execute(ctx context.Context, in Input) (Result, error) {
	if len(in.Extraction.BM25Keywords) == 0 {
		return Result{}, fmt.Errorf("no keywords available")
	}
	terms := make([]string, len(in.Extraction.BM25Keywords))
	for i, kw := range in.Extraction.BM25Keywords {
		terms[i] = kw.Keyword
	}

	vecs, err := s.provider.Embed(ctx, []string{in.Query})
	if err != nil {
		return Result{}, err
	}
	q := vecs[0]

	articles, err := s.searchPartition(ctx, q, terms, vectorstore.PartitionArticles, bm25.PartitionArticles)
	if err != nil {
		return Result{}, err
	}
	cases, err := s.searchPartition(ctx, q, terms, vectorstore.PartitionCases, bm25.PartitionCases)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Articles: articles,
		Cases:    cases,
		Meta:     map[string]any{"keywords": terms},
	}, nil
}

func (s *bm25Hybrid) searchPartition(ctx context.Context, q []float32, terms []string, vp vectorstore.Partition, bp bm25.Partition) ([]ScoredDoc, error) {
	// Pull a wider candidate pool from each source so a document strong in
	// only one still survives the final cut.
	pool := s.topK * 2

	dense, err := s.store.Search(ctx, q, pool, vp)
	if err != nil {
		return nil, err
	}
	lexical, err := s.index.Search(ctx, terms, pool, bp)
	if err != nil {
		return nil, err
	}

	type pair struct{ dense, bm25 float64 }
	combined := map[string]*pair{}
	for _, m := range dense {
		combined[m.DocID] = &pair{dense: m.Score}
	}
	for _, h := range lexical {
		if p, ok := combined[h.DocID]; ok {
			p.bm25 = h.Score
		} else {
			combined[h.DocID] = &pair{bm25: h.Score}
		}
	}

	docs := make([]ScoredDoc, 0, len(combined))
	for id, p := range combined {
		docs = append(docs, ScoredDoc{
			DocID: id,
			Score: hybridDenseWeight*p.dense + hybridBM25Weight*p.bm25,
			Debug: map[string]any{"dense": p.dense, "bm25": p.bm25},
		})
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

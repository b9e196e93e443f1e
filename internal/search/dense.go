package search

import (
	"context"
	"fmt"

	"github.com/yungbote/lawgraph-backend/internal/embedding"
	"github.com/yungbote/lawgraph-backend/internal/vectorstore"
)

// query2docSep joins the original query and the pseudo document before
// encoding.
const query2docSep = "\n"

// denseCore is the shared encode-then-search path behind the three purely
// dense strategies. Each wrapper only decides what text to encode.
type denseCore struct {
	provider embedding.Provider
	store    *vectorstore.Store
	topK     int
}

func (d *denseCore) search(ctx context.Context, text string) (Result, error) {
	vecs, err := d.provider.Embed(ctx, []string{text})
	if err != nil {
		return Result{}, err
	}
	q := vecs[0]

	articles, err := d.store.Search(ctx, q, d.topK, vectorstore.PartitionArticles)
	if err != nil {
		return Result{}, err
	}
	cases, err := d.store.Search(ctx, q, d.topK, vectorstore.PartitionCases)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Articles: matchesToDocs(articles),
		Cases:    matchesToDocs(cases),
	}, nil
}

func matchesToDocs(matches []vectorstore.Match) []ScoredDoc {
	out := make([]ScoredDoc, len(matches))
	for i, m := range matches {
		out[i] = ScoredDoc{DocID: m.DocID, Score: m.Score}
	}
	return out
}

type basicSemantic struct{ denseCore }

func newBasicSemantic(provider embedding.Provider, store *vectorstore.Store) *basicSemantic {
	return &basicSemantic{denseCore{provider: provider, store: store, topK: defaultTopK}}
}

func (s *basicSemantic) Name() string { return StrategyBasicSemantic }

func (s *basicSemantic) Execute(ctx context.Context, in Input) (Result, error) {
	return s.search(ctx, in.Query)
}

type query2docSearch struct{ denseCore }

func newQuery2docSearch(provider embedding.Provider, store *vectorstore.Store) *query2docSearch {
	return &query2docSearch{denseCore{provider: provider, store: store, topK: defaultTopK}}
}

func (s *query2docSearch) Name() string { return StrategyQuery2doc }

func (s *query2docSearch) Execute(ctx context.Context, in Input) (Result, error) {
	if in.Extraction.Query2docEnhanced == "" {
		return Result{}, fmt.Errorf("no pseudo document available")
	}
	res, err := s.search(ctx, in.Query+query2docSep+in.Extraction.Query2docEnhanced)
	if err != nil {
		return Result{}, err
	}
	res.Meta = map[string]any{"pseudo_doc_chars": len([]rune(in.Extraction.Query2docEnhanced))}
	return res, nil
}

type hydeSearch struct{ denseCore }

func newHydeSearch(provider embedding.Provider, store *vectorstore.Store) *hydeSearch {
	return &hydeSearch{denseCore{provider: provider, store: store, topK: defaultTopK}}
}

func (s *hydeSearch) Name() string { return StrategyHyde }

func (s *hydeSearch) Execute(ctx context.Context, in Input) (Result, error) {
	if in.Extraction.HydeHypothetical == "" {
		return Result{}, fmt.Errorf("no hypothetical answer available")
	}
	res, err := s.search(ctx, in.Extraction.HydeHypothetical)
	if err != nil {
		return Result{}, err
	}
	res.Meta = map[string]any{"hypothetical_chars": len([]rune(in.Extraction.HydeHypothetical))}
	return res, nil
}

package search

import (
	"fmt"

	"github.com/yungbote/lawgraph-backend/internal/bm25"
	"github.com/yungbote/lawgraph-backend/internal/embedding"
	"github.com/yungbote/lawgraph-backend/internal/kg"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
	"github.com/yungbote/lawgraph-backend/internal/query"
	"github.com/yungbote/lawgraph-backend/internal/vectorstore"
)

// Registry holds the six strategy implementations keyed by name.
type Registry struct {
	searchers map[string]Searcher
}

func NewRegistry(
	log *logger.Logger,
	provider embedding.Provider,
	store *vectorstore.Store,
	index *bm25.Index,
	graph *kg.Graph,
	understander *query.Understander,
) (*Registry, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if provider == nil || store == nil || index == nil || graph == nil || understander == nil {
		return nil, fmt.Errorf("all strategy dependencies required")
	}
	r := &Registry{searchers: map[string]Searcher{}}
	for _, s := range []Searcher{
		newBasicSemantic(provider, store),
		newBM25Hybrid(provider, store, index),
		newQuery2docSearch(provider, store),
		newHydeSearch(provider, store),
		newGraphSearch(provider, store, graph),
		newLLMEnhanced(provider, store, understander),
	} {
		r.searchers[s.Name()] = s
	}
	return r, nil
}

func (r *Registry) Get(name string) (Searcher, bool) {
	s, ok := r.searchers[name]
	return s, ok
}

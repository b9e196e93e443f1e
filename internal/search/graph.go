package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/yungbote/lawgraph-backend/internal/embedding"
	"github.com/yungbote/lawgraph-backend/internal/kg"
	"github.com/yungbote/lawgraph-backend/internal/vectorstore"
)

const (
	graphEdgeWeight   = 0.7
	graphCosineWeight = 0.3

	graphArticleLimit = 50
	graphCaseLimit    = 100
)

// graphSearch scores knowledge-graph candidates by mixing edge confidence
// with query similarity: edge_confidence·0.7 + cosine·0.3.
type graphSearch struct {
	provider embedding.Provider
	store    *vectorstore.Store
	graph    *kg.Graph
	topK     int
}

func newGraphSearch(provider embedding.Provider, store *vectorstore.Store, graph *kg.Graph) *graphSearch {
	return &graphSearch{provider: provider, store: store, graph: graph, topK: defaultTopK}
}

func (s *graphSearch) Name() string { return StrategyKnowledgeGraph }

func (s *graphSearch) Execute(ctx context.Context, in Input) (Result, error) {
	edges := s.candidateEdges(in)
	if len(edges) == 0 {
		return Result{}, fmt.Errorf("no graph entities detected")
	}

	vecs, err := s.provider.Embed(ctx, []string{in.Query})
	if err != nil {
		return Result{}, err
	}
	q := vecs[0]

	// Candidate article set with the best edge confidence per article.
	articleConf := map[string]float64{}
	for _, e := range edges {
		if len(articleConf) >= graphArticleLimit {
			break
		}
		if e.Confidence > articleConf[e.ArticleID] {
			articleConf[e.ArticleID] = e.Confidence
		}
	}

	// Candidate cases across the top pairs, keeping the pair's confidence.
	caseConf := map[string]float64{}
	for _, e := range edges {
		if len(caseConf) >= graphCaseLimit {
			break
		}
		for _, caseID := range s.graph.CasesFor(e.Crime, e.ArticleNumber, graphCaseLimit-len(caseConf)) {
			if e.Confidence > caseConf[caseID] {
				caseConf[caseID] = e.Confidence
			}
		}
	}

	articles, err := s.scoreCandidates(ctx, q, articleConf, vectorstore.PartitionArticles)
	if err != nil {
		return Result{}, err
	}
	cases, err := s.scoreCandidates(ctx, q, caseConf, vectorstore.PartitionCases)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Articles: articles,
		Cases:    cases,
		Meta:     map[string]any{"candidate_edges": len(edges)},
	}, nil
}

// candidateEdges unions the edges of every detected entity, ordered by
// confidence desc.
func (s *graphSearch) candidateEdges(in Input) []*kg.Edge {
	seen := map[string]bool{}
	var edges []*kg.Edge
	add := func(list []*kg.Edge) {
		for _, e := range list {
			key := e.Crime + "\x00" + e.ArticleID
			if !seen[key] {
				seen[key] = true
				edges = append(edges, e)
			}
		}
	}
	for _, crime := range in.Extraction.Entities.Crimes {
		add(s.graph.RelatedArticles(crime, graphArticleLimit))
	}
	for _, c := range in.Extraction.IdentifiedCrimes {
		add(s.graph.RelatedArticles(c.Name, graphArticleLimit))
	}
	for _, num := range in.Extraction.Entities.Articles {
		add(s.graph.RelatedCrimes(num, graphArticleLimit))
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Confidence > edges[j].Confidence })
	return edges
}

func (s *graphSearch) scoreCandidates(ctx context.Context, q []float32, conf map[string]float64, part vectorstore.Partition) ([]ScoredDoc, error) {
	if len(conf) == 0 {
		return nil, nil
	}
	filter := make(map[string]bool, len(conf))
	for id := range conf {
		filter[id] = true
	}
	matches, err := s.store.SearchWithIDs(ctx, q, len(conf), part, filter)
	if err != nil {
		return nil, err
	}

	docs := make([]ScoredDoc, 0, len(matches))
	for _, m := range matches {
		edgeConf := conf[m.DocID]
		docs = append(docs, ScoredDoc{
			DocID: m.DocID,
			Score: graphEdgeWeight*edgeConf + graphCosineWeight*m.Score,
			Debug: map[string]any{"edge_confidence": edgeConf, "cosine": m.Score},
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

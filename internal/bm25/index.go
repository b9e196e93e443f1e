package bm25

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/platform/ctxutil"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

// Okapi BM25 parameters.
const (
	k1 = 1.2
	b  = 0.75
)

type Partition string

const (
	PartitionArticles Partition = "articles"
	PartitionCases    Partition = "cases"
)

type Hit struct {
	DocID string
	Score float64
}

// WeightedKeyword is a corpus-level TF-IDF keyword, used by query
// understanding for keyword extraction.
type WeightedKeyword struct {
	Keyword string  `json:"keyword"`
	Weight  float64 `json:"weight"`
}

// Index is a lexical index over title+content of both partitions, built
// once at startup and read-shared afterwards.
type Index struct {
	log       *logger.Logger
	tokenizer *Tokenizer

	partitions map[Partition]*partitionIndex
	docCount   int
	idf        map[string]float64
}

type partitionIndex struct {
	ids      []string
	idSet    map[string]bool
	termFreq []map[string]int
	docLen   []int
	avgLen   float64
	postings map[string][]int
}

func NewIndex(log *logger.Logger, tok *Tokenizer, articles, cases []*domain.Document) (*Index, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if tok == nil {
		return nil, fmt.Errorf("tokenizer required")
	}
	idx := &Index{
		log:       log.With("service", "BM25Index"),
		tokenizer: tok,
		partitions: map[Partition]*partitionIndex{
			PartitionArticles: buildPartition(tok, articles),
			PartitionCases:    buildPartition(tok, cases),
		},
		idf: map[string]float64{},
	}

	// IDF over the union corpus so article and case scores share a scale.
	df := map[string]int{}
	for _, p := range idx.partitions {
		for term, rows := range p.postings {
			df[term] += len(rows)
		}
		idx.docCount += len(p.ids)
	}
	for term, n := range df {
		idx.idf[term] = math.Log(1 + (float64(idx.docCount)-float64(n)+0.5)/(float64(n)+0.5))
	}
	return idx, nil
}

func buildPartition(tok *Tokenizer, docs []*domain.Document) *partitionIndex {
	p := &partitionIndex{
		ids:      make([]string, 0, len(docs)),
		idSet:    make(map[string]bool, len(docs)),
		termFreq: make([]map[string]int, 0, len(docs)),
		docLen:   make([]int, 0, len(docs)),
		postings: map[string][]int{},
	}
	var total int
	for _, d := range docs {
		terms := tok.Tokenize(d.Title + " " + d.Content)
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		row := len(p.ids)
		p.ids = append(p.ids, d.ID)
		p.idSet[d.ID] = true
		p.termFreq = append(p.termFreq, tf)
		p.docLen = append(p.docLen, len(terms))
		total += len(terms)
		for t := range tf {
			p.postings[t] = append(p.postings[t], row)
		}
	}
	if len(p.ids) > 0 {
		p.avgLen = float64(total) / float64(len(p.ids))
	}
	return p
}

func (idx *Index) Contains(part Partition, docID string) bool {
	p := idx.partitions[part]
	return p != nil && p.idSet[docID]
}

func (idx *Index) Size(part Partition) int {
	p := idx.partitions[part]
	if p == nil {
		return 0
	}
	return len(p.ids)
}

// Search scores the partition against the given terms and returns the
// top-k hits with scores min-max normalized to [0,1] per query. An empty
// term list yields an empty result.
func (idx *Index) Search(ctx context.Context, terms []string, k int, part Partition) ([]Hit, error) {
	ctx = ctxutil.Default(ctx)
	p := idx.partitions[part]
	if p == nil {
		return nil, fmt.Errorf("unknown partition %q", part)
	}
	if len(terms) == 0 || k <= 0 {
		return nil, nil
	}

	scores := map[int]float64{}
	for _, term := range terms {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rows, ok := p.postings[term]
		if !ok {
			continue
		}
		idf := idx.idf[term]
		for _, row := range rows {
			tf := float64(p.termFreq[row][term])
			norm := 1 - b + b*float64(p.docLen[row])/p.avgLen
			scores[row] += idf * tf * (k1 + 1) / (tf + k1*norm)
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(scores))
	for row, score := range scores {
		hits = append(hits, Hit{DocID: p.ids[row], Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].DocID < hits[j].DocID
		}
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	normalizeMinMax(hits)
	return hits, nil
}

// TokenizeQuery exposes the index tokenizer for query-side term building.
func (idx *Index) TokenizeQuery(q string) []string {
	return idx.tokenizer.Tokenize(q)
}

// TopKeywords ranks the query's tokens by corpus TF-IDF weight, bounded to
// limit, weights normalized to (0,1].
func (idx *Index) TopKeywords(q string, limit int) []WeightedKeyword {
	terms := idx.tokenizer.Tokenize(q)
	if len(terms) == 0 || limit <= 0 {
		return nil
	}
	tf := map[string]int{}
	order := make([]string, 0, len(terms))
	for _, t := range terms {
		if tf[t] == 0 {
			order = append(order, t)
		}
		tf[t]++
	}

	kws := make([]WeightedKeyword, 0, len(order))
	var maxW float64
	for _, t := range order {
		idf, ok := idx.idf[t]
		if !ok {
			// Unknown terms still matter for recall; give them mid weight.
			idf = math.Log(float64(idx.docCount) + 1)
		}
		w := float64(tf[t]) * idf
		if w > maxW {
			maxW = w
		}
		kws = append(kws, WeightedKeyword{Keyword: t, Weight: w})
	}
	if maxW > 0 {
		for i := range kws {
			kws[i].Weight = kws[i].Weight / maxW
		}
	}
	sort.SliceStable(kws, func(i, j int) bool { return kws[i].Weight > kws[j].Weight })
	if len(kws) > limit {
		kws = kws[:limit]
	}
	return kws
}

func normalizeMinMax(hits []Hit) {
	if len(hits) == 0 {
		return
	}
	lo, hi := hits[len(hits)-1].Score, hits[0].Score
	if hi == lo {
		for i := range hits {
			hits[i].Score = 1
		}
		return
	}
	for i := range hits {
		hits[i].Score = (hits[i].Score - lo) / (hi - lo)
	}
}

package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/yungbote/lawgraph-backend/internal/artifacts"
	"github.com/yungbote/lawgraph-backend/internal/platform/ctxutil"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

type Partition string

const (
	PartitionArticles Partition = "articles"
	PartitionCases    Partition = "cases"
)

type Match struct {
	DocID string
	Score float64
}

// Store is the in-memory dense index. Matrices are read-shared and never
// mutated after construction, so searches take no locks.
type Store struct {
	log *logger.Logger
	dim int

	partitions map[Partition]*partition
}

type partition struct {
	ids     []string
	rows    [][]float32
	norms   []float64
	rowByID map[string]int
}

func New(log *logger.Logger, articleVecs, caseVecs *artifacts.VectorFile) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if articleVecs == nil || caseVecs == nil {
		return nil, fmt.Errorf("vector files required")
	}
	if articleVecs.Dim != caseVecs.Dim {
		return nil, fmt.Errorf("partition dim mismatch: %d vs %d", articleVecs.Dim, caseVecs.Dim)
	}
	s := &Store{
		log: log.With("service", "VectorStore"),
		dim: articleVecs.Dim,
		partitions: map[Partition]*partition{
			PartitionArticles: newPartition(articleVecs),
			PartitionCases:    newPartition(caseVecs),
		},
	}
	return s, nil
}

func newPartition(vf *artifacts.VectorFile) *partition {
	p := &partition{
		ids:     vf.IDs,
		rows:    vf.Vectors,
		norms:   make([]float64, len(vf.Vectors)),
		rowByID: make(map[string]int, len(vf.IDs)),
	}
	for i, row := range vf.Vectors {
		p.norms[i] = l2norm(row)
		p.rowByID[vf.IDs[i]] = i
	}
	return p
}

func (s *Store) Dim() int { return s.dim }

func (s *Store) Size(part Partition) int {
	p := s.partitions[part]
	if p == nil {
		return 0
	}
	return len(p.ids)
}

func (s *Store) Contains(part Partition, docID string) bool {
	p := s.partitions[part]
	if p == nil {
		return false
	}
	_, ok := p.rowByID[docID]
	return ok
}

// Search returns the top-k rows of the partition by cosine similarity,
// clamped to [0,1]. Tie-break: higher score first, then doc_id ascending.
func (s *Store) Search(ctx context.Context, query []float32, k int, part Partition) ([]Match, error) {
	return s.search(ctx, query, k, part, nil)
}

// SearchWithIDs restricts the scan to the given id set. An empty filter
// yields an empty result, not an error.
func (s *Store) SearchWithIDs(ctx context.Context, query []float32, k int, part Partition, idFilter map[string]bool) ([]Match, error) {
	if idFilter != nil && len(idFilter) == 0 {
		return nil, nil
	}
	return s.search(ctx, query, k, part, idFilter)
}

func (s *Store) search(ctx context.Context, query []float32, k int, part Partition, idFilter map[string]bool) ([]Match, error) {
	ctx = ctxutil.Default(ctx)
	p := s.partitions[part]
	if p == nil {
		return nil, fmt.Errorf("unknown partition %q", part)
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("query dimension mismatch: expected=%d got=%d", s.dim, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	qNorm := l2norm(query)
	if qNorm == 0 {
		return nil, nil
	}

	out := make([]Match, 0, min(k*2, len(p.ids)))
	for i, row := range p.rows {
		// Honor cancellation on long scans without checking every row.
		if i%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if idFilter != nil && !idFilter[p.ids[i]] {
			continue
		}
		denom := qNorm * p.norms[i]
		if denom == 0 {
			continue
		}
		score := dot(query, row) / denom
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}
		out = append(out, Match{DocID: p.ids[i], Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].DocID < out[j].DocID
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func l2norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

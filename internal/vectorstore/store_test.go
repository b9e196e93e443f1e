package vectorstore

import (
	"context"
	"testing"

	"github.com/yungbote/lawgraph-backend/internal/artifacts"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	articles := &artifacts.VectorFile{
		Dim: 3,
		IDs: []string{"article_1", "article_2", "article_3"},
		Vectors: [][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{1, 1, 0},
		},
	}
	cases := &artifacts.VectorFile{
		Dim: 3,
		IDs: []string{"case_a", "case_b"},
		Vectors: [][]float32{
			{0, 0, 1},
			{1, 0, 1},
		},
	}
	s, err := New(logger.NewNop(), articles, cases)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSearchOrdersByCosine(t *testing.T) {
	s := testStore(t)
	got, err := s.Search(context.Background(), []float32{1, 0, 0}, 3, PartitionArticles)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 matches, got %d", len(got))
	}
	if got[0].DocID != "article_1" {
		t.Fatalf("best match: want article_1 got %s", got[0].DocID)
	}
	if got[0].Score < 0.999 {
		t.Fatalf("identical direction should score ~1, got %f", got[0].Score)
	}
	if got[1].DocID != "article_3" {
		t.Fatalf("second match: want article_3 got %s", got[1].DocID)
	}
	if got[2].DocID != "article_2" {
		t.Fatalf("third match: want article_2 got %s", got[2].DocID)
	}
}

func TestSearchTieBreaksByDocID(t *testing.T) {
	vf := &artifacts.VectorFile{
		Dim: 2,
		IDs: []string{"article_9", "article_1"},
		Vectors: [][]float32{
			{1, 0},
			{1, 0},
		},
	}
	s, err := New(logger.NewNop(), vf, &artifacts.VectorFile{Dim: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := s.Search(context.Background(), []float32{1, 0}, 2, PartitionArticles)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got[0].DocID != "article_1" || got[1].DocID != "article_9" {
		t.Fatalf("ties should order by doc id, got %s then %s", got[0].DocID, got[1].DocID)
	}
}

func TestSearchWithIDsFilters(t *testing.T) {
	s := testStore(t)
	got, err := s.SearchWithIDs(context.Background(), []float32{1, 0, 0}, 5, PartitionArticles, map[string]bool{"article_2": true})
	if err != nil {
		t.Fatalf("SearchWithIDs: %v", err)
	}
	if len(got) != 1 || got[0].DocID != "article_2" {
		t.Fatalf("filter should keep only article_2, got %+v", got)
	}

	empty, err := s.SearchWithIDs(context.Background(), []float32{1, 0, 0}, 5, PartitionArticles, map[string]bool{})
	if err != nil {
		t.Fatalf("SearchWithIDs empty filter: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("empty filter should match nothing, got %+v", empty)
	}
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	s := testStore(t)
	if _, err := s.Search(context.Background(), []float32{1, 0}, 3, PartitionArticles); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestSearchZeroQueryVector(t *testing.T) {
	s := testStore(t)
	got, err := s.Search(context.Background(), []float32{0, 0, 0}, 3, PartitionArticles)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("zero query should match nothing, got %+v", got)
	}
}

package artifacts

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

func TestVectorFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.bin")
	ids := []string{"article_1", "article_2"}
	vectors := [][]float32{{0.5, -1.5, 3}, {0, 0.25, -0.125}}

	if err := WriteVectorFile(path, 3, ids, vectors); err != nil {
		t.Fatalf("WriteVectorFile: %v", err)
	}
	vf, err := ReadVectorFile(path)
	if err != nil {
		t.Fatalf("ReadVectorFile: %v", err)
	}
	if vf.Dim != 3 {
		t.Fatalf("dim: want 3 got %d", vf.Dim)
	}
	if len(vf.IDs) != 2 || vf.IDs[0] != "article_1" {
		t.Fatalf("ids: %v", vf.IDs)
	}
	for i := range vectors {
		for j := range vectors[i] {
			if vf.Vectors[i][j] != vectors[i][j] {
				t.Fatalf("row %d col %d: want %f got %f", i, j, vectors[i][j], vf.Vectors[i][j])
			}
		}
	}
}

func TestReadVectorFileTruncatedPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	if err := WriteVectorFile(path, 4, []string{"article_1"}, [][]float32{{1, 2, 3, 4}}); err != nil {
		t.Fatalf("WriteVectorFile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := os.WriteFile(path, raw[:len(raw)-4], 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = ReadVectorFile(path)
	if !errors.Is(err, domain.ErrArtifactCorruption) {
		t.Fatalf("want artifact corruption, got %v", err)
	}
}

func TestReadVectorFileSidecarMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	if err := WriteVectorFile(path, 2, []string{"article_1"}, [][]float32{{1, 2}}); err != nil {
		t.Fatalf("WriteVectorFile: %v", err)
	}
	if err := os.WriteFile(path+".meta.json", []byte(`["article_1","article_2"]`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := ReadVectorFile(path)
	if !errors.Is(err, domain.ErrArtifactCorruption) {
		t.Fatalf("want artifact corruption, got %v", err)
	}
}

func writeTestDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	articles := []*domain.Document{
		{ID: "article_264", Type: domain.DocTypeArticle, ArticleNumber: 264, Title: "盗窃罪", Content: "盗窃公私财物"},
	}
	cases := []*domain.Document{
		{ID: "case_1", Type: domain.DocTypeCase, CaseID: "case_1", Title: "盗窃案", Content: "被告人盗窃财物", Accusations: []string{"盗窃罪"}},
	}
	writeJSON(t, filepath.Join(dir, "articles.json"), articles)
	writeJSON(t, filepath.Join(dir, "cases.json"), cases)

	if err := os.MkdirAll(filepath.Join(dir, "vectors"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := WriteVectorFile(filepath.Join(dir, "vectors", "articles.bin"), 2, []string{"article_264"}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("WriteVectorFile: %v", err)
	}
	if err := WriteVectorFile(filepath.Join(dir, "vectors", "cases.bin"), 2, []string{"case_1"}, [][]float32{{0, 1}}); err != nil {
		t.Fatalf("WriteVectorFile: %v", err)
	}

	if err := os.MkdirAll(filepath.Join(dir, "kg"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	mapping := "case_id,article_number,confidence,is_primary\ncase_1,264,0.9,true\n"
	if err := os.WriteFile(filepath.Join(dir, "kg", "mapping.csv"), []byte(mapping), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return dir
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoaderLoad(t *testing.T) {
	dir := writeTestDataDir(t)
	l, err := NewLoader(logger.NewNop(), dir)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	b, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(b.Articles) != 1 || len(b.Cases) != 1 || len(b.Mapping) != 1 {
		t.Fatalf("bundle shape: %d articles %d cases %d mapping rows", len(b.Articles), len(b.Cases), len(b.Mapping))
	}
	if b.Mapping[0].ArticleNumber != 264 || !b.Mapping[0].IsPrimary {
		t.Fatalf("mapping row: %+v", b.Mapping[0])
	}
}

func TestLoaderRejectsMappingToUnknownCase(t *testing.T) {
	dir := writeTestDataDir(t)
	mapping := "case_id,article_number,confidence,is_primary\ncase_missing,264,0.9,true\n"
	if err := os.WriteFile(filepath.Join(dir, "kg", "mapping.csv"), []byte(mapping), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	l, err := NewLoader(logger.NewNop(), dir)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	_, err = l.Load()
	if !errors.Is(err, domain.ErrArtifactCorruption) {
		t.Fatalf("want artifact corruption, got %v", err)
	}
}

func TestLoaderMissingFileIsNotCorruption(t *testing.T) {
	dir := writeTestDataDir(t)
	if err := os.Remove(filepath.Join(dir, "articles.json")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	l, err := NewLoader(logger.NewNop(), dir)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	_, err = l.Load()
	if err == nil {
		t.Fatalf("expected error for missing corpus")
	}
	if errors.Is(err, domain.ErrArtifactCorruption) {
		t.Fatalf("missing file should not read as corruption: %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file should wrap os.ErrNotExist: %v", err)
	}
}

func TestLoaderRejectsBadConfidence(t *testing.T) {
	dir := writeTestDataDir(t)
	mapping := "case_id,article_number,confidence,is_primary\ncase_1,264,1.5,true\n"
	if err := os.WriteFile(filepath.Join(dir, "kg", "mapping.csv"), []byte(mapping), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	l, err := NewLoader(logger.NewNop(), dir)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if _, err := l.Load(); !errors.Is(err, domain.ErrArtifactCorruption) {
		t.Fatalf("want artifact corruption, got %v", err)
	}
}

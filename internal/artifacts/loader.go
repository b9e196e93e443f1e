package artifacts

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

// MappingRow is one row of kg/mapping.csv:
// case_id, article_number, confidence, is_primary.
type MappingRow struct {
	CaseID        string
	ArticleNumber int
	Confidence    float64
	IsPrimary     bool
}

// Bundle is everything the service loads from DATA_DIR at startup. All of
// it is immutable for the life of the process.
type Bundle struct {
	Articles []*domain.Document
	Cases    []*domain.Document

	ArticleVectors *VectorFile
	CaseVectors    *VectorFile

	Mapping []MappingRow
}

type Loader struct {
	log     *logger.Logger
	dataDir string
}

func NewLoader(log *logger.Logger, dataDir string) (*Loader, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		return nil, fmt.Errorf("missing DATA_DIR")
	}
	return &Loader{log: log.With("service", "ArtifactLoader"), dataDir: dataDir}, nil
}

// Load reads and cross-validates every artifact. A missing file is reported
// as-is (the CLI maps it to exit code 2); any shape or reference violation
// comes back wrapping domain.ErrArtifactCorruption.
func (l *Loader) Load() (*Bundle, error) {
	articles, cases, err := l.LoadCorpora()
	if err != nil {
		return nil, err
	}

	articleVecs, err := ReadVectorFile(filepath.Join(l.dataDir, "vectors", "articles.bin"))
	if err != nil {
		return nil, err
	}
	caseVecs, err := ReadVectorFile(filepath.Join(l.dataDir, "vectors", "cases.bin"))
	if err != nil {
		return nil, err
	}

	mapping, err := l.loadMapping(filepath.Join(l.dataDir, "kg", "mapping.csv"))
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		Articles:       articles,
		Cases:          cases,
		ArticleVectors: articleVecs,
		CaseVectors:    caseVecs,
		Mapping:        mapping,
	}
	if err := b.validate(); err != nil {
		return nil, err
	}

	l.log.Info("artifacts loaded",
		"articles", len(articles),
		"cases", len(cases),
		"vector_dim", articleVecs.Dim,
		"mapping_rows", len(mapping),
	)
	return b, nil
}

// LoadCorpora reads only the two document files. The reindex tool uses it
// to rebuild vectors when no vector files exist yet.
func (l *Loader) LoadCorpora() (articles, cases []*domain.Document, err error) {
	articles, err = l.loadCorpus(filepath.Join(l.dataDir, "articles.json"), domain.DocTypeArticle)
	if err != nil {
		return nil, nil, err
	}
	cases, err = l.loadCorpus(filepath.Join(l.dataDir, "cases.json"), domain.DocTypeCase)
	if err != nil {
		return nil, nil, err
	}
	return articles, cases, nil
}

func (l *Loader) loadCorpus(path string, want domain.DocType) ([]*domain.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	var docs []*domain.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrArtifactCorruption, path, err)
	}
	for _, d := range docs {
		if d.Type == "" {
			d.Type = domain.DocTypeFromID(d.ID)
		}
		if d.Type != want {
			return nil, fmt.Errorf("%w: %s: document %q has type %q, want %q",
				domain.ErrArtifactCorruption, path, d.ID, d.Type, want)
		}
	}
	return docs, nil
}

func (l *Loader) loadMapping(path string) ([]MappingRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read kg mapping: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 4
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrArtifactCorruption, path, err)
	}

	rows := make([]MappingRow, 0, len(records))
	for i, rec := range records {
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "case_id") {
			continue // header row
		}
		num, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: bad article_number %q",
				domain.ErrArtifactCorruption, path, i+1, rec[1])
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil || conf < 0 || conf > 1 {
			return nil, fmt.Errorf("%w: %s row %d: bad confidence %q",
				domain.ErrArtifactCorruption, path, i+1, rec[2])
		}
		primary := strings.EqualFold(strings.TrimSpace(rec[3]), "true") || strings.TrimSpace(rec[3]) == "1"
		rows = append(rows, MappingRow{
			CaseID:        strings.TrimSpace(rec[0]),
			ArticleNumber: num,
			Confidence:    conf,
			IsPrimary:     primary,
		})
	}
	return rows, nil
}

// validate enforces the startup invariants: unique IDs, vector/corpus ID-set
// equality per partition, and mapping rows referencing known documents.
func (b *Bundle) validate() error {
	seen := make(map[string]bool, len(b.Articles)+len(b.Cases))
	byNumber := make(map[int]bool, len(b.Articles))
	byCaseID := make(map[string]bool, len(b.Cases))
	for _, d := range b.Articles {
		if seen[d.ID] {
			return fmt.Errorf("%w: duplicate document id %q", domain.ErrArtifactCorruption, d.ID)
		}
		seen[d.ID] = true
		byNumber[d.ArticleNumber] = true
	}
	for _, d := range b.Cases {
		if seen[d.ID] {
			return fmt.Errorf("%w: duplicate document id %q", domain.ErrArtifactCorruption, d.ID)
		}
		seen[d.ID] = true
		byCaseID[d.CaseID] = true
	}

	if err := checkVectorCoverage("articles", b.ArticleVectors, b.Articles); err != nil {
		return err
	}
	if err := checkVectorCoverage("cases", b.CaseVectors, b.Cases); err != nil {
		return err
	}
	if b.ArticleVectors.Dim != b.CaseVectors.Dim {
		return fmt.Errorf("%w: partition dim mismatch: articles=%d cases=%d",
			domain.ErrArtifactCorruption, b.ArticleVectors.Dim, b.CaseVectors.Dim)
	}

	for _, row := range b.Mapping {
		if !byCaseID[row.CaseID] {
			return fmt.Errorf("%w: mapping references unknown case %q", domain.ErrArtifactCorruption, row.CaseID)
		}
		if !byNumber[row.ArticleNumber] {
			return fmt.Errorf("%w: mapping references unknown article %d", domain.ErrArtifactCorruption, row.ArticleNumber)
		}
	}
	return nil
}

func checkVectorCoverage(partition string, vf *VectorFile, docs []*domain.Document) error {
	if len(vf.IDs) != len(docs) {
		return fmt.Errorf("%w: %s: vector count %d != corpus count %d",
			domain.ErrArtifactCorruption, partition, len(vf.IDs), len(docs))
	}
	ids := make(map[string]bool, len(docs))
	for _, d := range docs {
		ids[d.ID] = true
	}
	for _, id := range vf.IDs {
		if !ids[id] {
			return fmt.Errorf("%w: %s: vector for unknown document %q",
				domain.ErrArtifactCorruption, partition, id)
		}
	}
	return nil
}

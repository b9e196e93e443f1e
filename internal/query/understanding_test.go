package query

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/yungbote/lawgraph-backend/internal/artifacts"
	"github.com/yungbote/lawgraph-backend/internal/bm25"
	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/kg"
	"github.com/yungbote/lawgraph-backend/internal/llm"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

// scriptedGen serves canned responses keyed by request purpose. A nil map
// means the generator is disabled.
type scriptedGen struct {
	byPurpose map[string]string
	calls     []string
}

func (g *scriptedGen) Enabled() bool { return g.byPurpose != nil }

func (g *scriptedGen) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	g.calls = append(g.calls, req.Purpose)
	text, ok := g.byPurpose[req.Purpose]
	if !ok {
		return llm.Response{}, fmt.Errorf("%w: no script for %q", domain.ErrProviderUnavailable, req.Purpose)
	}
	return llm.Response{Text: text, Provider: "scripted", Model: "scripted"}, nil
}

func (g *scriptedGen) GenerateJSON(ctx context.Context, req llm.Request, out any) error {
	resp, err := g.Generate(ctx, req)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(resp.Text), out)
}

func (g *scriptedGen) Usage(ctx context.Context) (llm.Usage, error) {
	return llm.Usage{Enabled: g.Enabled()}, nil
}

func testUnderstander(t *testing.T, gen llm.Generator) *Understander {
	t.Helper()
	articles := []*domain.Document{
		{ID: "article_264", Type: domain.DocTypeArticle, ArticleNumber: 264, Title: "盗窃罪", Content: "盗窃公私财物，数额较大的，处三年以下有期徒刑"},
	}
	cases := []*domain.Document{
		{ID: "case_1", Type: domain.DocTypeCase, CaseID: "case_1", Title: "盗窃案", Content: "被告人盗窃他人财物", Accusations: []string{"盗窃罪"}},
	}
	bundle := &artifacts.Bundle{
		Articles: articles,
		Cases:    cases,
		Mapping:  []artifacts.MappingRow{{CaseID: "case_1", ArticleNumber: 264, Confidence: 0.9, IsPrimary: true}},
	}
	graph, err := kg.Build(logger.NewNop(), bundle)
	if err != nil {
		t.Fatalf("kg.Build: %v", err)
	}
	tok, err := bm25.NewTokenizer(nil)
	if err != nil {
		t.Fatalf("NewTokenizer: %v", err)
	}
	index, err := bm25.NewIndex(logger.NewNop(), tok, articles, cases)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	u, err := NewUnderstander(logger.NewNop(), gen, index, graph)
	if err != nil {
		t.Fatalf("NewUnderstander: %v", err)
	}
	return u
}

func TestClassifyRuleFallback(t *testing.T) {
	u := testUnderstander(t, &scriptedGen{})
	ctx := context.Background()

	crim := u.Classify(ctx, "盗窃他人财物怎么判")
	if !crim.IsCriminalLaw {
		t.Fatalf("crime-bearing query should classify criminal: %+v", crim)
	}
	if crim.Method != "rule" {
		t.Fatalf("disabled generator should use rule method, got %s", crim.Method)
	}
	if crim.Confidence != 0.6 {
		t.Fatalf("one entity match: confidence want 0.6 got %f", crim.Confidence)
	}

	civil := u.Classify(ctx, "民间借贷利息怎么算")
	if civil.IsCriminalLaw {
		t.Fatalf("civil query should not classify criminal: %+v", civil)
	}
	if civil.Confidence != 0.4 {
		t.Fatalf("no-match confidence want 0.4 got %f", civil.Confidence)
	}
}

func TestClassifyLLMVerdict(t *testing.T) {
	gen := &scriptedGen{byPurpose: map[string]string{
		"classify": `{"is_criminal_law": true, "confidence": 1.4, "reasoning": "涉及盗窃罪"}`,
	}}
	u := testUnderstander(t, gen)

	c := u.Classify(context.Background(), "盗窃怎么判")
	if c.Method != "llm" {
		t.Fatalf("want llm method, got %s", c.Method)
	}
	if c.Confidence != 1 {
		t.Fatalf("confidence should clamp to 1, got %f", c.Confidence)
	}
	if c.Reasoning != "涉及盗窃罪" {
		t.Fatalf("reasoning: %q", c.Reasoning)
	}
}

func TestClassifyLLMFailureFallsBack(t *testing.T) {
	gen := &scriptedGen{byPurpose: map[string]string{"extract": "{}"}}
	u := testUnderstander(t, gen)
	c := u.Classify(context.Background(), "盗窃他人财物")
	if c.Method != "rule" {
		t.Fatalf("model failure should fall back to rule, got %s", c.Method)
	}
}

func TestExtractWithDisabledGenerator(t *testing.T) {
	u := testUnderstander(t, &scriptedGen{})
	ext := u.Extract(context.Background(), "盗窃他人财物怎么判")

	if len(ext.BM25Keywords) == 0 {
		t.Fatalf("keywords never need the model")
	}
	if len(ext.IdentifiedCrimes) != 1 || ext.IdentifiedCrimes[0].Name != "盗窃罪" {
		t.Fatalf("crimes should fall back to graph matches: %+v", ext.IdentifiedCrimes)
	}
	if ext.IdentifiedCrimes[0].Confidence != 0.6 {
		t.Fatalf("fallback crime confidence want 0.6 got %f", ext.IdentifiedCrimes[0].Confidence)
	}
	if ext.Query2docEnhanced != "" || ext.HydeHypothetical != "" {
		t.Fatalf("enhanced texts should degrade to empty without a model")
	}
}

func TestExtractWithModel(t *testing.T) {
	gen := &scriptedGen{byPurpose: map[string]string{
		"extract":   `{"crimes": [{"name": "盗窃罪", "confidence": 0.95, "reasoning": "明确提及"}]}`,
		"query2doc": "盗窃公私财物，数额较大的，处三年以下有期徒刑、拘役或者管制。",
		"hyde":      "根据刑法规定，盗窃罪的量刑取决于数额与情节。",
	}}
	u := testUnderstander(t, gen)
	ext := u.Extract(context.Background(), "盗窃怎么判")

	if len(ext.IdentifiedCrimes) != 1 || ext.IdentifiedCrimes[0].Confidence != 0.95 {
		t.Fatalf("model crimes: %+v", ext.IdentifiedCrimes)
	}
	if ext.Query2docEnhanced == "" || ext.HydeHypothetical == "" {
		t.Fatalf("enhanced texts should carry model output")
	}
}

func TestRephraseFiltersAndBounds(t *testing.T) {
	q := "盗窃怎么判"
	gen := &scriptedGen{byPurpose: map[string]string{
		"rephrase": `{"phrasings": ["", "盗窃怎么判", "盗窃罪的量刑标准", "盗窃罪判几年", "盗窃罪的法律后果", "盗窃罪的处罚"]}`,
	}}
	u := testUnderstander(t, gen)
	got := u.Rephrase(context.Background(), q)
	if len(got) != 3 {
		t.Fatalf("want 3 phrasings, got %v", got)
	}
	for _, p := range got {
		if p == "" || p == q {
			t.Fatalf("empty or duplicate phrasing survived: %v", got)
		}
	}
}

func TestRephraseDisabled(t *testing.T) {
	u := testUnderstander(t, &scriptedGen{})
	if got := u.Rephrase(context.Background(), "盗窃怎么判"); got != nil {
		t.Fatalf("disabled generator should yield nil, got %v", got)
	}
}

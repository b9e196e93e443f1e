package fusion

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/llm"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
	"github.com/yungbote/lawgraph-backend/internal/query"
	"github.com/yungbote/lawgraph-backend/internal/search"
)

const (
	rrfConstant   = 60.0
	scoreLambda   = 0.3
	finalTopK     = 10
	groundingTopK = 5
)

// RankedDoc is one fused result with its provenance.
type RankedDoc struct {
	DocID      string           `json:"doc_id"`
	Score      float64          `json:"score"`
	AvgScore   float64          `json:"avg_score"`
	Sources    []string         `json:"sources"`
	Confidence float64          `json:"confidence"`
	Document   *domain.Document `json:"document,omitempty"`
}

// Output is the fused ranking plus the grounded answer.
type Output struct {
	Articles     []RankedDoc `json:"articles"`
	Cases        []RankedDoc `json:"cases"`
	FinalAnswer  string      `json:"final_answer"`
	AnswerSource string      `json:"answer_source"` // "llm" or "template"
}

// Engine merges strategy outputs with weighted reciprocal rank fusion and
// grounds the final answer on the top documents.
type Engine struct {
	log  *logger.Logger
	gen  llm.Generator
	docs map[string]*domain.Document
}

func NewEngine(log *logger.Logger, gen llm.Generator, articles, cases []*domain.Document) (*Engine, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if gen == nil {
		return nil, fmt.Errorf("generator required")
	}
	docs := make(map[string]*domain.Document, len(articles)+len(cases))
	for _, d := range articles {
		docs[d.ID] = d
	}
	for _, d := range cases {
		docs[d.ID] = d
	}
	return &Engine{log: log.With("service", "FusionEngine"), gen: gen, docs: docs}, nil
}

// Fuse combines the per-strategy rankings under the plan's weights.
// Articles and cases fuse independently. Strategies absent from results
// (errored or skipped) simply contribute nothing.
func (e *Engine) Fuse(ctx context.Context, originalQuery string, plan search.Plan, results map[string]search.Result) Output {
	out := Output{
		Articles: e.fusePartition(plan, results, func(r search.Result) []search.ScoredDoc { return r.Articles }),
		Cases:    e.fusePartition(plan, results, func(r search.Result) []search.ScoredDoc { return r.Cases }),
	}
	out.FinalAnswer, out.AnswerSource = e.answer(ctx, originalQuery, out)
	return out
}

func (e *Engine) fusePartition(plan search.Plan, results map[string]search.Result, pick func(search.Result) []search.ScoredDoc) []RankedDoc {
	type agg struct {
		rrf      float64
		scoreSum float64
		sources  []string
	}
	byDoc := map[string]*agg{}

	for _, name := range plan.Strategies {
		res, ok := results[name]
		if !ok {
			continue
		}
		w := plan.Weights[name]
		for i, doc := range pick(res) {
			a := byDoc[doc.DocID]
			if a == nil {
				a = &agg{}
				byDoc[doc.DocID] = a
			}
			rank := float64(i + 1)
			a.rrf += w / (rank + rrfConstant)
			a.scoreSum += doc.Score
			a.sources = append(a.sources, name)
		}
	}

	total := len(plan.Strategies)
	ranked := make([]RankedDoc, 0, len(byDoc))
	for id, a := range byDoc {
		n := float64(len(a.sources))
		conf := n / float64(total)
		if conf > 1 {
			conf = 1
		}
		ranked = append(ranked, RankedDoc{
			DocID:      id,
			Score:      a.rrf + scoreLambda*(a.scoreSum/n),
			AvgScore:   a.scoreSum / n,
			Sources:    a.sources,
			Confidence: conf,
			Document:   e.docs[id],
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if len(ranked[i].Sources) != len(ranked[j].Sources) {
			return len(ranked[i].Sources) > len(ranked[j].Sources)
		}
		if ranked[i].AvgScore != ranked[j].AvgScore {
			return ranked[i].AvgScore > ranked[j].AvgScore
		}
		return ranked[i].DocID < ranked[j].DocID
	})
	if len(ranked) > finalTopK {
		ranked = ranked[:finalTopK]
	}
	return ranked
}

// answer grounds the response on the top documents. With the model down
// the answer degrades to a deterministic template from the top article.
func (e *Engine) answer(ctx context.Context, originalQuery string, out Output) (string, string) {
	if llm.EnabledIn(ctx, e.gen) {
		resp, err := e.gen.Generate(ctx, llm.Request{
			Purpose:     "answer",
			System:      query.AnswerSystem(),
			Prompt:      query.AnswerPrompt(originalQuery, e.renderDocs(out.Articles), e.renderDocs(out.Cases)),
			Temperature: 0.2,
			MaxTokens:   1200,
		})
		if err == nil && resp.Text != "" {
			return resp.Text, "llm"
		}
		if err != nil {
			e.log.Warn("grounded answer generation failed, using template", "error", err)
		}
	}
	return e.templateAnswer(out), "template"
}

func (e *Engine) renderDocs(ranked []RankedDoc) string {
	var b strings.Builder
	for i, r := range ranked {
		if i == groundingTopK {
			break
		}
		doc := r.Document
		if doc == nil {
			continue
		}
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, doc.Title, doc.ContentPreview(400))
	}
	return strings.TrimSpace(b.String())
}

func (e *Engine) templateAnswer(out Output) string {
	if len(out.Articles) == 0 || out.Articles[0].Document == nil {
		return "未检索到相关刑法条文,请调整问题后重试。以上内容仅供参考,具体请咨询专业律师。"
	}
	top := out.Articles[0].Document
	var b strings.Builder
	fmt.Fprintf(&b, "根据检索结果,最相关的条文是%s:\n%s", top.Title, top.ContentPreview(300))
	if len(out.Cases) > 0 && out.Cases[0].Document != nil {
		fmt.Fprintf(&b, "\n\n相关案例:%s", out.Cases[0].Document.Title)
	}
	b.WriteString("\n\n以上内容仅供参考,具体请咨询专业律师。")
	return b.String()
}

package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/lawgraph-backend/internal/bm25"
	"github.com/yungbote/lawgraph-backend/internal/kg"
	"github.com/yungbote/lawgraph-backend/internal/llm"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

const (
	maxKeywords    = 10
	maxCrimes      = 5
	maxRephrasings = 3
)

// Classification is the stage-1 verdict on a query.
type Classification struct {
	IsCriminalLaw bool    `json:"is_criminal_law"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning"`
	Method        string  `json:"method"` // "llm" or "rule"
}

type CrimeMention struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Extraction is the stage-2 structured signal bundle consumed by the
// router and the strategies.
type Extraction struct {
	IdentifiedCrimes  []CrimeMention         `json:"identified_crimes"`
	BM25Keywords      []bm25.WeightedKeyword `json:"bm25_keywords"`
	Query2docEnhanced string                 `json:"query2doc_enhanced"`
	HydeHypothetical  string                 `json:"hyde_hypothetical"`
	Entities          kg.Entities            `json:"-"`
}

// Understander runs classification and extraction. Every model-backed
// sub-operation has a deterministic fallback so the pipeline works with
// the generator disabled.
type Understander struct {
	log   *logger.Logger
	gen   llm.Generator
	index *bm25.Index
	graph *kg.Graph
}

func NewUnderstander(log *logger.Logger, gen llm.Generator, index *bm25.Index, graph *kg.Graph) (*Understander, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if gen == nil || index == nil || graph == nil {
		return nil, fmt.Errorf("generator, index, and graph required")
	}
	return &Understander{
		log:   log.With("service", "QueryUnderstanding"),
		gen:   gen,
		index: index,
		graph: graph,
	}, nil
}

// Classify asks the model whether the query is criminal-law relevant. On
// model failure it falls back to entity matching against the graph:
// is_criminal_law = any match, confidence = min(1, 0.4 + 0.2·matches).
func (u *Understander) Classify(ctx context.Context, q string) Classification {
	if llm.EnabledIn(ctx, u.gen) {
		var out struct {
			IsCriminalLaw bool    `json:"is_criminal_law"`
			Confidence    float64 `json:"confidence"`
			Reasoning     string  `json:"reasoning"`
		}
		err := u.gen.GenerateJSON(ctx, llm.Request{
			Purpose:     "classify",
			System:      classifySystem,
			Prompt:      fmt.Sprintf(classifyPromptTmpl, q),
			Temperature: 0,
			MaxTokens:   200,
		}, &out)
		if err == nil {
			return Classification{
				IsCriminalLaw: out.IsCriminalLaw,
				Confidence:    clamp01(out.Confidence),
				Reasoning:     strings.TrimSpace(out.Reasoning),
				Method:        "llm",
			}
		}
		u.log.Warn("llm classification failed, using rule fallback", "error", err)
	}
	return u.classifyByRule(q)
}

func (u *Understander) classifyByRule(q string) Classification {
	ent := u.graph.MatchEntities(q)
	matches := len(ent.Crimes) + len(ent.Articles)
	conf := 0.4 + 0.2*float64(matches)
	if conf > 1 {
		conf = 1
	}
	c := Classification{
		IsCriminalLaw: matches > 0,
		Confidence:    conf,
		Method:        "rule",
	}
	if matches > 0 {
		c.Reasoning = fmt.Sprintf("命中%d个图谱实体", matches)
	} else {
		c.Reasoning = "未命中任何罪名或条文引用"
		c.Confidence = 0.4
	}
	return c
}

// Extract builds the full signal bundle. Sub-operations degrade
// independently: crimes fall back to graph matching, keywords never need
// the model, and the enhanced texts degrade to empty strings.
func (u *Understander) Extract(ctx context.Context, q string) Extraction {
	ext := Extraction{
		BM25Keywords: u.index.TopKeywords(q, maxKeywords),
		Entities:     u.graph.MatchEntities(q),
	}
	ext.IdentifiedCrimes = u.identifyCrimes(ctx, q, ext.Entities)
	ext.Query2docEnhanced = u.generateText(ctx, "query2doc", fmt.Sprintf(query2docPromptTmpl, q), 300)
	ext.HydeHypothetical = u.generateText(ctx, "hyde", fmt.Sprintf(hydePromptTmpl, q), 500)
	return ext
}

func (u *Understander) identifyCrimes(ctx context.Context, q string, ent kg.Entities) []CrimeMention {
	if llm.EnabledIn(ctx, u.gen) {
		var out struct {
			Crimes []CrimeMention `json:"crimes"`
		}
		err := u.gen.GenerateJSON(ctx, llm.Request{
			Purpose:     "extract",
			System:      extractSystem,
			Prompt:      fmt.Sprintf(extractPromptTmpl, q),
			Temperature: 0,
			MaxTokens:   400,
		}, &out)
		if err == nil {
			crimes := make([]CrimeMention, 0, len(out.Crimes))
			for _, c := range out.Crimes {
				c.Name = strings.TrimSpace(c.Name)
				if c.Name == "" {
					continue
				}
				c.Confidence = clamp01(c.Confidence)
				crimes = append(crimes, c)
				if len(crimes) == maxCrimes {
					break
				}
			}
			return crimes
		}
		u.log.Warn("llm crime extraction failed, using graph fallback", "error", err)
	}

	crimes := make([]CrimeMention, 0, len(ent.Crimes))
	for _, name := range ent.Crimes {
		crimes = append(crimes, CrimeMention{Name: name, Confidence: 0.6, Reasoning: "罪名文本匹配"})
		if len(crimes) == maxCrimes {
			break
		}
	}
	return crimes
}

func (u *Understander) generateText(ctx context.Context, purpose, prompt string, maxTokens int) string {
	if !llm.EnabledIn(ctx, u.gen) {
		return ""
	}
	resp, err := u.gen.Generate(ctx, llm.Request{
		Purpose:     purpose,
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		u.log.Warn("llm enhancement failed", "purpose", purpose, "error", err)
		return ""
	}
	return strings.TrimSpace(resp.Text)
}

// Rephrase returns up to three alternative legal phrasings of the query
// for the llm_enhanced strategy, or nil when the model cannot provide any.
func (u *Understander) Rephrase(ctx context.Context, q string) []string {
	if !llm.EnabledIn(ctx, u.gen) {
		return nil
	}
	var out struct {
		Phrasings []string `json:"phrasings"`
	}
	err := u.gen.GenerateJSON(ctx, llm.Request{
		Purpose:     "rephrase",
		System:      extractSystem,
		Prompt:      fmt.Sprintf(rephrasePromptTmpl, q),
		Temperature: 0.5,
		MaxTokens:   300,
	}, &out)
	if err != nil {
		u.log.Warn("llm rephrase failed", "error", err)
		return nil
	}
	phrasings := make([]string, 0, maxRephrasings)
	for _, p := range out.Phrasings {
		p = strings.TrimSpace(p)
		if p == "" || p == q {
			continue
		}
		phrasings = append(phrasings, p)
		if len(phrasings) == maxRephrasings {
			break
		}
	}
	return phrasings
}

// AnswerSystem and AnswerPrompt expose the grounded-answer prompt to the
// fusion engine.
func AnswerSystem() string { return answerSystem }

func AnswerPrompt(q, articles, cases string) string {
	return fmt.Sprintf(answerPromptTmpl, q, articles, cases)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

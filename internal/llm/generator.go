package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/lawgraph-backend/internal/data/calllog"
	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/platform/ctxutil"
	"github.com/yungbote/lawgraph-backend/internal/platform/envutil"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

// Request is one text generation call. Purpose tags the call in the
// accounting log (classify, query2doc, hyde, rephrase, answer).
type Request struct {
	Purpose     string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

type Response struct {
	Text      string `json:"text"`
	Model     string `json:"model"`
	Provider  string `json:"provider"`
	TokensIn  int    `json:"tokens_in"`
	TokensOut int    `json:"tokens_out"`
	Cached    bool   `json:"cached"`
}

// Usage is the point-in-time snapshot served by the usage endpoint.
type Usage struct {
	Enabled      bool               `json:"enabled"`
	Model        string             `json:"model,omitempty"`
	UsedTokens   int64              `json:"used_tokens"`
	BudgetTokens int64              `json:"budget_tokens"`
	CacheEntries int                `json:"cache_entries"`
	Today        calllog.DailyUsage `json:"today"`
}

// Generator is the model-calling surface the pipeline depends on. When no
// provider is configured Enabled reports false and every strategy that
// needs a model degrades per its own rules.
type Generator interface {
	Enabled() bool
	Generate(ctx context.Context, req Request) (Response, error)
	GenerateJSON(ctx context.Context, req Request, out any) error
	Usage(ctx context.Context) (Usage, error)
}

type generator struct {
	log      *logger.Logger
	provider provider
	cache    *responseCache
	budget   *budgetGuard
	store    calllog.Store

	costPerKIn  float64
	costPerKOut float64
}

// NewGenerator wires the provider chain from LLM_PRIMARY_* / LLM_FALLBACK_*
// env (with LLM_PROVIDER, LLM_FALLBACK_PROVIDER, LLM_API_KEY, LLM_MODEL,
// and LLM_DAILY_BUDGET honored as the short surface), the response cache,
// and the daily budget. A missing primary yields a disabled generator, not
// an error; startup proceeds and model-dependent strategies skip.
func NewGenerator(ctx context.Context, log *logger.Logger, store calllog.Store) (Generator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	g := &generator{log: log.With("service", "LLMGenerator"), store: store}

	primary, err := newHTTPProvider(log, "primary", "LLM_PRIMARY", "LLM_PROVIDER")
	if err != nil {
		return nil, err
	}
	if primary == nil {
		log.Info("no llm provider configured, model strategies disabled")
		return g, nil
	}
	fallback, err := newHTTPProvider(log, "fallback", "LLM_FALLBACK", "LLM_FALLBACK_PROVIDER")
	if err != nil {
		return nil, err
	}
	if fallback != nil {
		g.provider = newFailoverProvider(log, primary, fallback)
	} else {
		g.provider = primary
	}

	g.cache, err = newResponseCache(envutil.Int("LLM_CACHE_SIZE", 512))
	if err != nil {
		return nil, err
	}
	g.budget = newBudgetGuard(ctx, log, store,
		int64(envutil.Int("LLM_DAILY_TOKEN_BUDGET", envutil.Int("LLM_DAILY_BUDGET", 0))))
	g.costPerKIn = envutil.Float("LLM_COST_PER_1K_INPUT_USD", 0)
	g.costPerKOut = envutil.Float("LLM_COST_PER_1K_OUTPUT_USD", 0)
	return g, nil
}

func (g *generator) Enabled() bool { return g.provider != nil }

func (g *generator) Generate(ctx context.Context, req Request) (Response, error) {
	ctx = ctxutil.Default(ctx)
	if g.provider == nil || disabled(ctx) {
		return Response{}, domain.ErrProviderUnavailable
	}
	if resp, ok := g.cache.Get(g.provider.Model(), req); ok {
		g.record(ctx, req, resp, 0, nil)
		return resp, nil
	}
	if err := g.budget.Allow(); err != nil {
		return Response{}, err
	}

	start := time.Now()
	resp, err := g.provider.Generate(ctx, req)
	latency := time.Since(start)
	if err != nil {
		g.record(ctx, req, Response{Provider: g.provider.Name(), Model: g.provider.Model()}, latency, err)
		return Response{}, err
	}

	g.budget.Commit(int64(resp.TokensIn + resp.TokensOut))
	g.cache.Put(g.provider.Model(), req, resp)
	g.record(ctx, req, resp, latency, nil)
	return resp, nil
}

// GenerateJSON asks for a JSON object and decodes it, tolerating markdown
// code fences around the payload.
func (g *generator) GenerateJSON(ctx context.Context, req Request, out any) error {
	resp, err := g.Generate(ctx, req)
	if err != nil {
		return err
	}
	text := stripCodeFence(resp.Text)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

func (g *generator) Usage(ctx context.Context) (Usage, error) {
	u := Usage{Enabled: g.provider != nil}
	if g.provider != nil {
		u.Model = g.provider.Model()
	}
	if g.budget != nil {
		u.UsedTokens, u.BudgetTokens = g.budget.Usage()
	}
	if g.cache != nil {
		u.CacheEntries = g.cache.Len()
	}
	if g.store != nil {
		today, err := g.store.UsageForDay(ctx, time.Now())
		if err != nil {
			return u, err
		}
		u.Today = today
	}
	return u, nil
}

func (g *generator) record(ctx context.Context, req Request, resp Response, latency time.Duration, callErr error) {
	if g.store == nil {
		return
	}
	var requestID string
	if td := ctxutil.GetTraceData(ctx); td != nil {
		requestID = td.RequestID
	}
	entry := &calllog.Call{
		RequestID:   requestID,
		Purpose:     req.Purpose,
		Provider:    resp.Provider,
		Model:       resp.Model,
		PromptChars: len(req.System) + len(req.Prompt),
		TokensIn:    resp.TokensIn,
		TokensOut:   resp.TokensOut,
		CostUSD:     g.estimateCost(resp.TokensIn, resp.TokensOut),
		Cached:      resp.Cached,
		Success:     callErr == nil,
		LatencyMS:   latency.Milliseconds(),
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	if err := g.store.Record(ctx, entry); err != nil {
		return
	}
}

// estimateCost converts token counts to USD per the configured per-1k
// rates. Zero rates yield a zero estimate.
func (g *generator) estimateCost(tokensIn, tokensOut int) float64 {
	return (float64(tokensIn)*g.costPerKIn + float64(tokensOut)*g.costPerKOut) / 1000
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

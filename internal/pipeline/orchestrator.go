package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/fusion"
	"github.com/yungbote/lawgraph-backend/internal/platform/envutil"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
	"github.com/yungbote/lawgraph-backend/internal/query"
	"github.com/yungbote/lawgraph-backend/internal/search"
)

// EventSink receives pipeline progress events. Implementations must not
// block; the hub drops on full buffers.
type EventSink interface {
	Publish(requestID string, ev domain.PipelineEvent)
}

// NopSink drops every event, used when no realtime channel is wired.
type NopSink struct{}

func (NopSink) Publish(string, domain.PipelineEvent) {}

// Outcome is the full result of one pipeline run.
type Outcome struct {
	Fused fusion.Output
	Trace *domain.QueryTrace
}

type Config struct {
	GlobalTimeout   time.Duration
	StrategyTimeout time.Duration
	MaxConcurrent   int
}

func ConfigFromEnv() Config {
	return Config{
		GlobalTimeout:   envutil.Seconds("PIPELINE_TIMEOUT_SECONDS", 15*time.Second),
		StrategyTimeout: envutil.Seconds("STRATEGY_TIMEOUT_SECONDS", 8*time.Second),
		MaxConcurrent:   envutil.Int("PIPELINE_MAX_CONCURRENT", 8),
	}
}

// Orchestrator runs the five stages: classification, extraction, routing,
// concurrent searches, fusion. Stages 1-3 are sequential; stage 4 fans
// out under the global deadline; fusion works with whatever completed.
type Orchestrator struct {
	log          *logger.Logger
	understander *query.Understander
	router       *search.Router
	registry     *search.Registry
	engine       *fusion.Engine
	sink         EventSink
	cfg          Config
}

func NewOrchestrator(
	log *logger.Logger,
	understander *query.Understander,
	router *search.Router,
	registry *search.Registry,
	engine *fusion.Engine,
	sink EventSink,
	cfg Config,
) (*Orchestrator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if understander == nil || router == nil || registry == nil || engine == nil {
		return nil, fmt.Errorf("all pipeline stages required")
	}
	if sink == nil {
		sink = NopSink{}
	}
	if cfg.GlobalTimeout <= 0 {
		cfg.GlobalTimeout = 15 * time.Second
	}
	if cfg.StrategyTimeout <= 0 {
		cfg.StrategyTimeout = 8 * time.Second
	}
	if cfg.MaxConcurrent <= 0 || cfg.MaxConcurrent > 8 {
		cfg.MaxConcurrent = 8
	}
	return &Orchestrator{
		log:          log.With("service", "Orchestrator"),
		understander: understander,
		router:       router,
		registry:     registry,
		engine:       engine,
		sink:         sink,
		cfg:          cfg,
	}, nil
}

func (o *Orchestrator) Run(ctx context.Context, requestID, q string) (*Outcome, error) {
	if q == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.GlobalTimeout)
	defer cancel()

	trace := domain.NewQueryTrace(requestID, q)
	start := time.Now()

	// Stage 1: classification.
	cls := runStage(o, ctx, trace, 1, "classification", &trace.Classification, map[string]any{
		"query": q,
	}, func() (map[string]any, query.Classification) {
		c := o.understander.Classify(ctx, q)
		return map[string]any{
			"is_criminal_law": c.IsCriminalLaw,
			"confidence":      c.Confidence,
			"method":          c.Method,
		}, c
	})

	// Stage 2: extraction.
	ext := runStage(o, ctx, trace, 2, "extraction", &trace.Extraction, map[string]any{
		"query":           q,
		"is_criminal_law": cls.IsCriminalLaw,
	}, func() (map[string]any, query.Extraction) {
		e := o.understander.Extract(ctx, q)
		return map[string]any{
			"crimes":        len(e.IdentifiedCrimes),
			"keywords":      len(e.BM25Keywords),
			"has_query2doc": e.Query2docEnhanced != "",
			"has_hyde":      e.HydeHypothetical != "",
		}, e
	})

	// Stage 3: routing.
	plan := runStage(o, ctx, trace, 3, "routing", &trace.Routing, map[string]any{
		"confidence": cls.Confidence,
		"crimes":     len(ext.IdentifiedCrimes),
		"keywords":   len(ext.BM25Keywords),
	}, func() (map[string]any, search.Plan) {
		p := o.router.Route(ctx, cls, ext)
		return map[string]any{"strategies": p.Strategies, "weights": p.Weights}, p
	})
	trace.SelectedPaths = plan.Strategies
	for _, name := range search.AllStrategies {
		trace.Searches[name] = &domain.ModuleTrace{Strategy: name, Status: domain.StagePending}
	}
	for _, name := range unselected(plan.Strategies) {
		trace.Searches[name].Status = domain.StageSkipped
	}

	// Stage 4: concurrent searches.
	results := o.runSearches(ctx, trace, search.Input{Query: q, Classification: cls, Extraction: ext}, plan)

	if _, ok := results[search.StrategyBasicSemantic]; !ok {
		trace.Fusion.Status = domain.StageError
		trace.Fusion.ErrorMessage = "basic_semantic unavailable"
		return &Outcome{Trace: trace}, fmt.Errorf("%w: basic_semantic did not complete", domain.ErrPartialResultsUnavailable)
	}
	// Partial means deadline truncation; a strategy failing on its own is
	// an ordinary degraded result.
	trace.Partial = deadlineTruncated(trace, plan)

	// Stage 5: fusion. Runs outside the search deadline so a full fan-out
	// timeout still produces an answer from what finished.
	fuseStart := time.Now()
	trace.Fusion.Status = domain.StageRunning
	trace.Fusion.InputData = map[string]any{
		"query":      q,
		"strategies": len(results),
	}
	o.emitStage(requestID, domain.EventStageStarted, 5, "fusion", trace.Fusion)
	fused := o.engine.Fuse(context.WithoutCancel(ctx), q, plan, results)
	trace.Fusion.Status = domain.StageSuccess
	trace.Fusion.ProcessingTimeMS = time.Since(fuseStart).Milliseconds()
	trace.Fusion.OutputData = map[string]any{
		"articles": len(fused.Articles),
		"cases":    len(fused.Cases),
		"answer":   fused.AnswerSource,
	}
	o.emitStage(requestID, domain.EventStageCompleted, 5, "fusion", trace.Fusion)

	o.sink.Publish(requestID, domain.PipelineEvent{
		Type:        domain.EventSearchCompleted,
		RequestID:   requestID,
		TotalTimeMS: time.Since(start).Milliseconds(),
		Summary: fmt.Sprintf("%d articles, %d cases via %d strategies",
			len(fused.Articles), len(fused.Cases), len(results)),
	})
	return &Outcome{Fused: fused, Trace: trace}, nil
}

// runStage executes one sequential stage, updating its trace slot and
// emitting start/complete events.
func runStage[T any](o *Orchestrator, ctx context.Context, trace *domain.QueryTrace, number int, name string, slot *domain.StageTrace, input map[string]any, fn func() (map[string]any, T)) T {
	slot.Status = domain.StageRunning
	slot.InputData = input
	o.emitStage(trace.RequestID, domain.EventStageStarted, number, name, *slot)

	start := time.Now()
	output, value := fn()

	slot.ProcessingTimeMS = time.Since(start).Milliseconds()
	slot.OutputData = output
	if err := ctx.Err(); err != nil {
		slot.Status = domain.StageError
		slot.ErrorMessage = err.Error()
	} else {
		slot.Status = domain.StageSuccess
	}
	o.emitStage(trace.RequestID, domain.EventStageCompleted, number, name, *slot)
	return value
}

func (o *Orchestrator) emitStage(requestID string, t domain.EventType, number int, name string, st domain.StageTrace) {
	o.sink.Publish(requestID, domain.PipelineEvent{
		Type:             t,
		RequestID:        requestID,
		StageNumber:      number,
		StageName:        name,
		Status:           string(st.Status),
		ProcessingTimeMS: st.ProcessingTimeMS,
		ErrorMessage:     st.ErrorMessage,
	})
}

// runSearches fans out the selected strategies. Each runs under its own
// timeout inside the global deadline; failures and timeouts mark the
// module trace and are excluded from the returned map.
func (o *Orchestrator) runSearches(ctx context.Context, trace *domain.QueryTrace, in search.Input, plan search.Plan) map[string]search.Result {
	var mu sync.Mutex
	results := make(map[string]search.Result, len(plan.Strategies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrent)

	for _, name := range plan.Strategies {
		mt := trace.Searches[name]
		g.Go(func() error {
			mt.Status = domain.StageRunning
			o.sink.Publish(trace.RequestID, domain.PipelineEvent{
				Type:       domain.EventModuleStarted,
				RequestID:  trace.RequestID,
				ModuleName: name,
			})

			searcher, ok := o.registry.Get(name)
			start := time.Now()
			var res search.Result
			var err error
			if !ok {
				err = fmt.Errorf("strategy %q not registered", name)
			} else {
				sctx, cancel := context.WithTimeout(gctx, o.cfg.StrategyTimeout)
				res, err = searcher.Execute(sctx, in)
				cancel()
			}
			mt.ProcessingTimeMS = time.Since(start).Milliseconds()

			if err != nil {
				mt.Status = domain.StageError
				if errors.Is(err, context.DeadlineExceeded) {
					mt.ErrorMessage = "timeout"
				} else {
					mt.ErrorMessage = err.Error()
				}
				o.log.Warn("strategy failed", "strategy", name, "error", err)
			} else {
				mt.Status = domain.StageSuccess
				mt.ArticleCount = len(res.Articles)
				mt.CaseCount = len(res.Cases)
				mt.DebugInfo = res.Meta
				mu.Lock()
				results[name] = res
				mu.Unlock()
			}

			o.sink.Publish(trace.RequestID, domain.PipelineEvent{
				Type:             domain.EventModuleCompleted,
				RequestID:        trace.RequestID,
				ModuleName:       name,
				Status:           string(mt.Status),
				ProcessingTimeMS: mt.ProcessingTimeMS,
				ResultsCount:     mt.ArticleCount + mt.CaseCount,
				ErrorMessage:     mt.ErrorMessage,
			})
			// Strategy failures never abort the fan-out.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// deadlineTruncated reports whether any selected strategy was cut off by a
// deadline rather than failing on its own.
func deadlineTruncated(trace *domain.QueryTrace, plan search.Plan) bool {
	for _, name := range plan.Strategies {
		mt := trace.Searches[name]
		if mt != nil && mt.Status == domain.StageError && mt.ErrorMessage == "timeout" {
			return true
		}
	}
	return false
}

func unselected(selected []string) []string {
	in := make(map[string]bool, len(selected))
	for _, s := range selected {
		in[s] = true
	}
	var out []string
	for _, s := range search.AllStrategies {
		if !in[s] {
			out = append(out, s)
		}
	}
	return out
}

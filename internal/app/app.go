package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/yungbote/lawgraph-backend/internal/artifacts"
	"github.com/yungbote/lawgraph-backend/internal/bm25"
	"github.com/yungbote/lawgraph-backend/internal/data/calllog"
	"github.com/yungbote/lawgraph-backend/internal/embedding"
	"github.com/yungbote/lawgraph-backend/internal/fusion"
	lghttp "github.com/yungbote/lawgraph-backend/internal/http"
	httpH "github.com/yungbote/lawgraph-backend/internal/http/handlers"
	"github.com/yungbote/lawgraph-backend/internal/kg"
	"github.com/yungbote/lawgraph-backend/internal/llm"
	"github.com/yungbote/lawgraph-backend/internal/observability"
	"github.com/yungbote/lawgraph-backend/internal/pagecache"
	"github.com/yungbote/lawgraph-backend/internal/pipeline"
	"github.com/yungbote/lawgraph-backend/internal/platform/envutil"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
	"github.com/yungbote/lawgraph-backend/internal/platform/neo4jmirror"
	"github.com/yungbote/lawgraph-backend/internal/query"
	"github.com/yungbote/lawgraph-backend/internal/search"
	"github.com/yungbote/lawgraph-backend/internal/sse"
	"github.com/yungbote/lawgraph-backend/internal/vectorstore"
)

// App owns every component of the service. New wires the full graph;
// Run serves until the context ends.
type App struct {
	Log    *logger.Logger
	Cfg    Config
	Bundle *artifacts.Bundle
	Graph  *kg.Graph
	Hub    *sse.Hub
	Server *lghttp.Server

	bus      sse.Bus
	fanout   *sse.FanoutSink
	mirror   *neo4jmirror.Mirror
	otelStop func(context.Context) error
	ready    atomic.Bool
}

func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Log: log, Cfg: cfg}
	a.otelStop = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "lawgraph-backend",
		Environment: envutil.Str("ENVIRONMENT", "development"),
		Version:     envutil.Str("SERVICE_VERSION", "dev"),
	})

	loader, err := artifacts.NewLoader(log, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	bundle, err := loader.Load()
	if err != nil {
		return nil, err
	}
	a.Bundle = bundle

	tokenizer, err := bm25.NewTokenizer(cfg.Stopwords)
	if err != nil {
		return nil, fmt.Errorf("init tokenizer: %w", err)
	}
	index, err := bm25.NewIndex(log, tokenizer, bundle.Articles, bundle.Cases)
	if err != nil {
		return nil, err
	}
	store, err := vectorstore.New(log, bundle.ArticleVectors, bundle.CaseVectors)
	if err != nil {
		return nil, err
	}
	graph, err := kg.Build(log, bundle)
	if err != nil {
		return nil, err
	}
	a.Graph = graph

	provider, err := embedding.NewFromEnv(log, store.Dim())
	if err != nil {
		return nil, err
	}

	calls, err := calllog.Open(log)
	if err != nil {
		return nil, err
	}
	gen, err := llm.NewGenerator(ctx, log, calls)
	if err != nil {
		return nil, err
	}

	understander, err := query.NewUnderstander(log, gen, index, graph)
	if err != nil {
		return nil, err
	}
	router, err := search.NewRouter(log, cfg.StrategyWeights, func(ctx context.Context) bool {
		return llm.EnabledIn(ctx, gen)
	})
	if err != nil {
		return nil, err
	}
	registry, err := search.NewRegistry(log, provider, store, index, graph, understander)
	if err != nil {
		return nil, err
	}
	engine, err := fusion.NewEngine(log, gen, bundle.Articles, bundle.Cases)
	if err != nil {
		return nil, err
	}

	hub, err := sse.NewHub(log)
	if err != nil {
		return nil, err
	}
	a.Hub = hub

	var sink pipeline.EventSink = hub
	if envutil.Str("REDIS_ADDR", "") != "" {
		bus, err := sse.NewRedisBus(log)
		if err != nil {
			return nil, err
		}
		if err := bus.StartForwarder(ctx, hub.Publish); err != nil {
			return nil, err
		}
		a.bus = bus
		a.fanout = sse.NewFanoutSink(log, hub, bus)
		sink = a.fanout
	}

	orch, err := pipeline.NewOrchestrator(log, understander, router, registry, engine, sink, pipeline.ConfigFromEnv())
	if err != nil {
		return nil, err
	}

	var cache pagecache.Cache
	if strings.EqualFold(cfg.PageCacheBackend, "redis") {
		cache, err = pagecache.NewRedis(log, cfg.PageCacheTTL)
		if err != nil {
			return nil, err
		}
	} else {
		cache = pagecache.NewMemory(cfg.PageCacheTTL)
	}

	searchHandler, err := httpH.NewSearchHandler(log, orch, cache, a.ready.Load)
	if err != nil {
		return nil, err
	}
	kgHandler, err := httpH.NewKGHandler(log, graph)
	if err != nil {
		return nil, err
	}
	eventsHandler, err := httpH.NewEventsHandler(log, hub)
	if err != nil {
		return nil, err
	}
	healthHandler, err := httpH.NewHealthHandler(log, gen, a.ready.Load, func() map[string]any {
		return map[string]any{
			"articles":     len(bundle.Articles),
			"cases":        len(bundle.Cases),
			"vector_dim":   store.Dim(),
			"kg_crimes":    len(graph.Crimes()),
			"embed_source": provider.Name(),
		}
	})
	if err != nil {
		return nil, err
	}

	a.Server = lghttp.NewServer(lghttp.RouterConfig{
		Log:           log,
		SearchHandler: searchHandler,
		KGHandler:     kgHandler,
		EventsHandler: eventsHandler,
		HealthHandler: healthHandler,
	})

	// Optional graph mirror for external tooling.
	mirror, err := neo4jmirror.NewFromEnv(log)
	if err != nil {
		log.Warn("neo4j mirror unavailable", "error", err)
	} else if mirror != nil {
		a.mirror = mirror
		if err := mirror.Export(ctx, graph); err != nil {
			log.Warn("neo4j mirror export failed", "error", err)
		}
	}

	a.ready.Store(true)
	log.Info("application wired",
		"listen_addr", cfg.ListenAddr,
		"articles", len(bundle.Articles),
		"cases", len(bundle.Cases),
		"llm_enabled", gen.Enabled(),
	)
	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Run(a.Cfg.ListenAddr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return a.Close(context.Background())
	}
}

func (a *App) Close(ctx context.Context) error {
	var first error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	if a.fanout != nil {
		a.fanout.Close()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil && first == nil {
			first = err
		}
	}
	if a.mirror != nil {
		if err := a.mirror.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	if a.otelStop != nil {
		if err := a.otelStop(ctx); err != nil && first == nil {
			first = err
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
	return first
}

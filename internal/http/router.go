package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/lawgraph-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lawgraph-backend/internal/http/middleware"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	SearchHandler *httpH.SearchHandler
	KGHandler     *httpH.KGHandler
	EventsHandler *httpH.EventsHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.CORS())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(otelgin.Middleware("lawgraph-backend"))

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Live)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api/v1")
	{
		if cfg.SearchHandler != nil {
			api.POST("/search", cfg.SearchHandler.Search)
			api.POST("/search/load-more", cfg.SearchHandler.LoadMore)
		}
		if cfg.KGHandler != nil {
			kgGroup := api.Group("/kg")
			kgGroup.GET("/expand", cfg.KGHandler.Expand)
			kgGroup.GET("/related-articles/:crime", cfg.KGHandler.RelatedArticles)
			kgGroup.GET("/related-crimes/:article", cfg.KGHandler.RelatedCrimes)
			kgGroup.GET("/cases", cfg.KGHandler.Cases)
		}
		if cfg.EventsHandler != nil {
			api.GET("/events/:request_id", cfg.EventsHandler.Stream)
		}
		if cfg.HealthHandler != nil {
			api.GET("/llm/usage", cfg.HealthHandler.LLMUsage)
		}
	}

	return r
}

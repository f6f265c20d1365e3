package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/quotebridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/quotebridge-backend/internal/http/middleware"
	"github.com/yungbote/quotebridge-backend/internal/observability"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AuthMiddleware *httpMW.AuthMiddleware

	ProposalHandler        *httpH.ProposalHandler
	NegotiationHandler     *httpH.NegotiationHandler
	BulkNegotiationHandler *httpH.BulkNegotiationHandler
	HealthHandler          *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireAuth())
	}

	// Proposals + versions
	if cfg.ProposalHandler != nil {
		api.POST("/projects/:id/proposals", cfg.ProposalHandler.Submit)
		api.GET("/proposals/:id/line-items", cfg.ProposalHandler.ListLineItems)
		api.GET("/proposals/:id/versions", cfg.ProposalHandler.ListVersions)
		api.GET("/proposals/:id/versions/compare", cfg.ProposalHandler.CompareVersions)
		api.GET("/proposals/:id/negotiations", cfg.ProposalHandler.ListNegotiations)
	}

	// Negotiation sessions
	if cfg.NegotiationHandler != nil {
		api.POST("/negotiations", cfg.NegotiationHandler.Create)
		api.GET("/negotiations/:id", cfg.NegotiationHandler.Get)
		api.POST("/negotiations/:id/response", cfg.NegotiationHandler.Respond)
		api.POST("/negotiations/:id/cancel", cfg.NegotiationHandler.Cancel)
		api.POST("/negotiations/:id/comments", cfg.NegotiationHandler.AddComment)
		api.POST("/negotiations/:id/attachments", cfg.NegotiationHandler.AddAttachment)
		api.GET("/negotiations/:id/attachments", cfg.NegotiationHandler.ListAttachments)
	}

	// Bulk
	if cfg.BulkNegotiationHandler != nil {
		api.POST("/projects/:id/bulk-negotiations", cfg.BulkNegotiationHandler.Create)
		api.GET("/projects/:id/bulk-negotiations", cfg.BulkNegotiationHandler.History)
	}

	return r
}

package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/quotebridge-backend/internal/http"
	httpH "github.com/yungbote/quotebridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/quotebridge-backend/internal/http/middleware"
	"github.com/yungbote/quotebridge-backend/internal/observability"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health          *httpH.HealthHandler
	Proposal        *httpH.ProposalHandler
	Negotiation     *httpH.NegotiationHandler
	BulkNegotiation *httpH.BulkNegotiationHandler
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	if cfg.JWTSecretKey == "" {
		log.Warn("JWT_SECRET_KEY is empty; every /api request will be rejected")
	}
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
	}
}

func wireHandlers(log *logger.Logger, svc Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:          httpH.NewHealthHandler(),
		Proposal:        httpH.NewProposalHandler(svc.Proposals, svc.Ledger, svc.Identity, svc.Versions, svc.Negotiations),
		Negotiation:     httpH.NewNegotiationHandler(svc.Negotiations, svc.Attachments),
		BulkNegotiation: httpH.NewBulkNegotiationHandler(svc.Bulk),
	}
}

func wireRouter(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:                    log,
		Metrics:                metrics,
		ServiceName:            cfg.ServiceName,
		AuthMiddleware:         middleware.Auth,
		ProposalHandler:        handlers.Proposal,
		NegotiationHandler:     handlers.Negotiation,
		BulkNegotiationHandler: handlers.BulkNegotiation,
		HealthHandler:          handlers.Health,
	})
}

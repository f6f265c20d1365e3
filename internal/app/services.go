package app

import (
	"gorm.io/gorm"

	dataagg "github.com/yungbote/quotebridge-backend/internal/data/aggregates"
	domainagg "github.com/yungbote/quotebridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/notify"
	"github.com/yungbote/quotebridge-backend/internal/observability"
	"github.com/yungbote/quotebridge-backend/internal/platform/gcp"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
	"github.com/yungbote/quotebridge-backend/internal/services"
)

type Aggregates struct {
	Sessions   domainagg.NegotiationSessionAggregate
	Versioning domainagg.VersioningAggregate
}

type Services struct {
	Identity     services.IdentityOracle
	Ledger       services.LineItemLedger
	Proposals    services.ProposalService
	Notifier     services.NegotiationNotifier
	Negotiations services.NegotiationService
	Bulk         services.BulkBatchCoordinator
	Versions     services.VersionComparer
	Attachments  services.AttachmentService

	Dispatcher *notify.Dispatcher
}

func wireAggregates(db *gorm.DB, log *logger.Logger, metrics *observability.Metrics, r Repos) Aggregates {
	log.Info("Wiring aggregates...")
	base := dataagg.BaseDeps{
		DB:    db,
		Log:   log,
		Hooks: dataagg.NewObservabilityHooks(metrics),
	}
	return Aggregates{
		Sessions: dataagg.NewNegotiationSessionAggregate(dataagg.NegotiationSessionAggregateDeps{
			Base:             base,
			Proposals:        r.Proposal,
			LineItems:        r.ProposalLineItem,
			Versions:         r.ProposalVersion,
			Sessions:         r.NegotiationSession,
			ItemNegotiations: r.LineItemNegotiation,
			Comments:         r.NegotiationComment,
			BatchMembers:     r.BulkBatchMember,
		}),
		Versioning: dataagg.NewVersioningAggregate(dataagg.VersioningAggregateDeps{
			Base:      base,
			Projects:  r.Project,
			Proposals: r.Proposal,
			Versions:  r.ProposalVersion,
			Sessions:  r.NegotiationSession,
			LineItems: r.ProposalLineItem,
		}),
	}
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, metrics *observability.Metrics, r Repos, aggs Aggregates, sink notify.Sink, store gcp.AttachmentStore) Services {
	log.Info("Wiring services...")
	identity := services.NewIdentityOracle(log, r.Project, r.Proposal)
	notifier := services.NewNegotiationNotifier(log, r.Outbox)
	negotiations := services.NewNegotiationService(log, services.NegotiationServiceDeps{
		Sessions:         aggs.Sessions,
		Versioning:       aggs.Versioning,
		Identity:         identity,
		Notifier:         notifier,
		SessionRepo:      r.NegotiationSession,
		ItemNegotiations: r.LineItemNegotiation,
		Comments:         r.NegotiationComment,
	})

	out := Services{
		Identity:     identity,
		Ledger:       services.NewLineItemLedger(log, r.Proposal, r.ProposalVersion, r.ProposalLineItem),
		Proposals:    services.NewProposalService(log, aggs.Versioning),
		Notifier:     notifier,
		Negotiations: negotiations,
		Bulk: services.NewBulkBatchCoordinator(log, services.BulkBatchCoordinatorDeps{
			Identity:     identity,
			Negotiations: negotiations,
			Batches:      r.BulkBatch,
			Members:      r.BulkBatchMember,
			Proposals:    r.Proposal,
			Versions:     r.ProposalVersion,
			Concurrency:  cfg.BatchFanoutConcurrency,
		}),
		Versions: services.NewVersionComparer(log, identity, r.ProposalVersion, r.ProposalLineItem),
	}
	if store != nil {
		out.Attachments = services.NewAttachmentService(log, r.NegotiationSession, r.NegotiationAttachment, store, cfg.Attachments.URLTTL)
	}
	if sink != nil {
		out.Dispatcher = notify.NewDispatcher(log, db, r.Outbox, sink, metrics, notify.DispatcherConfig{
			MaxAttempts: cfg.Notify.MaxAttempts,
		})
	}
	return out
}

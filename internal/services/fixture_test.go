package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dataagg "github.com/yungbote/quotebridge-backend/internal/data/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/data/repos"
	repotest "github.com/yungbote/quotebridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/quotebridge-backend/internal/domain"
	domainagg "github.com/yungbote/quotebridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/domain/notify"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
)

type serviceFixture struct {
	db *gorm.DB

	identity     IdentityOracle
	negotiations *negotiationService
	bulk         BulkBatchCoordinator
	proposalsSvc ProposalService
	comparer     VersionComparer
	ledger       LineItemLedger

	// Raw aggregates drive a session into intermediate states without the service.
	sessionsAgg   domainagg.NegotiationSessionAggregate
	versioningAgg domainagg.VersioningAggregate

	proposalRepo repos.ProposalRepo
	versionRepo  repos.ProposalVersionRepo
	itemRepo     repos.ProposalLineItemRepo
	sessionRepo  repos.NegotiationSessionRepo
	linRepo      repos.LineItemNegotiationRepo
	commentRepo  repos.NegotiationCommentRepo
	attachRepo   repos.NegotiationAttachmentRepo
	batchRepo    repos.BulkBatchRepo
	memberRepo   repos.BulkBatchMemberRepo
	outboxRepo   repos.OutboxRepo
}

func newServiceFixture(t *testing.T, db *gorm.DB) *serviceFixture {
	t.Helper()
	log := repotest.Logger(t)
	f := &serviceFixture{
		db:           db,
		proposalRepo: repos.NewProposalRepo(db, log),
		versionRepo:  repos.NewProposalVersionRepo(db, log),
		itemRepo:     repos.NewProposalLineItemRepo(db, log),
		sessionRepo:  repos.NewNegotiationSessionRepo(db, log),
		linRepo:      repos.NewLineItemNegotiationRepo(db, log),
		commentRepo:  repos.NewNegotiationCommentRepo(db, log),
		attachRepo:   repos.NewNegotiationAttachmentRepo(db, log),
		batchRepo:    repos.NewBulkBatchRepo(db, log),
		memberRepo:   repos.NewBulkBatchMemberRepo(db, log),
		outboxRepo:   repos.NewOutboxRepo(db, log),
	}
	projects := repos.NewProjectRepo(db, log)
	base := dataagg.BaseDeps{DB: db, Log: log}
	sessions := dataagg.NewNegotiationSessionAggregate(dataagg.NegotiationSessionAggregateDeps{
		Base:             base,
		Proposals:        f.proposalRepo,
		LineItems:        f.itemRepo,
		Versions:         f.versionRepo,
		Sessions:         f.sessionRepo,
		ItemNegotiations: f.linRepo,
		Comments:         f.commentRepo,
		BatchMembers:     f.memberRepo,
	})
	versioning := dataagg.NewVersioningAggregate(dataagg.VersioningAggregateDeps{
		Base:      base,
		Projects:  projects,
		Proposals: f.proposalRepo,
		Versions:  f.versionRepo,
		Sessions:  f.sessionRepo,
		LineItems: f.itemRepo,
	})
	f.sessionsAgg = sessions
	f.versioningAgg = versioning

	f.identity = NewIdentityOracle(log, projects, f.proposalRepo)
	f.negotiations = NewNegotiationService(log, NegotiationServiceDeps{
		Sessions:         sessions,
		Versioning:       versioning,
		Identity:         f.identity,
		Notifier:         NewNegotiationNotifier(log, f.outboxRepo),
		SessionRepo:      f.sessionRepo,
		ItemNegotiations: f.linRepo,
		Comments:         f.commentRepo,
	}).(*negotiationService)
	f.bulk = NewBulkBatchCoordinator(log, BulkBatchCoordinatorDeps{
		Identity:     f.identity,
		Negotiations: f.negotiations,
		Batches:      f.batchRepo,
		Members:      f.memberRepo,
		Proposals:    f.proposalRepo,
		Versions:     f.versionRepo,
		Concurrency:  2,
	})
	f.proposalsSvc = NewProposalService(log, versioning)
	f.comparer = NewVersionComparer(log, f.identity, f.versionRepo, f.itemRepo)
	f.ledger = NewLineItemLedger(log, f.proposalRepo, f.versionRepo, f.itemRepo)
	return f
}

func (f *serviceFixture) session(t *testing.T, id uuid.UUID) *types.NegotiationSession {
	t.Helper()
	s, err := f.sessionRepo.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil || s == nil {
		t.Fatalf("load session %s: %v", id, err)
	}
	return s
}

func (f *serviceFixture) proposal(t *testing.T, id uuid.UUID) *types.Proposal {
	t.Helper()
	p, err := f.proposalRepo.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil || p == nil {
		t.Fatalf("load proposal %s: %v", id, err)
	}
	return p
}

func (f *serviceFixture) outboxFor(t *testing.T, tmpl notify.Template, sessionID uuid.UUID) *types.NotificationOutbox {
	t.Helper()
	row, err := f.outboxRepo.GetByDedupKey(dbctx.Context{Ctx: context.Background()}, DedupKey(tmpl, sessionID))
	if err != nil {
		t.Fatalf("GetByDedupKey: %v", err)
	}
	return row
}

// seedNegotiable creates a project owned by a fresh initiator and one submitted proposal.
func seedNegotiable(t *testing.T, db *gorm.DB, submittedAt time.Time) (*repotest.SeededProposal, uuid.UUID) {
	t.Helper()
	initiator := uuid.New()
	project := repotest.SeedProject(t, context.Background(), db, initiator)
	seeded := repotest.SeedProposal(t, context.Background(), db, project, uuid.New(), submittedAt, []repotest.SeedItem{
		{Name: "design", Category: "engineering", Price: "8000.00"},
		{Name: "extras", Price: "2000.00", IsOptional: true},
	})
	return seeded, initiator
}

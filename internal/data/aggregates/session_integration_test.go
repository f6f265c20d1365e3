package aggregates

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/yungbote/quotebridge-backend/internal/data/repos"
	repotest "github.com/yungbote/quotebridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/quotebridge-backend/internal/domain"
	domainagg "github.com/yungbote/quotebridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/domain/negotiation"
	"github.com/yungbote/quotebridge-backend/internal/domain/proposals"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
)

type negotiationFixture struct {
	sessions   domainagg.NegotiationSessionAggregate
	versioning domainagg.VersioningAggregate

	proposalRepo repos.ProposalRepo
	versionRepo  repos.ProposalVersionRepo
	itemRepo     repos.ProposalLineItemRepo
	sessionRepo  repos.NegotiationSessionRepo
	linRepo      repos.LineItemNegotiationRepo
	commentRepo  repos.NegotiationCommentRepo
	memberRepo   repos.BulkBatchMemberRepo
}

func newNegotiationFixture(t *testing.T, db *gorm.DB, runner TxRunner) *negotiationFixture {
	t.Helper()
	log := repotest.Logger(t)
	if runner == nil {
		runner = NewGormTxRunner(db)
	}
	base := BaseDeps{DB: db, Runner: runner, CASGuard: NewCASGuard(db)}
	f := &negotiationFixture{
		proposalRepo: repos.NewProposalRepo(db, log),
		versionRepo:  repos.NewProposalVersionRepo(db, log),
		itemRepo:     repos.NewProposalLineItemRepo(db, log),
		sessionRepo:  repos.NewNegotiationSessionRepo(db, log),
		linRepo:      repos.NewLineItemNegotiationRepo(db, log),
		commentRepo:  repos.NewNegotiationCommentRepo(db, log),
		memberRepo:   repos.NewBulkBatchMemberRepo(db, log),
	}
	f.sessions = NewNegotiationSessionAggregate(NegotiationSessionAggregateDeps{
		Base:             base,
		Proposals:        f.proposalRepo,
		LineItems:        f.itemRepo,
		Versions:         f.versionRepo,
		Sessions:         f.sessionRepo,
		ItemNegotiations: f.linRepo,
		Comments:         f.commentRepo,
		BatchMembers:     f.memberRepo,
	})
	f.versioning = NewVersioningAggregate(VersioningAggregateDeps{
		Base:      base,
		Projects:  repos.NewProjectRepo(db, log),
		Proposals: f.proposalRepo,
		Versions:  f.versionRepo,
		Sessions:  f.sessionRepo,
		LineItems: f.itemRepo,
	})
	return f
}

func seedStandardProposal(t *testing.T, ctx context.Context, db *gorm.DB) (*repotest.SeededProposal, uuid.UUID) {
	t.Helper()
	initiator := uuid.New()
	project := repotest.SeedProject(t, ctx, db, initiator)
	seeded := repotest.SeedProposal(t, ctx, db, project, uuid.New(), time.Now().UTC().Add(-time.Hour), []repotest.SeedItem{
		{Name: "design", Category: "engineering", Price: "8000.00"},
		{Name: "extras", Category: "", Price: "2000.00", IsOptional: true},
	})
	return seeded, initiator
}

func openPercent(f *negotiationFixture, ctx context.Context, seeded *repotest.SeededProposal, initiator uuid.UUID, itemID uuid.UUID, pct string) (domainagg.OpenSessionResult, error) {
	return f.sessions.OpenSession(ctx, domainagg.OpenSessionInput{
		ProjectID:           seeded.Project.ID,
		ProposalID:          seeded.Proposal.ID,
		NegotiatedVersionID: seeded.Version.ID,
		InitiatorID:         initiator,
		Adjustments: []domainagg.LineItemAdjustmentInput{{
			LineItemID: itemID,
			Type:       negotiation.AdjustmentPercentageDiscount,
			Value:      decimal.RequireFromString(pct),
		}},
	})
}

func TestNegotiationSessionOpenResolvesTargets(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	seeded, initiator := seedStandardProposal(t, ctx, tx)
	design := seeded.ItemByName(t, "design")

	res, err := f.sessions.OpenSession(ctx, domainagg.OpenSessionInput{
		ProjectID:           seeded.Project.ID,
		ProposalID:          seeded.Proposal.ID,
		NegotiatedVersionID: seeded.Version.ID,
		InitiatorID:         initiator,
		Adjustments: []domainagg.LineItemAdjustmentInput{{
			LineItemID:    design.ID,
			Type:          negotiation.AdjustmentPercentageDiscount,
			Value:         decimal.NewFromInt(10),
			InitiatorNote: "  too high  ",
		}},
		Comments: []domainagg.CommentInput{{CommentType: "scope", Content: "drop phase 3"}},
	})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if res.Status != negotiation.SessionOpen {
		t.Fatalf("status: want=open got=%q", res.Status)
	}
	if res.ConsultantAdvisorID != seeded.Proposal.AdvisorID {
		t.Fatalf("consultant: want=%s got=%s", seeded.Proposal.AdvisorID, res.ConsultantAdvisorID)
	}
	if len(res.Targets) != 1 || !res.Targets[0].TargetPrice.Equal(decimal.RequireFromString("7200")) {
		t.Fatalf("targets: %+v", res.Targets)
	}

	dbc := dbctx.Context{Ctx: ctx}
	lins, err := f.linRepo.ListBySession(dbc, res.SessionID)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(lins) != 1 {
		t.Fatalf("line item negotiations: want=1 got=%d", len(lins))
	}
	if !lins[0].OriginalPrice.Equal(decimal.RequireFromString("8000")) || lins[0].InitiatorNote != "too high" {
		t.Fatalf("unexpected line item negotiation: %+v", lins[0])
	}
	comments, err := f.commentRepo.ListBySession(dbc, res.SessionID)
	if err != nil {
		t.Fatalf("comments: %v", err)
	}
	if len(comments) != 1 || comments[0].CommentType != negotiation.CommentScope || comments[0].AuthorID != initiator {
		t.Fatalf("unexpected comments: %+v", comments)
	}
}

func TestNegotiationSessionOpenValidation(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	seeded, initiator := seedStandardProposal(t, ctx, tx)
	design := seeded.ItemByName(t, "design")

	cases := []struct {
		name string
		in   domainagg.OpenSessionInput
		code domainagg.ErrorCode
	}{
		{
			name: "nothing to negotiate",
			in:   domainagg.OpenSessionInput{},
			code: domainagg.CodeValidation,
		},
		{
			name: "flat discount above original",
			in: domainagg.OpenSessionInput{Adjustments: []domainagg.LineItemAdjustmentInput{{
				LineItemID: design.ID, Type: negotiation.AdjustmentFlatDiscount, Value: decimal.NewFromInt(9000),
			}}},
			code: domainagg.CodeValidation,
		},
		{
			name: "percent out of range",
			in: domainagg.OpenSessionInput{Adjustments: []domainagg.LineItemAdjustmentInput{{
				LineItemID: design.ID, Type: negotiation.AdjustmentPercentageDiscount, Value: decimal.NewFromInt(101),
			}}},
			code: domainagg.CodeValidation,
		},
		{
			name: "unknown line item",
			in: domainagg.OpenSessionInput{Adjustments: []domainagg.LineItemAdjustmentInput{{
				LineItemID: uuid.New(), Type: negotiation.AdjustmentPriceChange, Value: decimal.NewFromInt(1),
			}}},
			code: domainagg.CodeNotFound,
		},
		{
			name: "stale negotiated version",
			in: domainagg.OpenSessionInput{
				NegotiatedVersionID: uuid.New(),
				TargetTotal:         repotestDecimal("9000"),
			},
			code: domainagg.CodeConflict,
		},
		{
			name: "bad comment type",
			in: domainagg.OpenSessionInput{
				TargetTotal: repotestDecimal("9000"),
				Comments:    []domainagg.CommentInput{{CommentType: "gossip", Content: "x"}},
			},
			code: domainagg.CodeValidation,
		},
	}
	for _, tc := range cases {
		in := tc.in
		in.ProjectID = seeded.Project.ID
		in.ProposalID = seeded.Proposal.ID
		in.InitiatorID = initiator
		if in.NegotiatedVersionID == uuid.Nil {
			in.NegotiatedVersionID = seeded.Version.ID
		}
		_, err := f.sessions.OpenSession(ctx, in)
		if !domainagg.IsCode(err, tc.code) {
			t.Fatalf("%s: want code %q got %v", tc.name, tc.code, err)
		}
	}

	active, err := f.sessionRepo.GetActiveByProposal(dbctx.Context{Ctx: ctx}, seeded.Proposal.ID)
	if err != nil {
		t.Fatalf("GetActiveByProposal: %v", err)
	}
	if active != nil {
		t.Fatalf("rejected opens must not leave a session behind, got %s", active.ID)
	}
}

func TestNegotiationSessionSingleActiveSession(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	seeded, initiator := seedStandardProposal(t, ctx, tx)
	design := seeded.ItemByName(t, "design")

	first, err := openPercent(f, ctx, seeded, initiator, design.ID, "10")
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := openPercent(f, ctx, seeded, initiator, design.ID, "5"); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("second open: want conflict got %v", err)
	}

	if _, err := f.sessions.CancelSession(ctx, domainagg.CancelSessionInput{SessionID: first.SessionID, ActorID: initiator}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := openPercent(f, ctx, seeded, initiator, design.ID, "5"); err != nil {
		t.Fatalf("open after cancel: %v", err)
	}
}

func TestNegotiationSessionConcurrentOpenConflict(t *testing.T) {
	db := repotest.DB(t)
	f := newNegotiationFixture(t, db, nil)
	ctx := context.Background()

	seeded, initiator := seedStandardProposal(t, ctx, db)
	design := seeded.ItemByName(t, "design")

	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := openPercent(f, ctx, seeded, initiator, design.ID, "10")
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var successCount, conflictCount int
	for err := range errs {
		if err == nil {
			successCount++
			continue
		}
		if domainagg.IsCode(err, domainagg.CodeConflict) {
			conflictCount++
			continue
		}
		t.Fatalf("unexpected error: %v", err)
	}
	if successCount != 1 || conflictCount != 1 {
		t.Fatalf("want 1 success and 1 conflict, got success=%d conflict=%d", successCount, conflictCount)
	}
}

func TestNegotiationEndToEndMaterializesVersionTwo(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	seeded, initiator := seedStandardProposal(t, ctx, tx)
	design := seeded.ItemByName(t, "design")
	extras := seeded.ItemByName(t, "extras")

	opened, err := openPercent(f, ctx, seeded, initiator, design.ID, "10")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !opened.Targets[0].TargetPrice.Equal(decimal.RequireFromString("7200.00")) {
		t.Fatalf("target: want=7200.00 got=%s", opened.Targets[0].TargetPrice)
	}

	marked, err := f.sessions.MarkAwaitingResponse(ctx, domainagg.MarkAwaitingResponseInput{SessionID: opened.SessionID})
	if err != nil || !marked.Changed || marked.Status != negotiation.SessionAwaitingResponse {
		t.Fatalf("mark awaiting: %+v err=%v", marked, err)
	}

	respIn := domainagg.RecordResponseInput{
		SessionID:         opened.SessionID,
		ConsultantMessage: "meet in the middle",
		Items: []domainagg.ResponseItemInput{{
			LineItemID: design.ID,
			Price:      decimal.RequireFromString("7500.00"),
			Note:       "best we can do",
		}},
	}
	resp, err := f.sessions.RecordResponse(ctx, respIn)
	if err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}
	if resp.Status != negotiation.SessionResponded || resp.Replayed || resp.Resumed {
		t.Fatalf("unexpected response result: %+v", resp)
	}

	ver, err := f.versioning.Materialize(ctx, domainagg.MaterializeInput{
		ProposalID:    resp.ProposalID,
		BaseVersionID: resp.NegotiatedVersionID,
		SessionID:     resp.SessionID,
		CreatedBy:     resp.ConsultantAdvisorID,
		Items:         resp.Items,
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if ver.VersionNumber != 2 || !ver.Created {
		t.Fatalf("materialize: %+v", ver)
	}
	if !ver.Price.Equal(decimal.RequireFromString("9500")) {
		t.Fatalf("v2 price: want=9500 got=%s", ver.Price)
	}

	adv, err := f.versioning.AdvanceCurrentVersion(ctx, domainagg.AdvanceCurrentVersionInput{
		ProposalID: resp.ProposalID, VersionID: ver.VersionID, Resubmitted: true,
	})
	if err != nil || !adv.Moved || adv.Status != proposals.ProposalStatusResubmitted {
		t.Fatalf("advance: %+v err=%v", adv, err)
	}
	resolved, err := f.sessions.ResolveSession(ctx, domainagg.ResolveSessionInput{
		SessionID: opened.SessionID, ResultVersionID: ver.VersionID, ResultVersionNumber: ver.VersionNumber,
	})
	if err != nil || resolved.Status != negotiation.SessionResolved {
		t.Fatalf("resolve: %+v err=%v", resolved, err)
	}

	dbc := dbctx.Context{Ctx: ctx}
	items, err := f.itemRepo.ListByVersion(dbc, ver.VersionID)
	if err != nil {
		t.Fatalf("ListByVersion: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("v2 items: want=2 got=%d", len(items))
	}
	for _, it := range items {
		switch it.LineageID {
		case design.LineageID:
			if !it.Total.Equal(decimal.RequireFromString("7500")) {
				t.Fatalf("design total: want=7500 got=%s", it.Total)
			}
		case extras.LineageID:
			if !it.Total.Equal(decimal.RequireFromString("2000")) || !it.UnitPrice.Equal(extras.UnitPrice) || !it.Quantity.Equal(extras.Quantity) {
				t.Fatalf("extras not carried forward: %+v", it)
			}
		default:
			t.Fatalf("unexpected lineage %s", it.LineageID)
		}
	}

	lins, err := f.linRepo.ListBySession(dbc, opened.SessionID)
	if err != nil {
		t.Fatalf("lins: %v", err)
	}
	if !lins[0].FinalPrice.Valid || !lins[0].FinalPrice.Decimal.Equal(decimal.RequireFromString("7500")) {
		t.Fatalf("final price: %+v", lins[0].FinalPrice)
	}

	// An identical retry after resolution replays instead of creating version 3.
	replay, err := f.sessions.RecordResponse(ctx, respIn)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Replayed || replay.ResultVersionID == nil || *replay.ResultVersionID != ver.VersionID {
		t.Fatalf("replay result: %+v", replay)
	}
	again, err := f.versioning.Materialize(ctx, domainagg.MaterializeInput{
		ProposalID:    resp.ProposalID,
		BaseVersionID: resp.NegotiatedVersionID,
		SessionID:     resp.SessionID,
		Items:         resp.Items,
	})
	if err != nil {
		t.Fatalf("re-materialize: %v", err)
	}
	if again.Created || again.VersionID != ver.VersionID {
		t.Fatalf("re-materialize should return existing version: %+v", again)
	}
	maxNum, err := f.versionRepo.GetMaxVersionNumber(dbc, resp.ProposalID)
	if err != nil || maxNum != 2 {
		t.Fatalf("max version: want=2 got=%d err=%v", maxNum, err)
	}

	// A different counter after resolution is a conflict, not a silent overwrite.
	respIn.Items[0].Price = decimal.RequireFromString("7400")
	if _, err := f.sessions.RecordResponse(ctx, respIn); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("different response after resolve: want conflict got %v", err)
	}
	if _, err := f.sessions.CancelSession(ctx, domainagg.CancelSessionInput{SessionID: opened.SessionID, ActorID: initiator}); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("cancel after resolve: want conflict got %v", err)
	}
}

func TestNegotiationRecordResponseRejectsOutOfScopeItem(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	seeded, initiator := seedStandardProposal(t, ctx, tx)
	design := seeded.ItemByName(t, "design")
	extras := seeded.ItemByName(t, "extras")

	opened, err := openPercent(f, ctx, seeded, initiator, design.ID, "10")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = f.sessions.RecordResponse(ctx, domainagg.RecordResponseInput{
		SessionID: opened.SessionID,
		Items:     []domainagg.ResponseItemInput{{LineItemID: extras.ID, Price: decimal.NewFromInt(1)}},
	})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("want validation got %v", err)
	}
	_, err = f.sessions.RecordResponse(ctx, domainagg.RecordResponseInput{
		SessionID: opened.SessionID,
		Items:     []domainagg.ResponseItemInput{{LineItemID: design.ID, Price: decimal.NewFromInt(-1)}},
	})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("negative price: want validation got %v", err)
	}

	s, err := f.sessionRepo.GetByID(dbctx.Context{Ctx: ctx}, opened.SessionID)
	if err != nil || s == nil || s.Status != negotiation.SessionOpen {
		t.Fatalf("session should still be open: %+v err=%v", s, err)
	}
}

func TestNegotiationRecordResponseStaleVersionConflict(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	seeded, initiator := seedStandardProposal(t, ctx, tx)
	design := seeded.ItemByName(t, "design")

	opened, err := openPercent(f, ctx, seeded, initiator, design.ID, "10")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// Simulate the proposal moving underneath the negotiation.
	if err := tx.Model(&types.Proposal{}).Where("id = ?", seeded.Proposal.ID).
		Updates(map[string]any{"current_version_id": uuid.New(), "current_version_number": 5}).Error; err != nil {
		t.Fatalf("move pointer: %v", err)
	}
	_, err = f.sessions.RecordResponse(ctx, domainagg.RecordResponseInput{
		SessionID: opened.SessionID,
		Items:     []domainagg.ResponseItemInput{{LineItemID: design.ID, Price: decimal.NewFromInt(7500)}},
	})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("want conflict got %v", err)
	}
}

func TestNegotiationRecordResponseResumesResponded(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	seeded, initiator := seedStandardProposal(t, ctx, tx)
	design := seeded.ItemByName(t, "design")

	opened, err := openPercent(f, ctx, seeded, initiator, design.ID, "10")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	in := domainagg.RecordResponseInput{
		SessionID: opened.SessionID,
		Items:     []domainagg.ResponseItemInput{{LineItemID: design.ID, Price: decimal.RequireFromString("7500")}},
	}
	first, err := f.sessions.RecordResponse(ctx, in)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.sessions.RecordResponse(ctx, in)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Resumed || second.ResponseHash != first.ResponseHash {
		t.Fatalf("expected resume with same hash: first=%+v second=%+v", first, second)
	}
	if len(second.Items) != 1 || !second.Items[0].Price.Equal(decimal.RequireFromString("7500")) {
		t.Fatalf("resumed items: %+v", second.Items)
	}

	in.Items[0].Price = decimal.RequireFromString("7600")
	if _, err := f.sessions.RecordResponse(ctx, in); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("different response while responded: want conflict got %v", err)
	}
}

func TestNegotiationCancelRespondedBeforeMaterialize(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	seeded, initiator := seedStandardProposal(t, ctx, tx)
	design := seeded.ItemByName(t, "design")

	opened, err := openPercent(f, ctx, seeded, initiator, design.ID, "10")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	resp, err := f.sessions.RecordResponse(ctx, domainagg.RecordResponseInput{
		SessionID: opened.SessionID,
		Items:     []domainagg.ResponseItemInput{{LineItemID: design.ID, Price: decimal.RequireFromString("7500")}},
	})
	if err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}

	res, err := f.sessions.CancelSession(ctx, domainagg.CancelSessionInput{SessionID: opened.SessionID, ActorID: initiator})
	if err != nil || !res.Changed || res.Status != negotiation.SessionCancelled {
		t.Fatalf("cancel after response: %+v err=%v", res, err)
	}

	_, err = f.versioning.Materialize(ctx, domainagg.MaterializeInput{
		ProposalID:    resp.ProposalID,
		BaseVersionID: resp.NegotiatedVersionID,
		SessionID:     resp.SessionID,
		Items:         resp.Items,
	})
	if !domainagg.IsCode(err, domainagg.CodePreconditionFailed) {
		t.Fatalf("materialize cancelled session: want precondition_failed got %v", err)
	}
	if _, err := f.sessions.ResolveSession(ctx, domainagg.ResolveSessionInput{
		SessionID: opened.SessionID, ResultVersionID: uuid.New(), ResultVersionNumber: 2,
	}); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("resolve cancelled session: want conflict got %v", err)
	}

	dbc := dbctx.Context{Ctx: ctx}
	maxNum, err := f.versionRepo.GetMaxVersionNumber(dbc, seeded.Proposal.ID)
	if err != nil || maxNum != 1 {
		t.Fatalf("cancelled negotiation produced a version: max=%d err=%v", maxNum, err)
	}
	s, err := f.sessionRepo.GetByID(dbc, opened.SessionID)
	if err != nil || s == nil || s.Status != negotiation.SessionCancelled || s.ResultVersionID != nil {
		t.Fatalf("session should stay cancelled: %+v err=%v", s, err)
	}
}

func TestNegotiationCancelRespondedAfterMaterializeConflicts(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	seeded, initiator := seedStandardProposal(t, ctx, tx)
	design := seeded.ItemByName(t, "design")

	opened, err := openPercent(f, ctx, seeded, initiator, design.ID, "10")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	resp, err := f.sessions.RecordResponse(ctx, domainagg.RecordResponseInput{
		SessionID: opened.SessionID,
		Items:     []domainagg.ResponseItemInput{{LineItemID: design.ID, Price: decimal.RequireFromString("7500")}},
	})
	if err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}
	// The process stops after the version commits but before the session resolves.
	if _, err := f.versioning.Materialize(ctx, domainagg.MaterializeInput{
		ProposalID:    resp.ProposalID,
		BaseVersionID: resp.NegotiatedVersionID,
		SessionID:     resp.SessionID,
		Items:         resp.Items,
	}); err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if _, err := f.sessions.CancelSession(ctx, domainagg.CancelSessionInput{SessionID: opened.SessionID, ActorID: initiator}); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("cancel after materialize: want conflict got %v", err)
	}
	s, err := f.sessionRepo.GetByID(dbctx.Context{Ctx: ctx}, opened.SessionID)
	if err != nil || s == nil || s.Status != negotiation.SessionResponded {
		t.Fatalf("session should remain responded for recovery: %+v err=%v", s, err)
	}
}

func TestNegotiationCancelRequiresParty(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	seeded, initiator := seedStandardProposal(t, ctx, tx)
	opened, err := openPercent(f, ctx, seeded, initiator, seeded.ItemByName(t, "design").ID, "10")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.sessions.CancelSession(ctx, domainagg.CancelSessionInput{SessionID: opened.SessionID, ActorID: uuid.New()}); !domainagg.IsCode(err, domainagg.CodeForbidden) {
		t.Fatalf("stranger cancel: want forbidden got %v", err)
	}
	res, err := f.sessions.CancelSession(ctx, domainagg.CancelSessionInput{SessionID: opened.SessionID, ActorID: seeded.Proposal.AdvisorID})
	if err != nil || !res.Changed || res.Status != negotiation.SessionCancelled {
		t.Fatalf("consultant cancel: %+v err=%v", res, err)
	}
	if _, err := f.sessions.CancelSession(ctx, domainagg.CancelSessionInput{SessionID: opened.SessionID, ActorID: initiator}); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("double cancel: want conflict got %v", err)
	}

	// Comments remain allowed on closed sessions.
	if _, err := f.sessions.AddComment(ctx, domainagg.AddCommentInput{
		SessionID: opened.SessionID,
		AuthorID:  initiator,
		Comment:   domainagg.CommentInput{Content: "noted"},
	}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if _, err := f.sessions.AddComment(ctx, domainagg.AddCommentInput{
		SessionID: uuid.New(),
		AuthorID:  initiator,
		Comment:   domainagg.CommentInput{Content: "noted"},
	}); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("comment on unknown session: want not_found got %v", err)
	}
}

func TestNegotiationOpenRollbackOnInjectedFailure(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, rollbackAfterBodyRunner{db: tx, err: errors.New("injected aggregate failure")})
	ctx := context.Background()

	seeded, initiator := seedStandardProposal(t, ctx, tx)
	batchID := uuid.New()
	pct := decimal.NewFromInt(5)
	if _, err := f.sessions.OpenSession(ctx, domainagg.OpenSessionInput{
		ProjectID:              seeded.Project.ID,
		ProposalID:             seeded.Proposal.ID,
		NegotiatedVersionID:    seeded.Version.ID,
		InitiatorID:            initiator,
		BatchID:                &batchID,
		TargetReductionPercent: &pct,
	}); err == nil {
		t.Fatalf("expected injected failure")
	}
	dbc := dbctx.Context{Ctx: ctx}
	rows, err := f.sessionRepo.ListByProposal(dbc, seeded.Proposal.ID)
	if err != nil {
		t.Fatalf("ListByProposal: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected rollback with no persisted sessions, got=%d", len(rows))
	}
	members, err := f.memberRepo.ListByBatchIDs(dbc, []uuid.UUID{batchID})
	if err != nil {
		t.Fatalf("ListByBatchIDs: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected rollback with no batch members, got=%d", len(members))
	}
}

func TestNegotiationOpenRecordsBatchMemberWithSession(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	seeded, initiator := seedStandardProposal(t, ctx, tx)
	batchID := uuid.New()
	pct := decimal.NewFromInt(5)
	opened, err := f.sessions.OpenSession(ctx, domainagg.OpenSessionInput{
		ProjectID:              seeded.Project.ID,
		ProposalID:             seeded.Proposal.ID,
		NegotiatedVersionID:    seeded.Version.ID,
		InitiatorID:            initiator,
		BatchID:                &batchID,
		TargetReductionPercent: &pct,
	})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	dbc := dbctx.Context{Ctx: ctx}
	members, err := f.memberRepo.ListByBatchIDs(dbc, []uuid.UUID{batchID})
	if err != nil {
		t.Fatalf("ListByBatchIDs: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("members: want=1 got=%d", len(members))
	}
	m := members[0]
	if m.ProposalID != seeded.Proposal.ID || m.SessionID == nil || *m.SessionID != opened.SessionID || m.Error != "" {
		t.Fatalf("unexpected member: %+v", m)
	}
	s, err := f.sessionRepo.GetByID(dbc, opened.SessionID)
	if err != nil || s == nil || s.BatchID == nil || *s.BatchID != batchID {
		t.Fatalf("session not linked to batch: %+v err=%v", s, err)
	}
}

type rollbackAfterBodyRunner struct {
	db  *gorm.DB
	err error
}

func (r rollbackAfterBodyRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if r.db == nil {
		return errors.New("missing db")
	}
	injected := r.err
	if injected == nil {
		injected = errors.New("forced rollback")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if fn == nil {
			return injected
		}
		if err := fn(dbctx.Context{Ctx: ctx, Tx: tx}); err != nil {
			return err
		}
		return injected
	})
}

func repotestDecimal(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

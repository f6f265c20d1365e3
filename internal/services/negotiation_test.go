package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	repotest "github.com/yungbote/quotebridge-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/quotebridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/domain/negotiation"
	"github.com/yungbote/quotebridge-backend/internal/domain/notify"
	"github.com/yungbote/quotebridge-backend/internal/domain/proposals"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
)

func openDesignTen(t *testing.T, f *serviceFixture, seeded *repotest.SeededProposal, initiator uuid.UUID) *NegotiationCreated {
	t.Helper()
	design := seeded.ItemByName(t, "design")
	created, err := f.negotiations.Open(context.Background(), initiator, NegotiationRequest{
		ProjectID:           seeded.Project.ID,
		ProposalID:          seeded.Proposal.ID,
		NegotiatedVersionID: seeded.Version.ID,
		GlobalComment:       "budget is tight",
		LineItemAdjustments: []LineItemAdjustment{{
			LineItemID:      design.ID,
			AdjustmentType:  string(negotiation.AdjustmentPercentageDiscount),
			AdjustmentValue: decimal.NewFromInt(10),
		}},
		Comments: []CommentRequest{{CommentType: "payment", Content: "see attached benchmark"}},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return created
}

func TestNegotiationServiceOpenQueuesRequestAndAwaits(t *testing.T) {
	db := repotest.DB(t)
	f := newServiceFixture(t, db)
	seeded, initiator := seedNegotiable(t, db, time.Now().UTC().Add(-time.Hour))

	created := openDesignTen(t, f, seeded, initiator)
	if created.Status != negotiation.SessionAwaitingResponse {
		t.Fatalf("status: want=awaiting_response got=%q", created.Status)
	}
	if len(created.Targets) != 1 || !created.Targets[0].TargetPrice.Equal(decimal.RequireFromString("7200")) {
		t.Fatalf("unexpected targets: %+v", created.Targets)
	}

	row := f.outboxFor(t, notify.TemplateNegotiationRequested, created.SessionID)
	if row == nil {
		t.Fatalf("request notification not queued")
	}
	if row.RecipientID != seeded.Proposal.AdvisorID || row.Status != notify.OutboxStatusPending {
		t.Fatalf("unexpected outbox row: %+v", row)
	}

	detail, err := f.negotiations.GetSession(context.Background(), seeded.Proposal.AdvisorID, created.SessionID)
	if err != nil {
		t.Fatalf("GetSession as consultant: %v", err)
	}
	if len(detail.LineItems) != 1 || len(detail.Comments) != 1 {
		t.Fatalf("unexpected detail: items=%d comments=%d", len(detail.LineItems), len(detail.Comments))
	}
	if _, err := f.negotiations.GetSession(context.Background(), uuid.New(), created.SessionID); !domainagg.IsCode(err, domainagg.CodeForbidden) {
		t.Fatalf("stranger GetSession: want forbidden got %v", err)
	}
}

func TestNegotiationServiceOpenRequiresProjectOwner(t *testing.T) {
	db := repotest.DB(t)
	f := newServiceFixture(t, db)
	seeded, _ := seedNegotiable(t, db, time.Now().UTC())

	pct := decimal.NewFromInt(5)
	_, err := f.negotiations.Open(context.Background(), seeded.Proposal.AdvisorID, NegotiationRequest{
		ProjectID:              seeded.Project.ID,
		ProposalID:             seeded.Proposal.ID,
		NegotiatedVersionID:    seeded.Version.ID,
		TargetReductionPercent: &pct,
	})
	if !domainagg.IsCode(err, domainagg.CodeForbidden) {
		t.Fatalf("want forbidden got %v", err)
	}
}

func TestNegotiationServiceOpenRejectsUnknownCommentType(t *testing.T) {
	db := repotest.DB(t)
	f := newServiceFixture(t, db)
	seeded, initiator := seedNegotiable(t, db, time.Now().UTC())

	pct := decimal.NewFromInt(5)
	_, err := f.negotiations.Open(context.Background(), initiator, NegotiationRequest{
		ProjectID:              seeded.Project.ID,
		ProposalID:             seeded.Proposal.ID,
		NegotiatedVersionID:    seeded.Version.ID,
		TargetReductionPercent: &pct,
		Comments:               []CommentRequest{{CommentType: "pricing", Content: "too high"}},
	})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("want validation got %v", err)
	}
	sessions, err := f.negotiations.ListSessions(context.Background(), initiator, seeded.Proposal.ID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("rejected request left %d sessions behind", len(sessions))
	}
}

func TestNegotiationServiceRespondMaterializesAndReplays(t *testing.T) {
	db := repotest.DB(t)
	f := newServiceFixture(t, db)
	ctx := context.Background()
	seeded, initiator := seedNegotiable(t, db, time.Now().UTC().Add(-time.Hour))
	created := openDesignTen(t, f, seeded, initiator)
	design := seeded.ItemByName(t, "design")
	consultant := seeded.Proposal.AdvisorID

	resp := NegotiationResponse{
		SessionID:         created.SessionID,
		ConsultantMessage: "meet in the middle",
		UpdatedLineItems: []ResponseLineItem{{
			LineItemID:              design.ID,
			ConsultantResponsePrice: decimal.RequireFromString("7500"),
		}},
	}
	if _, err := f.negotiations.Respond(ctx, initiator, resp); !domainagg.IsCode(err, domainagg.CodeForbidden) {
		t.Fatalf("initiator responding: want forbidden got %v", err)
	}

	out, err := f.negotiations.Respond(ctx, consultant, resp)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if out.NewVersionNumber != 2 || out.Replayed {
		t.Fatalf("unexpected result: %+v", out)
	}

	s := f.session(t, created.SessionID)
	if s.Status != negotiation.SessionResolved || s.ResultVersionID == nil || *s.ResultVersionID != out.NewVersionID {
		t.Fatalf("session not resolved onto v2: %+v", s)
	}
	prop := f.proposal(t, seeded.Proposal.ID)
	if prop.CurrentVersionNumber != 2 || prop.Status != proposals.ProposalStatusResubmitted {
		t.Fatalf("proposal not advanced: %+v", prop)
	}
	if !prop.SubmittedAt.After(seeded.Proposal.SubmittedAt) {
		t.Fatalf("submitted_at not restamped: %s", prop.SubmittedAt)
	}
	if row := f.outboxFor(t, notify.TemplateNegotiationResponded, created.SessionID); row == nil || row.RecipientID != initiator {
		t.Fatalf("response notification missing or misaddressed: %+v", row)
	}

	ledger, err := f.ledger.ListForVersion(ctx, seeded.Proposal.ID, nil)
	if err != nil {
		t.Fatalf("ListForVersion: %v", err)
	}
	if ledger.VersionNumber != 2 || !ledger.FullTotal.Equal(decimal.RequireFromString("9500")) || !ledger.RequiredTotal.Equal(decimal.RequireFromString("7500")) {
		t.Fatalf("unexpected ledger: v=%d full=%s required=%s", ledger.VersionNumber, ledger.FullTotal, ledger.RequiredTotal)
	}

	again, err := f.negotiations.Respond(ctx, consultant, resp)
	if err != nil {
		t.Fatalf("replay Respond: %v", err)
	}
	if !again.Replayed || again.NewVersionID != out.NewVersionID || again.NewVersionNumber != 2 {
		t.Fatalf("replay should return the same version: %+v", again)
	}

	resp.UpdatedLineItems[0].ConsultantResponsePrice = decimal.RequireFromString("7400")
	if _, err := f.negotiations.Respond(ctx, consultant, resp); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("different counter after resolve: want conflict got %v", err)
	}

	sessions, err := f.negotiations.ListSessions(ctx, initiator, seeded.Proposal.ID)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("ListSessions: %d %v", len(sessions), err)
	}
}

func TestNegotiationServiceCancelNotifiesCounterpart(t *testing.T) {
	db := repotest.DB(t)
	f := newServiceFixture(t, db)
	ctx := context.Background()
	seeded, initiator := seedNegotiable(t, db, time.Now().UTC())
	created := openDesignTen(t, f, seeded, initiator)

	if _, err := f.negotiations.Cancel(ctx, uuid.New(), created.SessionID); !domainagg.IsCode(err, domainagg.CodeForbidden) {
		t.Fatalf("stranger cancel: want forbidden got %v", err)
	}
	s, err := f.negotiations.Cancel(ctx, initiator, created.SessionID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if s.Status != negotiation.SessionCancelled || s.CancelledBy == nil || *s.CancelledBy != initiator {
		t.Fatalf("unexpected cancelled session: %+v", s)
	}
	row := f.outboxFor(t, notify.TemplateNegotiationCancelled, created.SessionID)
	if row == nil || row.RecipientID != seeded.Proposal.AdvisorID {
		t.Fatalf("cancel notification missing or misaddressed: %+v", row)
	}

	if _, err := f.negotiations.AddComment(ctx, seeded.Proposal.AdvisorID, created.SessionID, CommentRequest{Content: "noted"}); err != nil {
		t.Fatalf("comment on cancelled session: %v", err)
	}

	// A new round is allowed once the previous one is terminal.
	again := openDesignTen(t, f, seeded, initiator)
	if again.SessionID == created.SessionID {
		t.Fatalf("expected a fresh session")
	}
}

func TestNegotiationServiceRecoverStuckSessions(t *testing.T) {
	db := repotest.SQLite(t)
	f := newServiceFixture(t, db)
	ctx := context.Background()

	// Crashed after recording the response: responded, no version yet.
	crashed, initiator := seedNegotiable(t, db, time.Now().UTC().Add(-time.Hour))
	design := crashed.ItemByName(t, "design")
	opened, err := f.sessionsAgg.OpenSession(ctx, domainagg.OpenSessionInput{
		ProjectID:           crashed.Project.ID,
		ProposalID:          crashed.Proposal.ID,
		NegotiatedVersionID: crashed.Version.ID,
		InitiatorID:         initiator,
		Adjustments: []domainagg.LineItemAdjustmentInput{{
			LineItemID: design.ID,
			Type:       negotiation.AdjustmentFlatDiscount,
			Value:      decimal.NewFromInt(500),
		}},
	})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if _, err := f.sessionsAgg.RecordResponse(ctx, domainagg.RecordResponseInput{
		SessionID: opened.SessionID,
		Items:     []domainagg.ResponseItemInput{{LineItemID: design.ID, Price: decimal.RequireFromString("7600")}},
	}); err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}

	// Crashed before the request notification went out: still open.
	quiet, quietInitiator := seedNegotiable(t, db, time.Now().UTC().Add(-time.Hour))
	pct := decimal.NewFromInt(5)
	stuck, err := f.sessionsAgg.OpenSession(ctx, domainagg.OpenSessionInput{
		ProjectID:              quiet.Project.ID,
		ProposalID:             quiet.Proposal.ID,
		NegotiatedVersionID:    quiet.Version.ID,
		InitiatorID:            quietInitiator,
		TargetReductionPercent: &pct,
	})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	report, err := f.negotiations.RecoverStuckSessions(ctx, time.Minute)
	if err != nil {
		t.Fatalf("RecoverStuckSessions: %v", err)
	}
	if report.Resolved != 0 || report.Reminded != 0 {
		t.Fatalf("fresh sessions must not be recovered: %+v", report)
	}

	f.negotiations.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	report, err = f.negotiations.RecoverStuckSessions(ctx, time.Minute)
	if err != nil {
		t.Fatalf("RecoverStuckSessions: %v", err)
	}
	if report.Resolved != 1 || report.Reminded != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	s := f.session(t, opened.SessionID)
	if s.Status != negotiation.SessionResolved || s.ResultVersionNumber != 2 {
		t.Fatalf("responded session not finished: %+v", s)
	}
	if prop := f.proposal(t, crashed.Proposal.ID); prop.CurrentVersionNumber != 2 {
		t.Fatalf("proposal pointer not advanced: %+v", prop)
	}
	lins, err := f.linRepo.ListBySession(dbctx.Context{Ctx: ctx}, opened.SessionID)
	if err != nil || len(lins) != 1 || !lins[0].FinalPrice.Valid || !lins[0].FinalPrice.Decimal.Equal(decimal.RequireFromString("7600")) {
		t.Fatalf("final price not stamped: %+v err=%v", lins, err)
	}

	if s := f.session(t, stuck.SessionID); s.Status != negotiation.SessionAwaitingResponse {
		t.Fatalf("open session not moved to awaiting_response: %q", s.Status)
	}
	if row := f.outboxFor(t, notify.TemplateNegotiationRequested, stuck.SessionID); row == nil {
		t.Fatalf("request notification not re-queued")
	}

	// A second pass has nothing left to do.
	report, err = f.negotiations.RecoverStuckSessions(ctx, time.Minute)
	if err != nil || report != (RecoveryReport{}) {
		t.Fatalf("second pass: %+v err=%v", report, err)
	}
}

func TestNegotiationServiceRecoverySkipsCancelledResponse(t *testing.T) {
	db := repotest.SQLite(t)
	f := newServiceFixture(t, db)
	ctx := context.Background()

	seeded, initiator := seedNegotiable(t, db, time.Now().UTC().Add(-time.Hour))
	design := seeded.ItemByName(t, "design")
	opened, err := f.sessionsAgg.OpenSession(ctx, domainagg.OpenSessionInput{
		ProjectID:           seeded.Project.ID,
		ProposalID:          seeded.Proposal.ID,
		NegotiatedVersionID: seeded.Version.ID,
		InitiatorID:         initiator,
		Adjustments: []domainagg.LineItemAdjustmentInput{{
			LineItemID: design.ID,
			Type:       negotiation.AdjustmentFlatDiscount,
			Value:      decimal.NewFromInt(500),
		}},
	})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if _, err := f.sessionsAgg.RecordResponse(ctx, domainagg.RecordResponseInput{
		SessionID: opened.SessionID,
		Items:     []domainagg.ResponseItemInput{{LineItemID: design.ID, Price: decimal.RequireFromString("7600")}},
	}); err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}

	s, err := f.negotiations.Cancel(ctx, initiator, opened.SessionID)
	if err != nil {
		t.Fatalf("Cancel responded: %v", err)
	}
	if s.Status != negotiation.SessionCancelled {
		t.Fatalf("status: want=cancelled got=%q", s.Status)
	}

	f.negotiations.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	report, err := f.negotiations.RecoverStuckSessions(ctx, time.Minute)
	if err != nil {
		t.Fatalf("RecoverStuckSessions: %v", err)
	}
	if report != (RecoveryReport{}) {
		t.Fatalf("cancelled session picked up by recovery: %+v", report)
	}
	if s := f.session(t, opened.SessionID); s.Status != negotiation.SessionCancelled || s.ResultVersionID != nil {
		t.Fatalf("cancelled session changed: %+v", s)
	}
	if prop := f.proposal(t, seeded.Proposal.ID); prop.CurrentVersionNumber != 1 {
		t.Fatalf("proposal advanced for a cancelled negotiation: %+v", prop)
	}
}

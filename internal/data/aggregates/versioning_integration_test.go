package aggregates

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	repotest "github.com/yungbote/quotebridge-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/quotebridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/domain/negotiation"
	"github.com/yungbote/quotebridge-backend/internal/domain/proposals"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
)

func TestVersioningSubmitProposalCreatesVersionOne(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	owner := uuid.New()
	project := repotest.SeedProject(t, ctx, tx, owner)
	advisor := uuid.New()

	res, err := f.versioning.SubmitProposal(ctx, domainagg.SubmitProposalInput{
		ProjectID:    project.ID,
		AdvisorID:    advisor,
		TimelineDays: 45,
		ScopeText:    "phase 1\nphase 2",
		Terms:        "net 30",
		LineItems: []domainagg.NewLineItemInput{
			{Name: "survey", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.RequireFromString("1000")},
			{Name: "report", UnitPrice: decimal.RequireFromString("500.005"), IsOptional: true},
		},
	})
	if err != nil {
		t.Fatalf("SubmitProposal: %v", err)
	}
	if res.VersionNumber != 1 || !res.Created {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.Price.Equal(decimal.RequireFromString("3500.01")) {
		t.Fatalf("price: want=3500.01 got=%s", res.Price)
	}

	dbc := dbctx.Context{Ctx: ctx}
	prop, err := f.proposalRepo.GetByID(dbc, res.ProposalID)
	if err != nil || prop == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if prop.Status != proposals.ProposalStatusSubmitted || prop.CurrentVersionNumber != 1 || prop.CurrentVersionID == nil || *prop.CurrentVersionID != res.VersionID {
		t.Fatalf("unexpected proposal: %+v", prop)
	}
	items, err := f.itemRepo.ListByVersion(dbc, res.VersionID)
	if err != nil {
		t.Fatalf("ListByVersion: %v", err)
	}
	if len(items) != 2 || items[0].Name != "survey" || items[1].Name != "report" {
		t.Fatalf("unexpected items: %+v", items)
	}
	for _, it := range items {
		if !it.Quantity.Mul(it.UnitPrice).Round(2).Equal(it.Total) {
			t.Fatalf("total != qty*unit for %s", it.Name)
		}
	}

	if _, err := f.versioning.SubmitProposal(ctx, domainagg.SubmitProposalInput{
		ProjectID: uuid.New(),
		AdvisorID: advisor,
		LineItems: []domainagg.NewLineItemInput{{Name: "x", UnitPrice: decimal.NewFromInt(1)}},
	}); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unknown project: want not_found got %v", err)
	}
}

func TestVersioningMaterializeCarriesForwardUntouchedItems(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	project := repotest.SeedProject(t, ctx, tx, uuid.New())
	seeded := repotest.SeedProposal(t, ctx, tx, project, uuid.New(), time.Now().UTC(), []repotest.SeedItem{
		{Name: "a", Price: "100.00"},
		{Name: "b", Price: "250.00"},
		{Name: "c", Price: "75.50", IsOptional: true},
	})
	b := seeded.ItemByName(t, "b")
	session := repotest.SeedSession(t, ctx, tx, seeded, negotiation.SessionResponded)

	res, err := f.versioning.Materialize(ctx, domainagg.MaterializeInput{
		ProposalID:    seeded.Proposal.ID,
		BaseVersionID: seeded.Version.ID,
		SessionID:     session.ID,
		Items:         []negotiation.ResponseItem{{LineItemID: b.ID, Price: decimal.RequireFromString("200")}},
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if !res.Price.Equal(decimal.RequireFromString("375.50")) {
		t.Fatalf("price: want=375.50 got=%s", res.Price)
	}

	next, err := f.itemRepo.ListByVersion(dbctx.Context{Ctx: ctx}, res.VersionID)
	if err != nil {
		t.Fatalf("ListByVersion: %v", err)
	}
	byLineage := map[uuid.UUID]bool{}
	for _, it := range next {
		byLineage[it.LineageID] = true
		if it.VersionNumber != 2 || it.ProposalVersionID != res.VersionID {
			t.Fatalf("item not bound to v2: %+v", it)
		}
	}
	for _, base := range seeded.Items {
		if !byLineage[base.LineageID] {
			t.Fatalf("lineage %s missing from v2", base.LineageID)
		}
		for _, it := range next {
			if it.LineageID != base.LineageID {
				continue
			}
			if it.ID == base.ID {
				t.Fatalf("v2 must not reuse v1 item ids")
			}
			if base.ID == b.ID {
				if !it.Total.Equal(decimal.RequireFromString("200")) {
					t.Fatalf("touched total: want=200 got=%s", it.Total)
				}
				continue
			}
			if it.Name != base.Name || !it.UnitPrice.Equal(base.UnitPrice) || !it.Quantity.Equal(base.Quantity) || !it.Total.Equal(base.Total) {
				t.Fatalf("untouched item changed: base=%+v next=%+v", base, it)
			}
		}
	}

	// Base pointer is untouched until AdvanceCurrentVersion runs.
	prop, err := f.proposalRepo.GetByID(dbctx.Context{Ctx: ctx}, seeded.Proposal.ID)
	if err != nil || prop.CurrentVersionNumber != 1 {
		t.Fatalf("pointer moved before advance: %+v err=%v", prop, err)
	}
}

func TestVersioningMaterializeRejectsForeignItem(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	project := repotest.SeedProject(t, ctx, tx, uuid.New())
	seeded := repotest.SeedProposal(t, ctx, tx, project, uuid.New(), time.Now().UTC(), []repotest.SeedItem{{Name: "a", Price: "100"}})
	session := repotest.SeedSession(t, ctx, tx, seeded, negotiation.SessionResponded)

	_, err := f.versioning.Materialize(ctx, domainagg.MaterializeInput{
		ProposalID:    seeded.Proposal.ID,
		BaseVersionID: seeded.Version.ID,
		SessionID:     session.ID,
		Items:         []negotiation.ResponseItem{{LineItemID: uuid.New(), Price: decimal.NewFromInt(1)}},
	})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("want not_found got %v", err)
	}
}

func TestVersioningConcurrentMaterializeIsGapFree(t *testing.T) {
	db := repotest.DB(t)
	f := newNegotiationFixture(t, db, nil)
	ctx := context.Background()

	project := repotest.SeedProject(t, ctx, db, uuid.New())
	seeded := repotest.SeedProposal(t, ctx, db, project, uuid.New(), time.Now().UTC(), []repotest.SeedItem{{Name: "a", Price: "100"}})
	a := seeded.ItemByName(t, "a")

	const workers = 4
	sessions := make([]uuid.UUID, workers)
	for i := range sessions {
		sessions[i] = repotest.SeedSession(t, ctx, db, seeded, negotiation.SessionResponded).ID
	}
	start := make(chan struct{})
	results := make(chan domainagg.MaterializeResult, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := f.versioning.Materialize(ctx, domainagg.MaterializeInput{
				ProposalID:    seeded.Proposal.ID,
				BaseVersionID: seeded.Version.ID,
				SessionID:     sessions[i],
				Items:         []negotiation.ResponseItem{{LineItemID: a.ID, Price: decimal.NewFromInt(int64(90 - i))}},
			})
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}(i)
	}
	close(start)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	var numbers []int
	for res := range results {
		numbers = append(numbers, res.VersionNumber)
	}
	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+2 {
			t.Fatalf("version numbers not gap-free: %v", numbers)
		}
	}
}

func TestVersioningAdvanceNeverMovesBackwards(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	project := repotest.SeedProject(t, ctx, tx, uuid.New())
	seeded := repotest.SeedProposal(t, ctx, tx, project, uuid.New(), time.Now().UTC(), []repotest.SeedItem{{Name: "a", Price: "100"}})
	a := seeded.ItemByName(t, "a")

	materialize := func(price int64) domainagg.MaterializeResult {
		t.Helper()
		res, err := f.versioning.Materialize(ctx, domainagg.MaterializeInput{
			ProposalID:    seeded.Proposal.ID,
			BaseVersionID: seeded.Version.ID,
			SessionID:     repotest.SeedSession(t, ctx, tx, seeded, negotiation.SessionResponded).ID,
			Items:         []negotiation.ResponseItem{{LineItemID: a.ID, Price: decimal.NewFromInt(price)}},
		})
		if err != nil {
			t.Fatalf("Materialize: %v", err)
		}
		return res
	}
	v2 := materialize(90)
	v3 := materialize(80)

	adv, err := f.versioning.AdvanceCurrentVersion(ctx, domainagg.AdvanceCurrentVersionInput{ProposalID: seeded.Proposal.ID, VersionID: v3.VersionID})
	if err != nil || !adv.Moved || adv.CurrentVersionNumber != 3 {
		t.Fatalf("advance to v3: %+v err=%v", adv, err)
	}
	if adv.Status != proposals.ProposalStatusSubmitted {
		t.Fatalf("status should be unchanged without Resubmitted: %q", adv.Status)
	}
	back, err := f.versioning.AdvanceCurrentVersion(ctx, domainagg.AdvanceCurrentVersionInput{ProposalID: seeded.Proposal.ID, VersionID: v2.VersionID, Resubmitted: true})
	if err != nil {
		t.Fatalf("advance to v2: %v", err)
	}
	if back.Moved || back.CurrentVersionNumber != 3 || back.CurrentVersionID != v3.VersionID {
		t.Fatalf("pointer moved backwards: %+v", back)
	}
}

func TestVersioningMaterializeRequiresRespondedSession(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	project := repotest.SeedProject(t, ctx, tx, uuid.New())
	seeded := repotest.SeedProposal(t, ctx, tx, project, uuid.New(), time.Now().UTC(), []repotest.SeedItem{{Name: "a", Price: "100"}})
	a := seeded.ItemByName(t, "a")

	materialize := func(sessionID uuid.UUID) error {
		_, err := f.versioning.Materialize(ctx, domainagg.MaterializeInput{
			ProposalID:    seeded.Proposal.ID,
			BaseVersionID: seeded.Version.ID,
			SessionID:     sessionID,
			Items:         []negotiation.ResponseItem{{LineItemID: a.ID, Price: decimal.NewFromInt(90)}},
		})
		return err
	}
	for _, status := range []negotiation.SessionStatus{negotiation.SessionCancelled, negotiation.SessionOpen, negotiation.SessionAwaitingResponse} {
		s := repotest.SeedSession(t, ctx, tx, seeded, status)
		if err := materialize(s.ID); !domainagg.IsCode(err, domainagg.CodePreconditionFailed) {
			t.Fatalf("%s session: want precondition_failed got %v", status, err)
		}
	}
	if err := materialize(uuid.New()); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unknown session: want not_found got %v", err)
	}

	maxNum, err := f.versionRepo.GetMaxVersionNumber(dbctx.Context{Ctx: ctx}, seeded.Proposal.ID)
	if err != nil || maxNum != 1 {
		t.Fatalf("refused materialize created a version: max=%d err=%v", maxNum, err)
	}
}

func TestVersioningMaterializeKeepsQuantityOnUnevenCounter(t *testing.T) {
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	f := newNegotiationFixture(t, tx, nil)
	ctx := context.Background()

	project := repotest.SeedProject(t, ctx, tx, uuid.New())
	seeded := repotest.SeedProposal(t, ctx, tx, project, uuid.New(), time.Now().UTC(), []repotest.SeedItem{
		{Name: "survey", Price: "1000", Quantity: 3},
	})
	survey := seeded.ItemByName(t, "survey")
	session := repotest.SeedSession(t, ctx, tx, seeded, negotiation.SessionResponded)

	res, err := f.versioning.Materialize(ctx, domainagg.MaterializeInput{
		ProposalID:    seeded.Proposal.ID,
		BaseVersionID: seeded.Version.ID,
		SessionID:     session.ID,
		Items:         []negotiation.ResponseItem{{LineItemID: survey.ID, Price: decimal.RequireFromString("2000")}},
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if !res.Price.Equal(decimal.RequireFromString("2000")) {
		t.Fatalf("price: want=2000 got=%s", res.Price)
	}
	items, err := f.itemRepo.ListByVersion(dbctx.Context{Ctx: ctx}, res.VersionID)
	if err != nil || len(items) != 1 {
		t.Fatalf("ListByVersion: %d %v", len(items), err)
	}
	it := items[0]
	if !it.Quantity.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("quantity collapsed: want=3 got=%s", it.Quantity)
	}
	if !it.Total.Equal(decimal.RequireFromString("2000")) || !it.UnitPrice.Equal(decimal.RequireFromString("666.6667")) {
		t.Fatalf("unexpected pricing: unit=%s total=%s", it.UnitPrice, it.Total)
	}
	if !proposals.RoundMoney(it.Quantity.Mul(it.UnitPrice)).Equal(it.Total) {
		t.Fatalf("total drifts from quantity*unit_price: %+v", it)
	}
}

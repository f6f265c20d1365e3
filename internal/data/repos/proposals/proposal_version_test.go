package proposals

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yungbote/quotebridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/quotebridge-backend/internal/domain"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
)

func TestProposalVersionRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	project := testutil.SeedProject(t, ctx, tx, uuid.New())
	seeded := testutil.SeedProposal(t, ctx, tx, project, uuid.New(), time.Now(), []testutil.SeedItem{
		{Name: "design", Category: "engineering", Price: "8000"},
		{Name: "extras", Price: "2000", IsOptional: true},
	})

	repo := NewProposalVersionRepo(db, testutil.Logger(t))

	maxN, err := repo.GetMaxVersionNumber(dbc, seeded.Proposal.ID)
	if err != nil || maxN != 1 {
		t.Fatalf("GetMaxVersionNumber: n=%d err=%v", maxN, err)
	}
	if n, err := repo.GetMaxVersionNumber(dbc, uuid.New()); err != nil || n != 0 {
		t.Fatalf("GetMaxVersionNumber(unknown): n=%d err=%v", n, err)
	}

	sessionID := uuid.New()
	v2 := &types.ProposalVersion{
		ID:            uuid.New(),
		ProposalID:    seeded.Proposal.ID,
		VersionNumber: 2,
		Price:         decimal.RequireFromString("9000"),
		CreatedBy:     seeded.Proposal.AdvisorID,
		SessionID:     &sessionID,
		ContentHash:   "abc",
	}
	if _, err := repo.Create(dbc, []*types.ProposalVersion{v2}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByContentHash(dbc, seeded.Proposal.ID, "abc")
	if err != nil || got == nil || got.ID != v2.ID {
		t.Fatalf("GetByContentHash: got=%v err=%v", got, err)
	}
	if got, err := repo.GetByContentHash(dbc, seeded.Proposal.ID, "missing"); err != nil || got != nil {
		t.Fatalf("GetByContentHash(missing): got=%v err=%v", got, err)
	}
	if got, err := repo.GetBySession(dbc, sessionID); err != nil || got == nil || got.ID != v2.ID {
		t.Fatalf("GetBySession: got=%v err=%v", got, err)
	}
	if got, err := repo.GetBySession(dbc, uuid.New()); err != nil || got != nil {
		t.Fatalf("GetBySession(unknown): got=%v err=%v", got, err)
	}
	if got, err := repo.GetByNumber(dbc, seeded.Proposal.ID, 1); err != nil || got == nil || got.ID != seeded.Version.ID {
		t.Fatalf("GetByNumber: got=%v err=%v", got, err)
	}

	list, err := repo.ListByProposal(dbc, seeded.Proposal.ID)
	if err != nil || len(list) != 2 || list[0].VersionNumber != 1 || list[1].VersionNumber != 2 {
		t.Fatalf("ListByProposal: len=%d err=%v", len(list), err)
	}
}

func TestProposalVersionRepoRejectsDuplicateNumber(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()

	project := testutil.SeedProject(t, ctx, db, uuid.New())
	seeded := testutil.SeedProposal(t, ctx, db, project, uuid.New(), time.Now(), []testutil.SeedItem{{Name: "a", Price: "1"}})

	repo := NewProposalVersionRepo(db, testutil.Logger(t))
	dup := &types.ProposalVersion{
		ID:            uuid.New(),
		ProposalID:    seeded.Proposal.ID,
		VersionNumber: 1,
		Price:         decimal.NewFromInt(1),
		CreatedBy:     seeded.Proposal.AdvisorID,
		ContentHash:   "other",
	}
	if _, err := repo.Create(dbctx.Context{Ctx: ctx}, []*types.ProposalVersion{dup}); err == nil {
		t.Fatalf("expected unique violation on (proposal_id, version_number)")
	}
}

func TestProposalLineItemRepoUpsertIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	project := testutil.SeedProject(t, ctx, tx, uuid.New())
	seeded := testutil.SeedProposal(t, ctx, tx, project, uuid.New(), time.Now(), []testutil.SeedItem{
		{Name: "b", Price: "10"},
		{Name: "a", Price: "20"},
	})

	repo := NewProposalLineItemRepo(db, testutil.Logger(t))
	copyRow := *seeded.Items[0]
	if err := repo.UpsertBatch(dbc, []*types.ProposalLineItem{&copyRow}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	items, err := repo.ListByVersion(dbc, seeded.Version.ID)
	if err != nil || len(items) != 2 {
		t.Fatalf("ListByVersion: len=%d err=%v", len(items), err)
	}
	if items[0].Name != "b" || items[1].Name != "a" {
		t.Fatalf("expected display order b,a got %s,%s", items[0].Name, items[1].Name)
	}
}

func TestProposalRepoLockAndUpdate(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	project := testutil.SeedProject(t, ctx, tx, uuid.New())
	seeded := testutil.SeedProposal(t, ctx, tx, project, uuid.New(), time.Now(), nil)

	repo := NewProposalRepo(db, testutil.Logger(t))
	locked, err := repo.LockByID(dbc, seeded.Proposal.ID)
	if err != nil || locked == nil {
		t.Fatalf("LockByID: got=%v err=%v", locked, err)
	}
	if err := repo.UpdateFields(dbc, locked.ID, map[string]interface{}{"status": "resubmitted"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	rows, err := repo.ListByProject(dbc, project.ID, []string{"resubmitted"})
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListByProject: len=%d err=%v", len(rows), err)
	}
	if got, err := repo.LockByID(dbc, uuid.New()); err != nil || got != nil {
		t.Fatalf("LockByID(missing): got=%v err=%v", got, err)
	}
}

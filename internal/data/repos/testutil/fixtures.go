package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	types "github.com/yungbote/quotebridge-backend/internal/domain"
	"github.com/yungbote/quotebridge-backend/internal/domain/negotiation"
	"github.com/yungbote/quotebridge-backend/internal/domain/proposals"
)

// SeedItem describes one line item of a seeded proposal version.
// Price is the unit price; Quantity defaults to 1.
type SeedItem struct {
	Name       string
	Category   string
	Price      string
	Quantity   int64
	IsOptional bool
}

// SeededProposal is a proposal with its current version and line items.
type SeededProposal struct {
	Project  *types.Project
	Proposal *types.Proposal
	Version  *types.ProposalVersion
	Items    []*types.ProposalLineItem
}

// ItemByName returns the seeded item with the given name or fails the test.
func (s *SeededProposal) ItemByName(tb testing.TB, name string) *types.ProposalLineItem {
	tb.Helper()
	for _, it := range s.Items {
		if it.Name == name {
			return it
		}
	}
	tb.Fatalf("seeded item %q not found", name)
	return nil
}

func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) *types.Project {
	tb.Helper()
	p := &types.Project{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Name:    "project",
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	return p
}

// SeedProposal creates a submitted proposal with version 1 carrying items.
func SeedProposal(tb testing.TB, ctx context.Context, tx *gorm.DB, project *types.Project, advisorID uuid.UUID, submittedAt time.Time, items []SeedItem) *SeededProposal {
	tb.Helper()
	prop := &types.Proposal{
		ID:          uuid.New(),
		ProjectID:   project.ID,
		AdvisorID:   advisorID,
		Status:      proposals.ProposalStatusSubmitted,
		SubmittedAt: submittedAt.UTC(),
	}
	ver := &types.ProposalVersion{
		ID:            uuid.New(),
		ProposalID:    prop.ID,
		VersionNumber: 1,
		TimelineDays:  30,
		ScopeText:     "scope",
		Terms:         "net 30",
		CreatedBy:     advisorID,
		ChangeReason:  "initial submission",
		ContentHash:   "seed:" + uuid.NewString(),
	}
	rows := make([]*types.ProposalLineItem, 0, len(items))
	for i, it := range items {
		price := decimal.RequireFromString(it.Price)
		qty := decimal.NewFromInt(1)
		if it.Quantity > 0 {
			qty = decimal.NewFromInt(it.Quantity)
		}
		rows = append(rows, &types.ProposalLineItem{
			ID:                uuid.New(),
			ProposalID:        prop.ID,
			ProposalVersionID: ver.ID,
			VersionNumber:     1,
			LineageID:         uuid.New(),
			Name:              it.Name,
			Category:          it.Category,
			Quantity:          qty,
			UnitPrice:         price,
			Total:             proposals.RoundMoney(qty.Mul(price)),
			IsOptional:        it.IsOptional,
			DisplayOrder:      i + 1,
		})
	}
	ver.Price = proposals.Total(rows, true)
	prop.CurrentVersionID = &ver.ID
	prop.CurrentVersionNumber = 1

	if err := tx.WithContext(ctx).Create(prop).Error; err != nil {
		tb.Fatalf("seed proposal: %v", err)
	}
	if err := tx.WithContext(ctx).Create(ver).Error; err != nil {
		tb.Fatalf("seed proposal version: %v", err)
	}
	if len(rows) > 0 {
		if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
			tb.Fatalf("seed line items: %v", err)
		}
	}
	return &SeededProposal{Project: project, Proposal: prop, Version: ver, Items: rows}
}

// SeedSession inserts a negotiation session against the seeded proposal's current version.
func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, seeded *SeededProposal, status negotiation.SessionStatus) *types.NegotiationSession {
	tb.Helper()
	s := &types.NegotiationSession{
		ID:                  uuid.New(),
		ProposalID:          seeded.Proposal.ID,
		ProjectID:           seeded.Project.ID,
		NegotiatedVersionID: seeded.Version.ID,
		InitiatorID:         seeded.Project.OwnerID,
		ConsultantAdvisorID: seeded.Proposal.AdvisorID,
		Status:              status,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed negotiation session: %v", err)
	}
	return s
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }

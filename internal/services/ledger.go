package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yungbote/quotebridge-backend/internal/data/repos"
	types "github.com/yungbote/quotebridge-backend/internal/domain"
	domainagg "github.com/yungbote/quotebridge-backend/internal/domain/aggregates"
	"github.com/yungbote/quotebridge-backend/internal/domain/proposals"
	"github.com/yungbote/quotebridge-backend/internal/platform/dbctx"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

// LedgerView is the priced item set of one version with its derived totals.
type LedgerView struct {
	ProposalID    uuid.UUID                            `json:"proposal_id"`
	VersionID     uuid.UUID                            `json:"version_id"`
	VersionNumber int                                  `json:"version_number"`
	Items         []*types.ProposalLineItem            `json:"items"`
	RequiredTotal decimal.Decimal                      `json:"required_total"`
	FullTotal     decimal.Decimal                      `json:"full_total"`
	Groups        map[string][]*types.ProposalLineItem `json:"groups"`
	Categories    []string                             `json:"categories"`
}

type LineItemLedger interface {
	// ListForVersion returns items ordered by display_order. A nil versionID reads the
	// proposal's current version.
	ListForVersion(ctx context.Context, proposalID uuid.UUID, versionID *uuid.UUID) (*LedgerView, error)
}

type lineItemLedger struct {
	log       *logger.Logger
	proposals repos.ProposalRepo
	versions  repos.ProposalVersionRepo
	items     repos.ProposalLineItemRepo
}

func NewLineItemLedger(baseLog *logger.Logger, proposals repos.ProposalRepo, versions repos.ProposalVersionRepo, items repos.ProposalLineItemRepo) LineItemLedger {
	return &lineItemLedger{
		log:       baseLog.With("service", "LineItemLedger"),
		proposals: proposals,
		versions:  versions,
		items:     items,
	}
}

func (l *lineItemLedger) ListForVersion(ctx context.Context, proposalID uuid.UUID, versionID *uuid.UUID) (*LedgerView, error) {
	const op = "Ledger.ListForVersion"
	dbc := dbctx.Context{Ctx: ctx}
	prop, err := l.proposals.GetByID(dbc, proposalID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if prop == nil {
		return nil, domainagg.Newf(domainagg.CodeNotFound, op, "proposal not found: %s", proposalID)
	}

	var target uuid.UUID
	switch {
	case versionID != nil && *versionID != uuid.Nil:
		target = *versionID
	case prop.CurrentVersionID != nil:
		target = *prop.CurrentVersionID
	default:
		return nil, domainagg.Newf(domainagg.CodeNotFound, op, "proposal %s has no current version", proposalID)
	}
	ver, err := l.versions.GetByID(dbc, target)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if ver == nil || ver.ProposalID != prop.ID {
		return nil, domainagg.Newf(domainagg.CodeNotFound, op, "version %s not found for proposal %s", target, proposalID)
	}

	items, err := l.items.ListByVersion(dbc, ver.ID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	proposals.SortByDisplayOrder(items)
	groups := proposals.GroupByCategory(items)
	cats := make([]string, 0, len(groups))
	for c := range groups {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	return &LedgerView{
		ProposalID:    prop.ID,
		VersionID:     ver.ID,
		VersionNumber: ver.VersionNumber,
		Items:         items,
		RequiredTotal: proposals.Total(items, false),
		FullTotal:     proposals.Total(items, true),
		Groups:        groups,
		Categories:    cats,
	}, nil
}
